package command

import (
	"fmt"
	"strconv"
	"time"
)

// parseTime accepts Unix milliseconds or an RFC 3339 timestamp.
func parseTime(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want RFC 3339 or Unix milliseconds", s)
	}
	return t.UnixMilli(), nil
}

// rangeFlags parses the required --begin and --end flags.
func rangeFlags(begin, end string) (int64, int64, error) {
	b, err := parseTime(begin)
	if err != nil {
		return 0, 0, err
	}
	e, err := parseTime(end)
	if err != nil {
		return 0, 0, err
	}
	return b, e, nil
}
