package domain

import (
	"fmt"
	"strings"
)

// Granularity is the aggregation period of a bucket.
//
// The ordinal order is also the on-disk directory order and the order
// in which granularities appear in a backup payload.
type Granularity int

const (
	Daily Granularity = iota
	Weekly
	Monthly
	Yearly
)

// NumGranularities is the fixed number of granularities.
const NumGranularities = 4

// Granularities lists every granularity in ordinal order.
var Granularities = [NumGranularities]Granularity{Daily, Weekly, Monthly, Yearly}

var granularityNames = [NumGranularities]string{"daily", "weekly", "monthly", "yearly"}

// Valid reports whether g is one of the four known granularities.
func (g Granularity) Valid() bool {
	return g >= Daily && g <= Yearly
}

// String returns the directory name of the granularity.
func (g Granularity) String() string {
	if !g.Valid() {
		return fmt.Sprintf("granularity(%d)", int(g))
	}
	return granularityNames[g]
}

// ParseGranularity parses a granularity name (case-insensitive).
func ParseGranularity(s string) (Granularity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range granularityNames {
		if n == name {
			return Granularity(i), nil
		}
	}
	return -1, ErrInvalidArgument.WithDetails("unknown granularity %q", s)
}
