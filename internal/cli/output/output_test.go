package output

import (
	"bytes"
	"strings"
	"testing"
)

type bucketRow struct {
	Granularity string `json:"granularity" yaml:"granularity"`
	BeginTime   int64  `json:"begin_time" yaml:"begin_time" table:"millis"`
	Packages    int    `json:"packages" yaml:"packages"`
	Internal    string `json:"-" table:"-"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("json formatter type")
	}
	if _, ok := NewFormatter(FormatYAML).(*YAMLFormatter); !ok {
		t.Error("yaml formatter type")
	}
	if _, ok := NewFormatter("other").(*TableFormatter); !ok {
		t.Error("default formatter should be a table")
	}
}

func TestTableFormatter_Slice(t *testing.T) {
	rows := []bucketRow{
		{Granularity: "daily", BeginTime: 0, Packages: 3, Internal: "x"},
		{Granularity: "weekly", BeginTime: 86_400_000, Packages: 1},
	}
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, rows); err != nil {
		t.Fatalf("Format: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if got := strings.Fields(lines[0]); strings.Join(got, " ") != "GRANULARITY BEGIN_TIME PACKAGES" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "1970-01-02T00:00:00.000Z") {
		t.Fatalf("millis column not rendered as time: %q", lines[2])
	}
	if strings.Contains(buf.String(), "x ") {
		t.Fatal("hidden column rendered")
	}
}

func TestTableFormatter_Struct(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, &bucketRow{Granularity: "yearly", BeginTime: -1}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "FIELD") {
		t.Fatal("headers rendered with NoHeaders")
	}
	if !strings.Contains(out, "yearly") || !strings.Contains(out, "begin_time  -") {
		t.Fatalf("unexpected struct table:\n%s", out)
	}
}

func TestTableFormatter_FallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, 42); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Fatalf("fallback = %q, want 42", buf.String())
	}
}

func TestJSONAndYAML(t *testing.T) {
	row := bucketRow{Granularity: "monthly", BeginTime: 5, Packages: 2}

	var js bytes.Buffer
	if err := NewFormatter(FormatJSON).Format(&js, row); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(js.String(), `"begin_time": 5`) {
		t.Fatalf("json = %s", js.String())
	}

	var ym bytes.Buffer
	if err := NewFormatter(FormatYAML).Format(&ym, row); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(ym.String(), "granularity: monthly") || !strings.Contains(ym.String(), "begin_time: 5") {
		t.Fatalf("yaml = %s", ym.String())
	}
}
