package output

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, "*output.JSONFormatter"},
		{FormatYAML, "*output.YAMLFormatter"},
		{FormatTable, "*output.TableFormatter"},
		{"unknown", "*output.TableFormatter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f := NewFormatter(tt.format, false)
			switch tt.format {
			case FormatJSON:
				if _, ok := f.(*JSONFormatter); !ok {
					t.Error("expected JSONFormatter")
				}
			case FormatYAML:
				if _, ok := f.(*YAMLFormatter); !ok {
					t.Error("expected YAMLFormatter")
				}
			default:
				if _, ok := f.(*TableFormatter); !ok {
					t.Error("expected TableFormatter")
				}
			}
		})
	}
}

func TestTableRender(t *testing.T) {
	var tbl Table
	tbl.SetHeaders("NODE", "HEALTH")
	tbl.AddRow("mmnode-a", "healthy")
	tbl.AddRow("mmnode-b", "degraded")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "NODE") {
		t.Errorf("missing header: %q", lines[0])
	}
	if !strings.Contains(lines[2], "degraded") {
		t.Errorf("missing row: %q", lines[2])
	}
}

func TestTableRenderNoHeaders(t *testing.T) {
	var tbl Table
	tbl.SetHeaders("KEY", "VALUE")
	tbl.AddRow("a", "1")

	var buf bytes.Buffer
	if err := tbl.RenderWithOptions(&buf, true); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(buf.String(), "KEY") {
		t.Errorf("headers rendered despite noHeaders: %q", buf.String())
	}
}

func TestTableFormatterFallsBackToJSON(t *testing.T) {
	f := &TableFormatter{}
	data := map[string]int{"records": 7}

	var buf bytes.Buffer
	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.Contains(buf.String(), `"records": 7`) {
		t.Errorf("fallback output = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	f := &JSONFormatter{}
	data := struct {
		Name string `json:"name"`
	}{Name: "mmnode-x"}

	var buf bytes.Buffer
	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.Contains(buf.String(), `"name": "mmnode-x"`) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	f := &YAMLFormatter{}
	data := map[string]string{"role": "leader"}

	var buf bytes.Buffer
	if err := f.Format(&buf, data); err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.Contains(buf.String(), "role: leader") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestCellHelpers(t *testing.T) {
	if got := CellString(""); got != "-" {
		t.Errorf("CellString(\"\") = %q", got)
	}
	if got := CellString("x"); got != "x" {
		t.Errorf("CellString(x) = %q", got)
	}
	if got := CellTime(time.Time{}); got != "-" {
		t.Errorf("CellTime(zero) = %q", got)
	}
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if got := CellTime(ts); got != "2026-03-14 09:26:53" {
		t.Errorf("CellTime = %q", got)
	}
	if got := CellFloat(0.5); got != "0.50" {
		t.Errorf("CellFloat = %q", got)
	}
}
