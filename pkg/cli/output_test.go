package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTableAlignment(t *testing.T) {
	table := &Table{Headers: []string{"ID", "NAME", "ACTIVE"}}
	table.Add("1", "ci", "true")
	table.Add("23", "deploy-bot", "false")

	var buf bytes.Buffer
	if err := table.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	// Columns align: NAME starts at the same offset on every line.
	want := strings.Index(lines[0], "NAME")
	if want < 0 {
		t.Fatalf("no NAME header in %q", lines[0])
	}
	if got := strings.Index(lines[1], "ci"); got != want {
		t.Errorf("row 1 column offset = %d, want %d", got, want)
	}
	if got := strings.Index(lines[2], "deploy-bot"); got != want {
		t.Errorf("row 2 column offset = %d, want %d", got, want)
	}
}

func TestTableEmptyStillPrintsHeader(t *testing.T) {
	table := &Table{Headers: []string{"ID", "NAME"}}
	var buf bytes.Buffer
	if err := table.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "ID") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	err := WriteJSON(&buf, map[string]int{"requests": 42})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"requests": 42`) {
		t.Errorf("output = %q", buf.String())
	}
}
