package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatal(err)
	}
	if om != nil {
		t.Fatal("expected nil manager when output is disabled")
	}

	// All writes on a nil manager are no-ops.
	if err := om.WriteRecord(Record{}); err != nil {
		t.Errorf("WriteRecord on nil manager: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("Close on nil manager: %v", err)
	}
	if om.Dir() != "" {
		t.Errorf("Dir() = %q, want empty", om.Dir())
	}
}

func TestOutputManagerWritesStats(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run1")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := om.WriteRecord(Record{Step: 10, TotalMass: 1.5}); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteRecord(Record{Step: 20, TotalMass: 3.0}); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stats.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("stats.csv has %d lines, want header + 2 records", len(lines))
	}
	if !strings.Contains(lines[0], "step") || !strings.Contains(lines[0], "total_mass") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "10,") {
		t.Errorf("first record = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "20,") {
		t.Errorf("second record = %q", lines[2])
	}
}
