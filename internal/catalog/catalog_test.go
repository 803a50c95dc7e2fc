package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/papapumpkin/osmpoi/internal/dataset"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestScan_ListsDatasetFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	touch(t, dir, "city.poi")
	touch(t, dir, "town.poiparsingways")
	touch(t, dir, "notes.txt")
	touch(t, dir, ".city.poi.import")
	if err := os.Mkdir(filepath.Join(dir, "sub.poi"), 0o755); err != nil {
		t.Fatal(err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries, err := c.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got := make(map[string]dataset.Stage)
	for _, e := range entries {
		got[filepath.Base(e.Path)] = e.Stage
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if got["city.poi"] != dataset.StageReady {
		t.Errorf("city.poi stage = %v, want ready", got["city.poi"])
	}
	if got["town.poiparsingways"] != dataset.StageParsingWays {
		t.Errorf("town stage = %v, want parsing-ways", got["town.poiparsingways"])
	}
}

func TestScan_CustomIgnore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	touch(t, dir, "city.poi")
	touch(t, dir, "scratch-city.poi")

	c, err := New(dir, "scratch-*")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries, err := c.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "city" {
		t.Errorf("entries = %+v, want only city", entries)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	t.Parallel()
	c, err := New(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Scan()
	if !errors.Is(err, ErrScanFailed) {
		t.Errorf("Scan error = %v, want ErrScanFailed", err)
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()
	_, err := New(t.TempDir(), "[")
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("New error = %v, want ErrInvalidPattern", err)
	}
}
