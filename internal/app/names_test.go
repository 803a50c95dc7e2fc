package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDatasetNamesStayInRoot(t *testing.T) {
	t.Parallel()
	a, root := openApp(t, &stageEngine{})
	ctx := context.Background()

	outside := filepath.Join(filepath.Dir(root), "x.poi")
	if err := os.WriteFile(outside, []byte("poi"), 0o644); err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(t.TempDir(), "points.csv")
	if err := os.WriteFile(in, []byte("1,0,0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out.csv")
	dest := t.TempDir()

	for _, name := range []string{"../x", "..", "", `..\x`, "sub/x"} {
		if _, err := a.RunQuery(ctx, name, in, out, QueryOptions{}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("RunQuery(%q) error = %v, want ErrInvalidName", name, err)
		}
		if _, err := a.Export(name, dest); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Export(%q) error = %v, want ErrInvalidName", name, err)
		}
		if err := a.DeleteDataset(ctx, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("DeleteDataset(%q) error = %v, want ErrInvalidName", name, err)
		}
		if _, err := a.Resume(ctx, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Resume(%q) error = %v, want ErrInvalidName", name, err)
		}
	}

	if _, err := os.Stat(out); err == nil {
		t.Error("query output written for an invalid name")
	}
	if files, _ := os.ReadDir(dest); len(files) != 0 {
		t.Errorf("export wrote %d files for an invalid name", len(files))
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("file outside the root touched: %v", err)
	}
}
