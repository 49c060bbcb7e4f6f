package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestExpandFlatFile verifies a flat file gets its base name as the
// relative path.
func TestExpandFlatFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "report.pdf"), 10)

	entries, err := New().Expand([]string{filepath.Join(dir, "report.pdf")}, SourceFileInput)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].RelativePath != "report.pdf" {
		t.Errorf("Expected RelativePath 'report.pdf', got %q", entries[0].RelativePath)
	}
	if entries[0].SizeBytes != 10 {
		t.Errorf("Expected size 10, got %d", entries[0].SizeBytes)
	}
	if entries[0].Source != SourceFileInput {
		t.Errorf("Expected source %q, got %q", SourceFileInput, entries[0].Source)
	}
}

// TestExpandMixedDrop covers a drop of one flat file plus a directory tree
// with nested subdirectories, an empty directory, and a zero-byte file.
func TestExpandMixedDrop(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "readme.txt"), 5)
	writeFile(t, filepath.Join(dir, "photos", "a.jpg"), 100)
	writeFile(t, filepath.Join(dir, "photos", "2024", "b.jpg"), 200)
	writeFile(t, filepath.Join(dir, "photos", "2024", "empty.bin"), 0)
	if err := os.MkdirAll(filepath.Join(dir, "photos", "blank"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := New().Expand(
		[]string{filepath.Join(dir, "readme.txt"), filepath.Join(dir, "photos")},
		SourceDragDrop,
	)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.RelativePath)
	}
	sort.Strings(got)

	want := []string{
		"photos/2024/b.jpg",
		"photos/2024/empty.bin",
		"photos/a.jpg",
		"readme.txt",
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	for _, e := range entries {
		if e.RelativePath == "photos/2024/empty.bin" && e.SizeBytes != 0 {
			t.Errorf("Zero-byte file reported size %d", e.SizeBytes)
		}
	}
}

// TestExpandLargeDirectory checks that directories bigger than one read
// batch are fully enumerated.
func TestExpandLargeDirectory(t *testing.T) {
	dir := t.TempDir()
	const n = readBatchSize*2 + 7

	for i := 0; i < n; i++ {
		writeFile(t, filepath.Join(dir, "bulk", fmt.Sprintf("f%04d.dat", i)), 1)
	}

	entries, err := New().Expand([]string{filepath.Join(dir, "bulk")}, SourceFolderInput)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(entries) != n {
		t.Errorf("Expected %d entries, got %d", n, len(entries))
	}
}

// TestExpandMissingPath verifies a nonexistent root fails with a useful
// error instead of being silently skipped.
func TestExpandMissingPath(t *testing.T) {
	_, err := New().Expand([]string{filepath.Join(t.TempDir(), "nope")}, SourceFileInput)
	if err == nil {
		t.Fatal("Expected error for missing path, got nil")
	}
}
