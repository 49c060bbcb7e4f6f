package uploader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestResumeStoreRoundtrip verifies save/load with matching fingerprint and
// size.
func TestResumeStoreRoundtrip(t *testing.T) {
	store, err := NewResumeStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewResumeStore failed: %v", err)
	}

	fp := Fingerprint("photos/a.jpg", 1234, time.Unix(1700000000, 0))
	if err := store.Save(&ResumeState{
		Fingerprint: fp,
		UploadURL:   "https://drop.example.com/api/upload/tus/abc",
		SizeBytes:   1234,
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	state, err := store.Load(fp, 1234)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state == nil {
		t.Fatal("Expected saved state, got nil")
	}
	if state.UploadURL != "https://drop.example.com/api/upload/tus/abc" {
		t.Errorf("Unexpected URL: %s", state.UploadURL)
	}
}

// TestResumeStoreRejectsSizeMismatch verifies a sidecar for a file that has
// since changed size is discarded.
func TestResumeStoreRejectsSizeMismatch(t *testing.T) {
	store, _ := NewResumeStore(t.TempDir())

	fp := Fingerprint("a.bin", 100, time.Now())
	store.Save(&ResumeState{Fingerprint: fp, UploadURL: "u", SizeBytes: 100})

	state, err := store.Load(fp, 999)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state != nil {
		t.Error("Expected nil for size mismatch")
	}

	// The unusable sidecar should be gone for good.
	if state, _ := store.Load(fp, 100); state != nil {
		t.Error("Mismatched sidecar was not deleted")
	}
}

// TestResumeStoreExpiresStaleState verifies old sidecars are not resumed.
func TestResumeStoreExpiresStaleState(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewResumeStore(dir)

	// Write a sidecar aged past the expiry window directly; Save always
	// stamps the current time.
	fp := Fingerprint("a.bin", 100, time.Now())
	stale := ResumeState{
		Version:     resumeStateVersion,
		Fingerprint: fp,
		UploadURL:   "u",
		SizeBytes:   100,
		UpdatedAt:   time.Now().Add(-8 * 24 * time.Hour),
	}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, fp+".json"), data, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(fp, 100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != nil {
		t.Error("Expected stale sidecar to be discarded")
	}
}

// TestResumeStoreIgnoresCorruptSidecar verifies garbage on disk loads as
// "nothing to resume" rather than an error.
func TestResumeStoreIgnoresCorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewResumeStore(dir)

	fp := Fingerprint("a.bin", 100, time.Now())
	if err := os.WriteFile(filepath.Join(dir, fp+".json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	state, err := store.Load(fp, 100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state != nil {
		t.Error("Expected nil for corrupt sidecar")
	}
}

// TestFingerprintFilenameSafe verifies path separators never leak into the
// sidecar filename.
func TestFingerprintFilenameSafe(t *testing.T) {
	fp := Fingerprint("photos/2024/a.jpg", 10, time.Unix(0, 0))
	if filepath.Base(fp) != fp {
		t.Errorf("Fingerprint contains path separators: %q", fp)
	}

	other := Fingerprint("photos/2024/a.jpg", 11, time.Unix(0, 0))
	if fp == other {
		t.Error("Different sizes produced the same fingerprint")
	}
}
