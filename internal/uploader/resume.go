package uploader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shelfdrop/shelfdrop-cli/internal/constants"
)

// resumeStateVersion guards against sidecar format changes between releases.
const resumeStateVersion = 1

// ResumeState is the JSON sidecar persisted next to the upload cache for a
// chunked upload in flight. It lets an interrupted transfer continue from
// the server-confirmed offset instead of byte zero.
type ResumeState struct {
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	UploadURL   string    `json:"uploadUrl"`
	SizeBytes   int64     `json:"sizeBytes"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ResumeStore persists chunked-upload resume state keyed by file
// fingerprint. Writes are atomic (temp file + rename) so a crash never
// leaves a truncated sidecar behind.
type ResumeStore struct {
	dir string
}

// NewResumeStore returns a store rooted at dir, creating it if needed.
func NewResumeStore(dir string) (*ResumeStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating resume cache dir: %w", err)
	}
	return &ResumeStore{dir: dir}, nil
}

// DefaultResumeDir returns the per-user resume cache location.
func DefaultResumeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "shelfdrop", "resume"), nil
}

// Fingerprint derives the resume cache key for a file. Two files with the
// same name, size and modification time are considered the same upload.
func Fingerprint(name string, sizeBytes int64, modified time.Time) string {
	key := fmt.Sprintf("%s-%d-%d", name, sizeBytes, modified.UnixMilli())
	// Relative paths contain separators; flatten so the key is a filename.
	key = strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(key)
	return key
}

func (s *ResumeStore) path(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+".json")
}

// Save writes the resume sidecar for state.Fingerprint.
func (s *ResumeStore) Save(state *ResumeState) error {
	state.Version = resumeStateVersion
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding resume state: %w", err)
	}

	target := s.path(state.Fingerprint)
	tmp, err := os.CreateTemp(s.dir, ".resume-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp resume file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing resume state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp resume file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing resume state: %w", err)
	}
	return nil
}

// Load returns the saved state for fingerprint, or (nil, nil) when there is
// nothing usable: missing, corrupt, stale, or for a different file size.
// Unusable sidecars are deleted on the way out.
func (s *ResumeStore) Load(fingerprint string, sizeBytes int64) (*ResumeState, error) {
	data, err := os.ReadFile(s.path(fingerprint))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading resume state: %w", err)
	}

	var state ResumeState
	if err := json.Unmarshal(data, &state); err != nil {
		s.Delete(fingerprint)
		return nil, nil
	}

	if state.Version != resumeStateVersion ||
		state.Fingerprint != fingerprint ||
		state.SizeBytes != sizeBytes ||
		state.UploadURL == "" ||
		time.Since(state.UpdatedAt) > constants.MaxResumeAge {
		s.Delete(fingerprint)
		return nil, nil
	}
	return &state, nil
}

// Delete removes the sidecar for fingerprint, if any.
func (s *ResumeStore) Delete(fingerprint string) {
	os.Remove(s.path(fingerprint))
}
