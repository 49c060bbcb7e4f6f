// Package queue holds the authoritative pending-upload list: every file
// awaiting or undergoing transfer, its lifecycle state, and its smoothed
// progress estimate.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfdrop/shelfdrop-cli/internal/scan"
)

// Status represents the lifecycle state of a pending file.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRemoved   Status = "removed"
)

// Progress is the mutable per-file progress sub-record.
type Progress struct {
	BytesUploaded    int64
	Percentage       float64
	SpeedBytesPerSec float64
	// ETASeconds is negative while the running speed is still zero
	// (undefined), mirroring "unknown" rather than lying with zero.
	ETASeconds float64
}

// PendingFile is one live entry in the queue. It carries a lock and must
// only be handled by pointer; the queue funnels all mutation through it.
// Everything outside the queue works on FileSnapshot copies.
type PendingFile struct {
	// ID is opaque, unique, and stable for the file's lifetime in the
	// queue. Never reused.
	ID string

	// Name is the display name. For directory-sourced files this is the
	// slash-joined relative path, not the bare filename; the server uses it
	// to reconstruct folder structure.
	Name string

	// Path is the absolute local path the bytes are read from.
	Path string

	// SizeBytes is the total size, known before transfer starts.
	SizeBytes int64

	// Source records provenance only.
	Source scan.SourceKind

	Status   Status
	Progress Progress
	Error    error

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	est estimator

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// FileSnapshot is a point-in-time, lock-free copy of a queue entry, safe to
// pass by value through strategies and renderers. Mutating a snapshot has
// no effect on the queue.
type FileSnapshot struct {
	ID        string
	Name      string
	Path      string
	SizeBytes int64
	Source    scan.SourceKind

	Status   Status
	Progress Progress
	Error    error

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// Shared with the live entry on purpose: a snapshot still observes
	// the original's cancellation.
	ctx context.Context
}

// Context returns the file's cancellation context. Strategies check it
// between chunk and part submissions; removal cancels it.
// Already-dispatched requests are not aborted (best-effort cancellation).
func (s FileSnapshot) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func newPendingFile(entry scan.Entry) *PendingFile {
	ctx, cancel := context.WithCancel(context.Background())
	return &PendingFile{
		ID:        uuid.NewString(),
		Name:      entry.RelativePath,
		Path:      entry.Path,
		SizeBytes: entry.SizeBytes,
		Source:    entry.Source,
		Status:    StatusQueued,
		Progress:  Progress{ETASeconds: -1},
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// GetStatus returns the current status (thread-safe).
func (f *PendingFile) GetStatus() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.Status
}

// Context returns the live entry's context.
func (f *PendingFile) Context() context.Context {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ctx
}

// IsTerminal reports whether the file is in a terminal state.
func (f *PendingFile) IsTerminal() bool {
	switch f.GetStatus() {
	case StatusCompleted, StatusFailed, StatusRemoved:
		return true
	}
	return false
}

// Snapshot returns a point-in-time copy for safe external use.
func (f *PendingFile) Snapshot() FileSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FileSnapshot{
		ID:          f.ID,
		Name:        f.Name,
		Path:        f.Path,
		SizeBytes:   f.SizeBytes,
		Source:      f.Source,
		Status:      f.Status,
		Progress:    f.Progress,
		Error:       f.Error,
		CreatedAt:   f.CreatedAt,
		StartedAt:   f.StartedAt,
		CompletedAt: f.CompletedAt,
		ctx:         f.ctx,
	}
}
