package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shelfdrop/shelfdrop-cli/internal/api"
	"github.com/shelfdrop/shelfdrop-cli/internal/config"
	"github.com/shelfdrop/shelfdrop-cli/internal/events"
	"github.com/shelfdrop/shelfdrop-cli/internal/logging"
	"github.com/shelfdrop/shelfdrop-cli/internal/queue"
	"github.com/shelfdrop/shelfdrop-cli/internal/scan"
)

// RejectedFile records a scanned entry that failed pre-queue validation.
type RejectedFile struct {
	Path   string
	Reason error
}

// Session owns one upload run end to end: scanning sources into the queue,
// draining the queue through the active strategy under a concurrency cap,
// demoting the strategy on multipart failure, and claiming the results.
type Session struct {
	queue        *queue.Queue
	scanner      *scan.Scanner
	fallback     *FallbackController
	finalizer    *Finalizer
	restrictions config.Restrictions

	eventBus *events.EventBus
	logger   *logging.Logger
}

// NewSession assembles a session around an already-populated fallback
// controller. The queue starts empty; callers add files, then Drain, then
// Finalize.
func NewSession(fallback *FallbackController, finalizer *Finalizer, restrictions config.Restrictions, eventBus *events.EventBus, logger *logging.Logger) *Session {
	return &Session{
		queue:        queue.NewQueue(eventBus),
		scanner:      scan.New(),
		fallback:     fallback,
		finalizer:    finalizer,
		restrictions: restrictions,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// Queue exposes the session's pending queue for rendering and removal.
func (s *Session) Queue() *queue.Queue { return s.queue }

// AddPaths expands the given roots (files and directories) and queues every
// file that passes the configured restrictions. Validation runs before
// queueing: an oversized or disallowed file is reported in the rejected
// slice and never enters the queue, while its siblings still do.
func (s *Session) AddPaths(roots []string, source scan.SourceKind) ([]queue.FileSnapshot, []RejectedFile, error) {
	entries, err := s.scanner.Expand(roots, source)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning sources: %w", err)
	}

	var (
		added    []queue.FileSnapshot
		rejected []RejectedFile
	)
	for _, entry := range entries {
		if err := s.restrictions.Allows(entry.RelativePath, entry.SizeBytes); err != nil {
			rejected = append(rejected, RejectedFile{Path: entry.Path, Reason: err})
			continue
		}
		added = append(added, s.queue.Add(entry).Snapshot())
	}

	s.logger.Info().
		Int("queued", len(added)).
		Int("rejected", len(rejected)).
		Msg("Sources expanded")
	return added, rejected, nil
}

// RemoveFile drops a queued or in-flight file from the session.
func (s *Session) RemoveFile(id string) error {
	return s.queue.Remove(id)
}

// ListPending returns snapshots of the queue in insertion order.
func (s *Session) ListPending() []queue.FileSnapshot {
	return s.queue.List()
}

// Drain uploads every queued file, at most restrictions.MaxConcurrentFiles
// at a time, and blocks until all of them are terminal. A file failure does
// not abort its siblings; the failure count comes back in the stats.
func (s *Session) Drain(ctx context.Context) queue.Stats {
	files := s.queue.List()

	sem := make(chan struct{}, s.restrictions.MaxConcurrentFiles)
	var wg sync.WaitGroup

	for _, f := range files {
		if f.Status != queue.StatusQueued {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return s.queue.GetStats()
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			s.uploadOne(ctx, id)
		}(f.ID)
	}

	wg.Wait()
	return s.queue.GetStats()
}

// uploadOne drives a single file to a terminal state. When the fallback
// controller swaps the strategy out from under a failed multipart transfer,
// the file restarts from byte zero under the new binding; demotion is
// one-way, so this loops at most twice.
func (s *Session) uploadOne(ctx context.Context, id string) {
	for {
		f, ok := s.queue.Get(id)
		if !ok || f.Status != queue.StatusQueued {
			return
		}

		strategy := s.fallback.Active()
		s.queue.MarkUploading(id)

		fileCtx := f.Context()
		err := strategy.Upload(fileCtx, s.queue, f)
		if err == nil {
			s.queue.Complete(id)
			return
		}

		if fileCtx.Err() != nil {
			// Removed mid-flight; the queue already published the removal.
			return
		}
		if ctx.Err() != nil {
			s.queue.Fail(id, ctx.Err())
			return
		}

		err = s.fallback.HandleFailure(f, strategy.Name(), err)
		if errors.Is(err, ErrRetryRequired) {
			s.queue.ResetProgress(id)
			continue
		}

		s.logger.Error().Err(err).Str("file", f.Name).Msg("Upload failed")
		s.queue.Fail(id, err)
		return
	}
}

// Finalize claims the session once every transfer is terminal and the
// server accepted at least one file. The queue keeps its failed entries so
// the caller can report them; completed entries survive a failed claim and
// are claimed by a later retry.
func (s *Session) Finalize(ctx context.Context, secret, notes string) (*api.LoginResult, error) {
	if !s.queue.Drained() || s.queue.CompletedCount() == 0 {
		return nil, ErrNothingToClaim
	}
	return s.finalizer.Finalize(ctx, secret, notes)
}
