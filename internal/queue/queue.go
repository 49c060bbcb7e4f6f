package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/shelfdrop/shelfdrop-cli/internal/events"
	"github.com/shelfdrop/shelfdrop-cli/internal/scan"
)

// ErrNotFound is returned for operations against an unknown or removed ID.
var ErrNotFound = errors.New("file not found in queue")

// Stats holds counts by status.
type Stats struct {
	Queued    int
	Uploading int
	Completed int
	Failed    int
}

// Total returns the number of live entries.
func (s Stats) Total() int {
	return s.Queued + s.Uploading + s.Completed + s.Failed
}

// Queue is the authoritative, mutable list of files awaiting or undergoing
// transfer. It tracks state and publishes events; it performs no I/O.
// Transfer execution belongs to the strategy layer.
//
// Appends are serialized so concurrent directory scans cannot corrupt
// ordering; List always returns insertion order for stable rendering.
type Queue struct {
	files     []*PendingFile
	filesByID map[string]*PendingFile
	mu        sync.RWMutex

	eventBus *events.EventBus
}

// NewQueue creates an empty queue publishing to the given bus (nil is
// allowed for a silent queue, used heavily in tests).
func NewQueue(eventBus *events.EventBus) *Queue {
	return &Queue{
		files:     make([]*PendingFile, 0),
		filesByID: make(map[string]*PendingFile),
		eventBus:  eventBus,
	}
}

// Add appends one scanned entry and returns its queue ID.
func (q *Queue) Add(entry scan.Entry) *PendingFile {
	file := newPendingFile(entry)

	q.mu.Lock()
	q.files = append(q.files, file)
	q.filesByID[file.ID] = file
	q.mu.Unlock()

	q.publish(events.EventFileQueued, file)
	return file
}

// Remove deletes a file by identity. Its progress-tracking state dies in
// the same operation, and its context is cancelled so the active strategy
// stops submitting further chunks or parts for it. The ID is never reused.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	file, ok := q.filesByID[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	delete(q.filesByID, id)
	for i, f := range q.files {
		if f.ID == id {
			q.files = append(q.files[:i], q.files[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	file.mu.Lock()
	file.Status = StatusRemoved
	file.CompletedAt = time.Now()
	file.est.reset()
	file.Progress = Progress{ETASeconds: -1}
	cancel := file.cancel
	file.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	q.publish(events.EventFileRemoved, file)
	return nil
}

// List returns snapshot copies of all live entries in insertion order.
func (q *Queue) List() []FileSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]FileSnapshot, len(q.files))
	for i, f := range q.files {
		out[i] = f.Snapshot()
	}
	return out
}

// Get returns a snapshot copy of one entry.
func (q *Queue) Get(id string) (FileSnapshot, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	f, ok := q.filesByID[id]
	if !ok {
		return FileSnapshot{}, false
	}
	return f.Snapshot(), true
}

// get returns the live entry for internal mutation.
func (q *Queue) get(id string) (*PendingFile, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	f, ok := q.filesByID[id]
	return f, ok
}

// Clear empties the queue, cancelling anything still live. Used after a
// successful finalization.
func (q *Queue) Clear() {
	q.mu.Lock()
	files := q.files
	q.files = make([]*PendingFile, 0)
	q.filesByID = make(map[string]*PendingFile)
	q.mu.Unlock()

	for _, f := range files {
		f.mu.Lock()
		if f.Status == StatusQueued || f.Status == StatusUploading {
			f.Status = StatusRemoved
		}
		cancel := f.cancel
		f.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

// MarkUploading transitions a queued file to uploading.
func (q *Queue) MarkUploading(id string) {
	f, ok := q.get(id)
	if !ok {
		return
	}

	f.mu.Lock()
	if f.Status == StatusQueued {
		f.Status = StatusUploading
		f.StartedAt = time.Now()
	}
	f.mu.Unlock()

	q.publish(events.EventFileStarted, f)
}

// RecordProgress feeds one bytesUploaded sample for an active transfer.
// Samples are monotonic within a session: a reading below the stored value
// is ignored rather than letting the display run backwards.
//
// Percentage saturates just below 100 here; only the Complete transition
// may report 100%.
func (q *Queue) RecordProgress(id string, bytesUploaded int64) {
	f, ok := q.get(id)
	if !ok {
		return
	}

	f.mu.Lock()
	if f.Status != StatusUploading || bytesUploaded < f.Progress.BytesUploaded {
		f.mu.Unlock()
		return
	}

	f.Progress.BytesUploaded = bytesUploaded
	if f.SizeBytes > 0 {
		pct := float64(bytesUploaded) / float64(f.SizeBytes) * 100
		if pct > 99.9 {
			pct = 99.9
		}
		f.Progress.Percentage = pct
	}

	speed, eta, _ := f.est.sample(bytesUploaded, f.SizeBytes, time.Now())
	f.Progress.SpeedBytesPerSec = speed
	f.Progress.ETASeconds = eta
	f.mu.Unlock()

	q.publish(events.EventFileProgress, f)
}

// ResetProgress starts a fresh transfer session for a file: counters zeroed,
// estimator discarded, status back to queued. Used by the fallback
// controller when the active strategy is swapped; sessions never resume
// byte-for-byte across strategies.
func (q *Queue) ResetProgress(id string) {
	f, ok := q.get(id)
	if !ok {
		return
	}

	f.mu.Lock()
	f.Status = StatusQueued
	f.Error = nil
	f.StartedAt = time.Time{}
	f.CompletedAt = time.Time{}
	f.est.reset()
	f.Progress = Progress{ETASeconds: -1}
	f.mu.Unlock()

	q.publish(events.EventFileQueued, f)
}

// Complete marks a file as successfully transferred. This is the only path
// on which Percentage reaches 100.
func (q *Queue) Complete(id string) {
	f, ok := q.get(id)
	if !ok {
		return
	}

	f.mu.Lock()
	f.Status = StatusCompleted
	f.Progress.BytesUploaded = f.SizeBytes
	f.Progress.Percentage = 100
	f.Progress.ETASeconds = 0
	f.CompletedAt = time.Now()
	f.est.reset()
	f.mu.Unlock()

	q.publish(events.EventFileCompleted, f)
}

// Fail marks a file as permanently failed. Sibling transfers continue.
func (q *Queue) Fail(id string, err error) {
	f, ok := q.get(id)
	if !ok {
		return
	}

	f.mu.Lock()
	f.Status = StatusFailed
	f.Error = err
	f.CompletedAt = time.Now()
	f.est.reset()
	f.mu.Unlock()

	q.publish(events.EventFileFailed, f)
}

// Drained reports whether every entry is terminal (completed or failed).
// An empty queue is not drained: finalization requires at least one file
// the server actually accepted.
func (q *Queue) Drained() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.files) == 0 {
		return false
	}
	for _, f := range q.files {
		if !f.IsTerminal() {
			return false
		}
	}
	return true
}

// CompletedCount returns how many entries the server has accepted.
func (q *Queue) CompletedCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := 0
	for _, f := range q.files {
		if f.GetStatus() == StatusCompleted {
			n++
		}
	}
	return n
}

// GetStats returns counts by status.
func (q *Queue) GetStats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats Stats
	for _, f := range q.files {
		switch f.GetStatus() {
		case StatusQueued:
			stats.Queued++
		case StatusUploading:
			stats.Uploading++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// publish emits a file event outside any lock.
func (q *Queue) publish(eventType events.EventType, f *PendingFile) {
	if q.eventBus == nil {
		return
	}

	f.mu.RLock()
	ev := &events.FileEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		FileID:        f.ID,
		Name:          f.Name,
		Size:          f.SizeBytes,
		BytesUploaded: f.Progress.BytesUploaded,
		Percentage:    f.Progress.Percentage,
		Speed:         f.Progress.SpeedBytesPerSec,
		ETASeconds:    f.Progress.ETASeconds,
		Error:         f.Error,
	}
	f.mu.RUnlock()

	q.eventBus.Publish(ev)
}
