package queue

import (
	"errors"
	"testing"

	"github.com/shelfdrop/shelfdrop-cli/internal/events"
	"github.com/shelfdrop/shelfdrop-cli/internal/scan"
)

func testEntry(name string, size int64) scan.Entry {
	return scan.Entry{
		Path:         "/tmp/" + name,
		RelativePath: name,
		SizeBytes:    size,
		Source:       scan.SourceFileInput,
	}
}

// TestQueueAddAndList verifies insertion order and snapshot semantics.
func TestQueueAddAndList(t *testing.T) {
	q := NewQueue(nil)

	a := q.Add(testEntry("a.txt", 100))
	b := q.Add(testEntry("b.txt", 200))

	list := q.List()
	if len(list) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Error("List does not preserve insertion order")
	}
	if list[0].Status != StatusQueued {
		t.Errorf("Expected status queued, got %s", list[0].Status)
	}

	// Mutating the snapshot must not touch the queue.
	list[0].Status = StatusFailed
	if got, _ := q.Get(a.ID); got.Status != StatusQueued {
		t.Error("Snapshot mutation leaked into the queue")
	}
}

// TestSnapshotObservesRemoval verifies a snapshot taken before removal
// still sees the cancellation: strategies hold snapshots, and removal must
// stop their chunk loops. A zero-value snapshot has a usable context too.
func TestSnapshotObservesRemoval(t *testing.T) {
	q := NewQueue(nil)
	f := q.Add(testEntry("a.txt", 100))

	snap, ok := q.Get(f.ID)
	if !ok {
		t.Fatal("Get failed for a live entry")
	}

	if err := q.Remove(f.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	select {
	case <-snap.Context().Done():
	default:
		t.Error("Snapshot context not cancelled by removal")
	}

	var zero FileSnapshot
	if zero.Context() == nil {
		t.Error("Zero-value snapshot returned a nil context")
	}
	if err := zero.Context().Err(); err != nil {
		t.Errorf("Zero-value snapshot context unexpectedly done: %v", err)
	}
}

// TestQueueRemove verifies removal is final: the entry disappears, its
// progress state dies with it, and its context is cancelled.
func TestQueueRemove(t *testing.T) {
	q := NewQueue(nil)
	f := q.Add(testEntry("a.txt", 100))

	q.MarkUploading(f.ID)
	q.RecordProgress(f.ID, 50)

	ctx := f.Context()
	if err := q.Remove(f.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, ok := q.Get(f.ID); ok {
		t.Error("Removed file still retrievable")
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("Removal did not cancel the file context")
	}
	if err := q.Remove(f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on double remove, got %v", err)
	}

	// Late progress for the dead ID must be ignored, not resurrect it.
	q.RecordProgress(f.ID, 80)
	if len(q.List()) != 0 {
		t.Error("Progress report resurrected a removed file")
	}
}

// TestQueueProgressMonotonic verifies a lower byte reading never winds the
// counter backwards.
func TestQueueProgressMonotonic(t *testing.T) {
	q := NewQueue(nil)
	f := q.Add(testEntry("a.txt", 1000))
	q.MarkUploading(f.ID)

	q.RecordProgress(f.ID, 600)
	q.RecordProgress(f.ID, 400)

	got, _ := q.Get(f.ID)
	if got.Progress.BytesUploaded != 600 {
		t.Errorf("Expected bytes to hold at 600, got %d", got.Progress.BytesUploaded)
	}
}

// TestQueuePercentageCap verifies 100%% is reserved for the Complete
// transition even when every byte has been reported.
func TestQueuePercentageCap(t *testing.T) {
	q := NewQueue(nil)
	f := q.Add(testEntry("a.txt", 1000))
	q.MarkUploading(f.ID)

	q.RecordProgress(f.ID, 1000)
	got, _ := q.Get(f.ID)
	if got.Progress.Percentage >= 100 {
		t.Errorf("Percentage reached %f before completion", got.Progress.Percentage)
	}

	q.Complete(f.ID)
	got, _ = q.Get(f.ID)
	if got.Progress.Percentage != 100 {
		t.Errorf("Expected 100%% after completion, got %f", got.Progress.Percentage)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Expected status completed, got %s", got.Status)
	}
}

// TestQueueResetProgress verifies a strategy switch starts the file over
// with clean counters.
func TestQueueResetProgress(t *testing.T) {
	q := NewQueue(nil)
	f := q.Add(testEntry("a.txt", 1000))
	q.MarkUploading(f.ID)
	q.RecordProgress(f.ID, 700)

	q.ResetProgress(f.ID)

	got, _ := q.Get(f.ID)
	if got.Status != StatusQueued {
		t.Errorf("Expected status queued after reset, got %s", got.Status)
	}
	if got.Progress.BytesUploaded != 0 || got.Progress.Percentage != 0 {
		t.Errorf("Expected zeroed progress, got %+v", got.Progress)
	}
	if got.Progress.ETASeconds >= 0 {
		t.Errorf("Expected undefined ETA after reset, got %f", got.Progress.ETASeconds)
	}

	// The monotonic guard must not compare against the old session.
	q.MarkUploading(f.ID)
	q.RecordProgress(f.ID, 100)
	got, _ = q.Get(f.ID)
	if got.Progress.BytesUploaded != 100 {
		t.Errorf("Expected fresh session to accept 100 bytes, got %d", got.Progress.BytesUploaded)
	}
}

// TestQueueFailIsolation verifies one failure leaves siblings untouched.
func TestQueueFailIsolation(t *testing.T) {
	q := NewQueue(nil)
	a := q.Add(testEntry("a.txt", 100))
	b := q.Add(testEntry("b.txt", 100))

	q.MarkUploading(a.ID)
	q.Fail(a.ID, errors.New("boom"))

	gotA, _ := q.Get(a.ID)
	if gotA.Status != StatusFailed || gotA.Error == nil {
		t.Errorf("Expected failed with error, got %s %v", gotA.Status, gotA.Error)
	}
	gotB, _ := q.Get(b.ID)
	if gotB.Status != StatusQueued {
		t.Errorf("Sibling affected by failure: %s", gotB.Status)
	}
}

// TestQueueDrained verifies drain semantics: empty queues are not drained,
// and failed entries still count as terminal.
func TestQueueDrained(t *testing.T) {
	q := NewQueue(nil)
	if q.Drained() {
		t.Error("Empty queue reported drained")
	}

	a := q.Add(testEntry("a.txt", 100))
	b := q.Add(testEntry("b.txt", 100))
	if q.Drained() {
		t.Error("Queue with pending files reported drained")
	}

	q.MarkUploading(a.ID)
	q.Complete(a.ID)
	q.MarkUploading(b.ID)
	q.Fail(b.ID, errors.New("boom"))

	if !q.Drained() {
		t.Error("Queue with all-terminal files not drained")
	}
	if q.CompletedCount() != 1 {
		t.Errorf("Expected 1 completed, got %d", q.CompletedCount())
	}

	stats := q.GetStats()
	if stats.Completed != 1 || stats.Failed != 1 || stats.Total() != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

// TestQueuePublishesEvents verifies the lifecycle events reach subscribers.
func TestQueuePublishesEvents(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()
	ch := bus.SubscribeAll()

	q := NewQueue(bus)
	f := q.Add(testEntry("a.txt", 100))
	q.MarkUploading(f.ID)
	q.RecordProgress(f.ID, 50)
	q.Complete(f.ID)

	want := []events.EventType{
		events.EventFileQueued,
		events.EventFileStarted,
		events.EventFileProgress,
		events.EventFileCompleted,
	}
	for i, wantType := range want {
		ev := <-ch
		if ev.Type() != wantType {
			t.Fatalf("Event %d: expected %s, got %s", i, wantType, ev.Type())
		}
		fe, ok := ev.(*events.FileEvent)
		if !ok {
			t.Fatalf("Event %d: not a FileEvent", i)
		}
		if fe.FileID != f.ID {
			t.Errorf("Event %d: wrong file ID", i)
		}
	}
}
