package uploader

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shelfdrop/shelfdrop-cli/internal/api"
	"github.com/shelfdrop/shelfdrop-cli/internal/config"
	"github.com/shelfdrop/shelfdrop-cli/internal/events"
	"github.com/shelfdrop/shelfdrop-cli/internal/logging"
	"github.com/shelfdrop/shelfdrop-cli/internal/queue"
	"github.com/shelfdrop/shelfdrop-cli/internal/scan"
)

func sessionWith(t *testing.T, initial, chunked Strategy, bus *events.EventBus) *Session {
	t.Helper()
	logger := logging.NewDefaultLogger()
	fallback := NewFallbackController(initial, chunked, bus, logger)
	return NewSession(fallback, nil, config.DefaultRestrictions(), bus, logger)
}

func tempSources(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	roots := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
			t.Fatal(err)
		}
		roots = append(roots, path)
	}
	return roots
}

// TestSessionDrainCompletesFiles verifies a clean run drives every file to
// completed.
func TestSessionDrainCompletesFiles(t *testing.T) {
	chunked := &fakeStrategy{name: StrategyChunked}
	s := sessionWith(t, chunked, chunked, nil)

	added, rejected, err := s.AddPaths(tempSources(t, "a.txt", "b.txt", "c.txt"), scan.SourceFileInput)
	if err != nil {
		t.Fatalf("AddPaths failed: %v", err)
	}
	if len(rejected) != 0 || len(added) != 3 {
		t.Fatalf("Expected 3 added, 0 rejected; got %d/%d", len(added), len(rejected))
	}

	stats := s.Drain(context.Background())
	if stats.Completed != 3 || stats.Failed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if chunked.callCount() != 3 {
		t.Errorf("Expected 3 strategy calls, got %d", chunked.callCount())
	}
	if !s.Queue().Drained() {
		t.Error("Queue not drained after Drain returned")
	}
}

// TestSessionAddPathsValidates verifies restriction failures are rejected
// up front without blocking siblings.
func TestSessionAddPathsValidates(t *testing.T) {
	chunked := &fakeStrategy{name: StrategyChunked}
	logger := logging.NewDefaultLogger()
	restrictions := config.DefaultRestrictions()
	restrictions.AllowedExtensions = config.ParseExtensions("txt")

	s := NewSession(NewFallbackController(chunked, chunked, nil, logger), nil, restrictions, nil, logger)

	added, rejected, err := s.AddPaths(tempSources(t, "ok.txt", "bad.exe"), scan.SourceFileInput)
	if err != nil {
		t.Fatalf("AddPaths failed: %v", err)
	}
	if len(added) != 1 || added[0].Name != "ok.txt" {
		t.Errorf("Expected only ok.txt queued, got %v", added)
	}
	if len(rejected) != 1 || rejected[0].Reason == nil {
		t.Errorf("Expected bad.exe rejected with a reason, got %v", rejected)
	}
}

// TestSessionFallbackRetriesUnderChunked verifies the multipart-to-chunked
// demotion path: the failed file restarts under chunked and completes, and
// the fallback event fires once.
func TestSessionFallbackRetriesUnderChunked(t *testing.T) {
	bus := events.NewEventBus(64)
	defer bus.Close()
	fallbackCh := bus.Subscribe(events.EventStrategyFallback)

	multipart := &fakeStrategy{name: StrategyMultipart, errs: []error{errors.New("storage said no")}}
	chunked := &fakeStrategy{name: StrategyChunked}
	s := sessionWith(t, multipart, chunked, bus)

	if _, _, err := s.AddPaths(tempSources(t, "a.txt"), scan.SourceFileInput); err != nil {
		t.Fatal(err)
	}

	stats := s.Drain(context.Background())
	if stats.Completed != 1 || stats.Failed != 0 {
		t.Fatalf("Expected the file to complete under chunked, got %+v", stats)
	}
	if multipart.callCount() != 1 || chunked.callCount() != 1 {
		t.Errorf("Expected 1 multipart + 1 chunked call, got %d/%d", multipart.callCount(), chunked.callCount())
	}

	select {
	case ev := <-fallbackCh:
		if ev.Type() != events.EventStrategyFallback {
			t.Errorf("Unexpected event type %s", ev.Type())
		}
	default:
		t.Error("No fallback event published")
	}
}

// TestSessionChunkedFailureFailsFile verifies exhausted chunked transfers
// fail just that file.
func TestSessionChunkedFailureFailsFile(t *testing.T) {
	chunked := &fakeStrategy{name: StrategyChunked, errs: []error{errors.New("network gone")}}
	s := sessionWith(t, chunked, chunked, nil)

	if _, _, err := s.AddPaths(tempSources(t, "a.txt", "b.txt"), scan.SourceFileInput); err != nil {
		t.Fatal(err)
	}

	stats := s.Drain(context.Background())
	if stats.Failed != 1 || stats.Completed != 1 {
		t.Errorf("Expected 1 failed + 1 completed, got %+v", stats)
	}

	for _, f := range s.ListPending() {
		if f.Status == queue.StatusFailed && f.Error == nil {
			t.Error("Failed file lost its error")
		}
	}
}

// TestSessionRemoveFile verifies a removed file is skipped by Drain.
func TestSessionRemoveFile(t *testing.T) {
	chunked := &fakeStrategy{name: StrategyChunked}
	s := sessionWith(t, chunked, chunked, nil)

	added, _, err := s.AddPaths(tempSources(t, "a.txt", "b.txt"), scan.SourceFileInput)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveFile(added[0].ID); err != nil {
		t.Fatalf("RemoveFile failed: %v", err)
	}

	stats := s.Drain(context.Background())
	if stats.Completed != 1 {
		t.Errorf("Expected 1 completed, got %+v", stats)
	}
	if chunked.callCount() != 1 {
		t.Errorf("Removed file was still uploaded: %d calls", chunked.callCount())
	}
}

// TestSessionFinalizeGating verifies the claim step refuses to run before
// the queue is drained with at least one accepted file, and propagates
// first_login when it does run.
func TestSessionFinalizeGating(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/api/login" {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"username":    "jamie",
			"folder":      "jamie",
			"first_login": true,
		})
	}))
	defer server.Close()

	cfg := &config.Config{ServerURL: server.URL, ProxyMode: "no-proxy", Restrictions: config.DefaultRestrictions()}
	logger := logging.NewDefaultLogger()
	apiClient, err := api.NewClient(cfg, logger)
	if err != nil {
		t.Fatal(err)
	}

	bus := events.NewEventBus(16)
	defer bus.Close()
	finalizedCh := bus.Subscribe(events.EventSessionFinalized)

	chunked := &fakeStrategy{name: StrategyChunked}
	fallback := NewFallbackController(chunked, chunked, bus, logger)
	s := NewSession(fallback, NewFinalizer(apiClient, bus, logger), config.DefaultRestrictions(), bus, logger)

	// Empty queue: nothing to claim.
	if _, err := s.Finalize(context.Background(), "s3cret", ""); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("Expected ErrNothingToClaim on empty queue, got %v", err)
	}

	if _, _, err := s.AddPaths(tempSources(t, "a.txt"), scan.SourceFileInput); err != nil {
		t.Fatal(err)
	}

	// Undrained queue: still nothing to claim.
	if _, err := s.Finalize(context.Background(), "s3cret", ""); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("Expected ErrNothingToClaim before drain, got %v", err)
	}

	s.Drain(context.Background())

	result, err := s.Finalize(context.Background(), "s3cret", "")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if result.Username != "jamie" || !result.FirstLogin {
		t.Errorf("Unexpected claim result: %+v", result)
	}

	ev := <-finalizedCh
	fe, ok := ev.(*events.FinalizedEvent)
	if !ok {
		t.Fatalf("Expected FinalizedEvent, got %T", ev)
	}
	if !fe.FirstLogin || fe.Username != "jamie" {
		t.Errorf("Event carries wrong details: %+v", fe)
	}
}
