// Package progress renders transfer progress to the terminal. It consumes
// the event stream; it never reaches into the queue.
package progress

import (
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/shelfdrop/shelfdrop-cli/internal/events"
)

// Reporter receives byte-level progress for a single operation. The session
// layer reports through this so tests and non-TTY runs can swap in NoOp.
type Reporter interface {
	// Start begins a new operation of totalBytes with a display label.
	Start(label string, totalBytes int64)
	// Set moves the operation to an absolute byte position.
	Set(bytes int64)
	// Finish completes the operation and releases the display line.
	Finish()
}

// IsTerminal reports whether stderr is an interactive terminal. Progress
// bars are suppressed for piped or redirected output.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// NoOpReporter discards all progress. Used when output is not a TTY or
// when --quiet is set.
type NoOpReporter struct{}

func (NoOpReporter) Start(string, int64) {}
func (NoOpReporter) Set(int64)           {}
func (NoOpReporter) Finish()             {}

// BarReporter renders one operation at a time as a single progress bar.
// Used for single-file uploads where the multi-bar display is overkill.
type BarReporter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewBarReporter writes bars to out (normally stderr).
func NewBarReporter(out io.Writer) *BarReporter {
	return &BarReporter{out: out}
}

func (r *BarReporter) Start(label string, totalBytes int64) {
	r.bar = progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { io.WriteString(r.out, "\n") }),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
}

func (r *BarReporter) Set(bytes int64) {
	if r.bar != nil {
		r.bar.Set64(bytes)
	}
}

func (r *BarReporter) Finish() {
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
}

// WatchSingle drives a Reporter from the event stream. It is the one-file
// counterpart to UploadUI: a single bar, no multi-bar machinery. Returns
// when the channel closes.
func WatchSingle(ch <-chan events.Event, r Reporter) {
	for ev := range ch {
		fe, ok := ev.(*events.FileEvent)
		if !ok {
			continue
		}
		switch fe.Type() {
		case events.EventFileStarted:
			r.Start(fe.Name, fe.Size)
		case events.EventFileProgress:
			r.Set(fe.BytesUploaded)
		case events.EventFileCompleted:
			r.Set(fe.Size)
			r.Finish()
		case events.EventFileFailed, events.EventFileRemoved:
			r.Finish()
		}
	}
}
