// Package uploader implements the transfer strategies, the fallback
// controller that demotes multipart to chunked, and the session that
// drives files from the pending queue through a strategy to completion.
package uploader

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfdrop/shelfdrop-cli/internal/queue"
)

// Interchangeable strategy names, reported in logs and fallback events.
const (
	StrategyChunked   = "chunked"
	StrategyMultipart = "multipart"
)

// ErrRetryRequired is returned by Upload when the session switched the
// active strategy mid-transfer. The caller re-queues the file and retries
// under the new strategy with fresh progress counters; it is not a file
// failure.
var ErrRetryRequired = errors.New("strategy changed, retry required")

// Strategy moves one file's bytes to the server. Implementations report
// progress through the queue and must stop promptly once the file's
// context is cancelled.
//
// A strategy in flight for one file keeps running under the binding it
// started with even after the session swaps the active strategy; only
// files started afterwards see the replacement.
type Strategy interface {
	// Name returns the strategy identifier for logs and events.
	Name() string

	// Upload transfers the file at f.Path to the server, recording
	// progress against f.ID. It returns nil only when the server has
	// acknowledged the complete file.
	Upload(ctx context.Context, q *queue.Queue, f queue.FileSnapshot) error
}

// wrapStrategyErr annotates a strategy failure with the file it belonged to.
func wrapStrategyErr(strategy, name string, err error) error {
	return fmt.Errorf("%s upload of %q: %w", strategy, name, err)
}
