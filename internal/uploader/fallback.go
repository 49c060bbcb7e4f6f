package uploader

import (
	"sync"
	"time"

	"github.com/shelfdrop/shelfdrop-cli/internal/events"
	"github.com/shelfdrop/shelfdrop-cli/internal/logging"
	"github.com/shelfdrop/shelfdrop-cli/internal/queue"
)

// FallbackController holds the session's active strategy binding and demotes
// it from multipart to chunked on the first multipart failure. Demotion is
// one-way for the life of the session; there is no promotion path back.
//
// Transfers already in flight keep the binding they started with. The swap
// only changes what Active returns for uploads started afterwards, plus the
// retry of the transfer whose failure triggered it.
type FallbackController struct {
	mu      sync.Mutex
	active  Strategy
	chunked Strategy
	demoted bool

	eventBus *events.EventBus
	logger   *logging.Logger
}

// NewFallbackController starts with initial active. chunked is the strategy
// demotion falls back to; when initial is already the chunked strategy the
// controller never demotes (there is nothing to fall back from).
func NewFallbackController(initial, chunked Strategy, eventBus *events.EventBus, logger *logging.Logger) *FallbackController {
	return &FallbackController{
		active:   initial,
		chunked:  chunked,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Active returns the current strategy binding. Callers hold the returned
// value for the duration of one transfer; a concurrent demotion does not
// affect them.
func (c *FallbackController) Active() Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Demoted reports whether the session has fallen back to chunked.
func (c *FallbackController) Demoted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.demoted
}

// HandleFailure maps a strategy-level failure to its session outcome.
//
// A multipart failure demotes the session (first time) and returns
// ErrRetryRequired so the caller restarts the file under the chunked
// binding with fresh progress. A chunked failure is final: the original
// error comes back and the file fails. Sibling transfers are unaffected
// either way.
func (c *FallbackController) HandleFailure(f queue.FileSnapshot, strategyName string, err error) error {
	if strategyName != StrategyMultipart {
		return err
	}

	c.mu.Lock()
	first := !c.demoted
	if first {
		c.demoted = true
		c.active = c.chunked
	}
	c.mu.Unlock()

	if first {
		c.logger.Warn().
			Err(err).
			Str("file", f.Name).
			Msg("Multipart upload failed, falling back to chunked for this session")

		if c.eventBus != nil {
			c.eventBus.Publish(&events.FallbackEvent{
				BaseEvent: events.BaseEvent{
					EventType: events.EventStrategyFallback,
					Time:      time.Now(),
				},
				FileID: f.ID,
				Reason: err,
			})
		}
	}

	return ErrRetryRequired
}
