package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shelfdrop/shelfdrop-cli/internal/api"
	"github.com/shelfdrop/shelfdrop-cli/internal/events"
	"github.com/shelfdrop/shelfdrop-cli/internal/logging"
)

// ErrNothingToClaim is returned when finalization is attempted before the
// server has accepted at least one file.
var ErrNothingToClaim = errors.New("no completed uploads to claim")

// Finalizer claims a drained upload session: one login call per attempt,
// exchanging the shelf secret for the account that owns the uploaded files.
// The server reports whether this was the account's first claim, which the
// caller surfaces differently (welcome flow vs. plain confirmation).
type Finalizer struct {
	api      *api.Client
	eventBus *events.EventBus
	logger   *logging.Logger
}

// NewFinalizer wires the claim step to the API client and event bus.
func NewFinalizer(apiClient *api.Client, eventBus *events.EventBus, logger *logging.Logger) *Finalizer {
	return &Finalizer{api: apiClient, eventBus: eventBus, logger: logger}
}

// Finalize performs exactly one claim attempt. A bad secret comes back as
// api.ErrBadSecret so the caller can re-prompt; uploaded files stay claimed
// to no one until a later attempt succeeds, and completed uploads are never
// rolled back by a failed claim.
func (f *Finalizer) Finalize(ctx context.Context, secret, notes string) (*api.LoginResult, error) {
	result, err := f.api.Login(ctx, secret, notes)
	if err != nil {
		return nil, fmt.Errorf("finalizing session: %w", err)
	}

	f.logger.Info().
		Str("username", result.Username).
		Bool("firstLogin", result.FirstLogin).
		Msg("Session finalized")

	if f.eventBus != nil {
		f.eventBus.Publish(&events.FinalizedEvent{
			BaseEvent: events.BaseEvent{
				EventType: events.EventSessionFinalized,
				Time:      time.Now(),
			},
			Username:   result.Username,
			FirstLogin: result.FirstLogin,
		})
	}
	return result, nil
}
