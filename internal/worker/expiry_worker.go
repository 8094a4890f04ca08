package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// expiryBatch caps the sessions handled per sweep.
const expiryBatch = 100

// ExpiryWorker is the server-side timer. Each sweep submits IN_PROGRESS
// sessions whose end passed more than the grace period ago, and retries
// SCORING sessions whose claim lapsed. It races the other submitters like
// any of them.
type ExpiryWorker struct {
	sessions  service.SessionStore
	submitter service.Submitter
	clock     service.Clock
	grace     time.Duration
	interval  time.Duration
	log       zerolog.Logger
}

func NewExpiryWorker(
	sessions service.SessionStore,
	submitter service.Submitter,
	clock service.Clock,
	grace, interval time.Duration,
	log zerolog.Logger,
) *ExpiryWorker {
	return &ExpiryWorker{
		sessions:  sessions,
		submitter: submitter,
		clock:     clock,
		grace:     grace,
		interval:  interval,
		log:       log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start runs sweeps every interval until ctx is cancelled. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep submits every overdue session once and returns how many it submitted.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	now := w.clock.Now()
	overdue, err := w.sessions.ListExpired(ctx, now.Add(-w.grace), now, expiryBatch)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("List expired sessions failed")
		}
		return 0
	}

	submitted := 0
	for i := range overdue {
		if ctx.Err() != nil {
			break
		}
		s := &overdue[i]
		_, err := w.submitter.Submit(ctx, s.ID, nil, model.ReasonTimerExpired)
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, service.ErrClaimTimeout), errors.Is(err, service.ErrNoActiveSession):
			// Another submitter is finishing it, or a restart discarded it.
			w.log.Debug().Err(err).Str("session_id", s.ID.String()).Msg("Skipped expired session")
		default:
			w.log.Error().Err(err).Str("session_id", s.ID.String()).Msg("Expiry submit failed")
		}
	}

	if submitted > 0 {
		w.log.Info().Int("count", submitted).Msg("Expired sessions submitted")
	}
	return submitted
}
