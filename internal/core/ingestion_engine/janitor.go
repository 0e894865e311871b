package ingestion_engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Start runs numWorkers goroutines that abort expired ingestion sessions, plus a
// ticker that looks for them every JanitorInterval. Everything stops with ctx.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Debug().Int("worker", w).Msg("janitor: worker shutting down")
					return
				case id := <-i.jobs:
					i.abortExpired(ctx, id, w)
				}
			}
		}(w)
	}

	interval := i.cfg.JanitorInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				i.Sweep(ctx)
			}
		}
	}()
}

// Enqueue schedules a session for abortion. It blocks while the queue is full.
func (i *DocumentIngestor) Enqueue(ctx context.Context, sessionID string) {
	select {
	case i.jobs <- sessionID:
	case <-ctx.Done():
	}
}

// Sweep queues every open session whose deadline has passed.
func (i *DocumentIngestor) Sweep(ctx context.Context) int {
	expired, err := i.sessions.Expired(ctx, i.now())
	if err != nil {
		log.Error().Err(err).Msg("janitor: could not list expired sessions")
		return 0
	}
	for _, s := range expired {
		i.Enqueue(ctx, s.ID)
	}
	return len(expired)
}

func (i *DocumentIngestor) abortExpired(ctx context.Context, id string, worker int) {
	n, err := i.Abort(ctx, id)
	switch {
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrSessionNotFound):
		// finalized or aborted between the sweep and now
		log.Debug().Str("session_id", id).Msg("janitor: session already closed")
	case err != nil:
		log.Error().Err(err).Str("session_id", id).Int("worker", worker).Msg("janitor: abort failed")
	default:
		log.Info().Str("session_id", id).Int64("records", n).Int("worker", worker).Msg("janitor: expired session aborted")
	}
}
