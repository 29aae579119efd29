package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const sweepBatch = 100

// StaleExpirer fails exports that waited too long for authorization.
type StaleExpirer interface {
	ExpireStale(ctx context.Context, maxAge time.Duration, limit int) (int, error)
}

// ExportSweepWorker periodically fails exports stuck in a non-terminal
// state for longer than the handoff lifetime. Their handoff records have
// expired, so the callback could only ever report missing data.
type ExportSweepWorker struct {
	exports  StaleExpirer
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// NewExportSweepWorker creates a new ExportSweepWorker.
func NewExportSweepWorker(exports StaleExpirer, maxAge, interval time.Duration, log zerolog.Logger) *ExportSweepWorker {
	return &ExportSweepWorker{
		exports:  exports,
		maxAge:   maxAge,
		interval: interval,
		log:      log.With().Str("component", "export_sweep_worker").Logger(),
	}
}

// Start runs until ctx is cancelled. Call in a goroutine.
func (w *ExportSweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("max_age", w.maxAge).Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep expires batches until a short batch shows nothing is left.
func (w *ExportSweepWorker) sweep(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := w.exports.ExpireStale(ctx, w.maxAge, sweepBatch)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Sweep failed")
			}
			return
		}
		total += n
		if n < sweepBatch {
			break
		}
	}
	if total > 0 {
		w.log.Info().Int("expired", total).Msg("Expired stale exports")
	}
}
