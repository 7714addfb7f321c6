// Package worker runs the periodic rhythm analysis loop. One worker runs
// per process; its cadence equals the analysis window so consecutive
// invocations see disjoint ingestion windows.
package worker

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/viaobs/via/internal/analysis"
)

// Worker invokes the analyzer at a fixed cadence until its context is
// cancelled. Errors and panics inside one tick are logged and the loop
// continues; the next tick is the retry.
type Worker struct {
	analyzer *analysis.Analyzer
	interval time.Duration
}

// New returns a worker with the given analysis interval.
func New(analyzer *analysis.Analyzer, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Worker{analyzer: analyzer, interval: interval}
}

// Run blocks until ctx is cancelled. The first analysis fires after one
// full interval so the initial window has data to look at.
func (w *Worker) Run(ctx context.Context) {
	windowSec := int64(w.interval / time.Second)
	log.Info().Int64("intervalSec", windowSec).Msg("Starting rhythm analysis worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Rhythm analysis worker stopping")
			return
		case <-ticker.C:
			w.runOnce(ctx, windowSec)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context, windowSec int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Rhythm analysis panicked; continuing on next tick")
		}
	}()

	result, err := w.analyzer.FindRhythmAnomalies(ctx, windowSec)
	if err != nil {
		log.Error().Err(err).Msg("Periodic rhythm analysis failed; will retry on next tick")
		return
	}
	if len(result.Novel) > 0 || len(result.Frequency) > 0 {
		log.Warn().
			Int("novel", len(result.Novel)).
			Int("frequency", len(result.Frequency)).
			Msg("Anomalies detected; promotion to Tier-2 is automatic")
	} else {
		log.Debug().Msg("No anomalies in this window")
	}
}
