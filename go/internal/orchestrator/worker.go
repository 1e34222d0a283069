package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/basta/go/internal/events"
	"github.com/rs/zerolog/log"
)

// Run starts the worker pool and the recovery sweep, and blocks until ctx is
// done. On return every timer of this process is stopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.cfg.Workers).
		Dur("recovery_interval", o.cfg.RecoveryInterval).
		Msg("orchestrator started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	// rounds whose timers died with a previous process
	o.recover(ctx)

	var tick <-chan time.Time
	if o.cfg.RecoveryInterval > 0 {
		ticker := o.clock.NewTicker(o.cfg.RecoveryInterval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", o.instanceID).Msg("orchestrator shutdown requested")
			o.stopAllTimers()
			o.cancel()
			cancelWorkers()
			wg.Wait()
			log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
			return nil
		case <-tick:
			o.recover(ctx)
		}
	}
}

// recover enqueues expired rounds that no local timer is tracking.
func (o *Orchestrator) recover(ctx context.Context) {
	expired, err := o.rounds.ExpiredRounds(ctx, o.cfg.RecoveryBatch)
	if err != nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("recovery sweep failed")
		return
	}
	for _, r := range expired {
		if o.hasTimer(r.RoundID) {
			continue
		}
		log.Warn().
			Str("game_code", r.GameCode).
			Int64("round_id", r.RoundID).
			Time("ends_at", r.EndsAt).
			Msg("recovering expired round")
		o.enqueue(closeRequest{roundID: r.RoundID, code: r.GameCode, reason: events.ReasonTimeout})
	}
}

// worker closes due rounds from the work channel
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Debug().
		Str("instance", o.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case req := <-o.workCh:
			log.Info().
				Int64("round_id", req.roundID).
				Str("reason", req.reason).
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker closing round")

			if err := o.closeRound(ctx, req); err != nil {
				log.Error().
					Err(err).
					Int64("round_id", req.roundID).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("worker round close failed")
			}
			o.end(req.roundID)
		}
	}
}
