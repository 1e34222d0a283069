package orchestrator

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/basta/go/internal/events"
	"github.com/mcdev12/basta/go/internal/models"
	"github.com/rs/zerolog/log"
)

// roundTimer is the handle of one round's deadline and countdown.
type roundTimer struct {
	roundID  int64
	code     string
	reason   string
	endsAt   time.Time
	deadline clockwork.Timer
	ticker   clockwork.Ticker
	stop     chan struct{}
}

func (rt *roundTimer) halt() {
	stopAndDrainTimer(rt.deadline)
	if rt.ticker != nil {
		rt.ticker.Stop()
	}
	close(rt.stop)
}

// schedule arms the deadline and countdown of a round, replacing any handle
// the round already had.
func (o *Orchestrator) schedule(code string, roundID int64, endsAt time.Time) {
	wait := endsAt.Sub(o.clock.Now())
	if wait <= 0 {
		o.cancelTimer(roundID)
		o.enqueue(closeRequest{roundID: roundID, code: code, reason: events.ReasonTimeout})
		return
	}

	rt := &roundTimer{
		roundID:  roundID,
		code:     code,
		reason:   events.ReasonTimeout,
		endsAt:   endsAt,
		deadline: o.clock.NewTimer(wait),
		stop:     make(chan struct{}),
	}
	if o.cfg.CountdownInterval > 0 {
		rt.ticker = o.clock.NewTicker(o.cfg.CountdownInterval)
	}
	o.replaceTimer(rt)
	go o.watch(rt)

	log.Debug().
		Str("game_code", code).
		Int64("round_id", roundID).
		Time("deadline", endsAt).
		Dur("duration", wait).
		Msg("scheduled round timer")
}

// scheduleRetry re-arms a round whose finalize failed so it is tried again.
func (o *Orchestrator) scheduleRetry(code string, roundID int64, reason string) {
	rt := &roundTimer{
		roundID:  roundID,
		code:     code,
		reason:   reason,
		deadline: o.clock.NewTimer(o.cfg.FinalizeRetry),
		stop:     make(chan struct{}),
	}
	o.replaceTimer(rt)
	go o.watch(rt)

	log.Warn().Int64("round_id", roundID).Dur("retry_in", o.cfg.FinalizeRetry).Msg("scheduled finalize retry")
}

func (o *Orchestrator) watch(rt *roundTimer) {
	var tick <-chan time.Time
	if rt.ticker != nil {
		tick = rt.ticker.Chan()
	}

	for {
		select {
		case <-rt.stop:
			return
		case <-o.ctx.Done():
			return
		case <-tick:
			o.publish(o.ctx, rt.code, events.TypeRoundCountdown, events.RoundCountdownPayload{
				RoundID:  rt.roundID,
				TimeLeft: models.SecondsUntil(rt.endsAt, o.clock.Now()),
			})
		case <-rt.deadline.Chan():
			if !o.removeTimer(rt) {
				return
			}
			if rt.ticker != nil {
				rt.ticker.Stop()
			}
			log.Info().Str("game_code", rt.code).Int64("round_id", rt.roundID).Msg("round timer fired")
			o.enqueue(closeRequest{roundID: rt.roundID, code: rt.code, reason: rt.reason})
			return
		}
	}
}

// replaceTimer atomically replaces the handle of a round, stopping the old one.
func (o *Orchestrator) replaceTimer(rt *roundTimer) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()

	if existing, ok := o.timers[rt.roundID]; ok {
		existing.halt()
		log.Debug().Int64("round_id", rt.roundID).Msg("replaced existing timer")
	}
	o.timers[rt.roundID] = rt
}

// cancelTimer stops and removes the handle of a round, if any.
func (o *Orchestrator) cancelTimer(roundID int64) bool {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()

	rt, ok := o.timers[roundID]
	if !ok {
		return false
	}
	rt.halt()
	delete(o.timers, roundID)
	log.Debug().Int64("round_id", roundID).Msg("cancelled round timer")
	return true
}

// removeTimer drops a fired handle. It reports false when the handle was
// replaced or cancelled in the meantime.
func (o *Orchestrator) removeTimer(rt *roundTimer) bool {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	if o.timers[rt.roundID] != rt {
		return false
	}
	delete(o.timers, rt.roundID)
	return true
}

func (o *Orchestrator) hasTimer(roundID int64) bool {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	_, ok := o.timers[roundID]
	return ok
}

func (o *Orchestrator) stopAllTimers() {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	for id, rt := range o.timers {
		rt.halt()
		log.Debug().Int64("round_id", id).Msg("cancelled timer on shutdown")
	}
	o.timers = make(map[int64]*roundTimer)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// after runs fn once d has elapsed on the orchestrator clock, unless the
// orchestrator shuts down first.
func (o *Orchestrator) after(d time.Duration, fn func(ctx context.Context)) {
	if d <= 0 {
		fn(o.ctx)
		return
	}
	t := o.clock.NewTimer(d)
	go func() {
		select {
		case <-t.Chan():
			fn(o.ctx)
		case <-o.ctx.Done():
			stopAndDrainTimer(t)
		}
	}()
}
