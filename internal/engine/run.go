package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/codex/internal/audit"
	"github.com/roach88/codex/internal/clock"
	"github.com/roach88/codex/internal/ir"
)

// Run is the scheduler loop. Every PassInterval it runs a global pass;
// between passes it drains published events. Blocks until ctx is cancelled
// or the engine is disposed.
//
// ERROR HANDLING: a failed pass or event is logged and the loop continues.
// Retrying here would duplicate ledger records; the coordinator already
// retries failed pairs on the next pass.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.PassInterval()
	slog.Info("engine starting", "pass_interval", interval)

	tick := make(chan struct{}, 1)
	var timer clock.Timer
	arm := func() {
		timer = e.wall.AfterFunc(interval, func() {
			select {
			case tick <- struct{}{}:
			default:
			}
		})
	}
	arm()
	defer func() { timer.Stop() }()

	for {
		e.Flush(ctx)

		select {
		case <-ctx.Done():
			e.Flush(context.WithoutCancel(ctx))
			slog.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.done:
			slog.Info("engine stopping: disposed")
			return nil

		case <-tick:
			if _, err := e.coord.RunGlobalPass(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("global pass failed", "error", err)
			}
			arm()

		case <-e.queue.Wait():
			// The signal channel closes with the queue; Flush runs at the
			// top of the loop and e.done ends it.
		}
	}
}

// Flush drains every queued event synchronously and returns how many were
// handled.
func (e *Engine) Flush(ctx context.Context) int {
	n := 0
	for {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			return n
		}
		e.handleEvent(ctx, ev)
		n++
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev ir.Event) {
	switch ev.Type {
	case ir.EventPassSummary:
		if ev.Pass == nil {
			slog.Error("pass event missing summary")
			return
		}
		s := *ev.Pass
		e.recorder.RecordOrLog(ctx, audit.ActionPassSummary, s.Failed...)
		e.metrics.ObservePass(s)
		e.metrics.SetOverallHealth(e.health.Report().OverallHealth)

	case ir.EventAlert:
		if ev.Alert == nil {
			slog.Error("alert event missing alert")
			return
		}
		a := *ev.Alert
		slog.Warn("health alert",
			"entity_id", a.EntityID,
			"severity", a.Severity,
			"value", a.Value,
			"threshold", a.Threshold,
		)
		e.recorder.RecordOrLog(ctx, audit.ActionHealthAlert, a.EntityID)
		e.metrics.ObserveAlert(a)

	case ir.EventValidation:
		if ev.Report == nil {
			slog.Error("validation event missing report")
			return
		}
		e.publishReport(ctx, *ev.Report)

	default:
		slog.Error("unknown event type", "type", ev.Type)
	}
}
