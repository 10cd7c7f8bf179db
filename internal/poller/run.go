package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/page"
	"github.com/JakeFAU/progress-poller/internal/progress"
)

// run is the state of one session. It is owned by a single goroutine.
type run struct {
	p         *Poller
	jobID     string
	sessionID [16]byte
	els       elements
	logger    *zap.Logger

	started  time.Time
	tick     int
	failures int
}

func (r *run) loop(ctx context.Context) (Outcome, error) {
	r.started = r.p.clock.Now()
	r.logger.Info("poll session started", zap.Duration("interval", r.p.interval))
	r.emit(progress.Event{Stage: progress.StageSessionStart})

	for {
		if err := ctx.Err(); err != nil {
			return r.cancel(err)
		}
		outcome, done, err := r.step(ctx)
		if done {
			return outcome, err
		}
		select {
		case <-ctx.Done():
			return r.cancel(ctx.Err())
		case <-r.p.clock.After(r.p.interval):
		}
	}
}

// step performs one tick. done reports that the session has stopped.
func (r *run) step(ctx context.Context) (Outcome, bool, error) {
	r.tick++
	begin := r.p.clock.Now()
	resp, code, err := r.p.fetcher.Fetch(ctx, r.jobID)
	latency := nonNegative(r.p.clock.Now().Sub(begin))

	if err != nil {
		if ctx.Err() != nil {
			outcome, cerr := r.cancel(ctx.Err())
			return outcome, true, cerr
		}
		return r.failed(err, code, latency)
	}
	r.failures = 0

	if resp.Failed() {
		r.els.err.SetText(resp.Error)
		r.els.err.RemoveClass(page.HiddenClass)
		r.logger.Info("job reported an error", zap.Int("tick", r.tick), zap.String("error", resp.Error))
		r.emitTerminal(progress.StageSessionError, resp, code, resp.Error)
		return OutcomeFailed, true, nil
	}

	r.els.bar.SetStyle("width", resp.Width())
	r.els.label.SetText(resp.Message)

	if resp.Ready {
		r.els.ready.RemoveClass(page.HiddenClass)
		r.logger.Info("job ready", zap.Int("tick", r.tick))
		r.emitTerminal(progress.StageSessionReady, resp, code, "")
		return OutcomeReady, true, nil
	}

	r.logger.Debug("progress tick",
		zap.Int("tick", r.tick),
		zap.Float64("progress", resp.Progress),
		zap.String("message", resp.Message),
		zap.String("status", resp.Status),
	)
	r.emit(progress.Event{
		Stage:      progress.StageTickUpdate,
		Tick:       r.tick,
		Progress:   resp.Progress,
		Message:    resp.Message,
		StatusCode: code,
		Dur:        latency,
	})
	return OutcomeNone, false, nil
}

func (r *run) failed(err error, code int, latency time.Duration) (Outcome, bool, error) {
	r.failures++
	r.logger.Error("progress tick failed",
		zap.Int("tick", r.tick),
		zap.Int("status_code", code),
		zap.Int("consecutive_failures", r.failures),
		zap.Error(err),
	)
	r.emit(progress.Event{
		Stage:      progress.StageTickFailure,
		Tick:       r.tick,
		StatusCode: code,
		Dur:        latency,
		Note:       err.Error(),
	})
	if r.p.maxFailures > 0 && r.failures >= r.p.maxFailures {
		r.logger.Warn("abandoning poll session", zap.Int("consecutive_failures", r.failures))
		r.emit(progress.Event{
			Stage: progress.StageSessionAbandoned,
			Tick:  r.tick,
			Dur:   r.runtime(),
			Note:  err.Error(),
		})
		return OutcomeAbandoned, true, fmt.Errorf("%w after %d attempts: %w", ErrTooManyFailures, r.failures, err)
	}
	return OutcomeNone, false, nil
}

func (r *run) cancel(cause error) (Outcome, error) {
	r.logger.Info("poll session canceled", zap.Int("ticks", r.tick), zap.Error(cause))
	r.emit(progress.Event{
		Stage: progress.StageSessionCanceled,
		Tick:  r.tick,
		Dur:   r.runtime(),
		Note:  cause.Error(),
	})
	if !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("%w: %w", context.Canceled, cause)
	}
	return OutcomeCanceled, cause
}

func (r *run) emitTerminal(stage progress.Stage, resp progress.Response, code int, note string) {
	r.emit(progress.Event{
		Stage:      stage,
		Tick:       r.tick,
		Progress:   resp.Progress,
		Message:    resp.Message,
		StatusCode: code,
		Dur:        r.runtime(),
		Note:       note,
	})
}

func (r *run) emit(evt progress.Event) {
	evt.SessionID = r.sessionID
	evt.JobID = r.jobID
	evt.TS = r.p.clock.Now()
	r.p.emitter.Emit(evt)
}

func (r *run) runtime() time.Duration {
	return nonNegative(r.p.clock.Now().Sub(r.started))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
