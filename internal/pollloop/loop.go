// Package pollloop wires the reducer, planner, rate-limit control, and
// state store into the child process's sequencing state machine:
// fetch, reduce, persist, plan, gate, sleep, repeat until SIGTERM or a
// fatal rate-limit condition.
package pollloop

import (
	"context"
	"errors"
	"time"

	"github.com/ratewatch/ci-rate-monitor/internal/config"
	"github.com/ratewatch/ci-rate-monitor/internal/forgeclient"
	"github.com/ratewatch/ci-rate-monitor/internal/logging"
	"github.com/ratewatch/ci-rate-monitor/internal/metrics"
	"github.com/ratewatch/ci-rate-monitor/internal/model"
	"github.com/ratewatch/ci-rate-monitor/internal/planner"
	"github.com/ratewatch/ci-rate-monitor/internal/ratelimit"
	"github.com/ratewatch/ci-rate-monitor/internal/reducer"
	"github.com/ratewatch/ci-rate-monitor/internal/rmerrors"
	"github.com/ratewatch/ci-rate-monitor/internal/statestore"
)

// diagnosticsRingSize bounds the ring of poll log entries kept in
// persisted state when diagnostics mode is on.
const diagnosticsRingSize = 50

// Fetcher is the subset of forgeclient.Client the loop depends on, so
// tests can substitute a scripted sequence of responses/errors.
type Fetcher interface {
	FetchRateLimit(ctx context.Context) (model.RateLimitResponse, error)
}

var _ Fetcher = (*forgeclient.Client)(nil)

// Clock lets tests run the state machine without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Sleep blocks for d, checking ctx for cancellation at least once a
// second so a long planned sleep still reacts to shutdown promptly.
func (realClock) Sleep(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		tick := remaining
		if tick > time.Second {
			tick = time.Second
		}
		timer := time.NewTimer(tick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Loop is the child process's state machine.
type Loop struct {
	cfg     *config.Config
	fetcher Fetcher
	store   *statestore.Store
	log     logging.Logger
	metrics *metrics.Registry // nil when diagnostics is off
	streak  *rmerrors.FailureStreak
	clock   Clock

	control model.RateLimitControlState
}

// New builds a Loop. metricsReg may be nil when cfg.Diagnostics is
// false.
func New(cfg *config.Config, fetcher Fetcher, store *statestore.Store, log logging.Logger, metricsReg *metrics.Registry) *Loop {
	return &Loop{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		log:     log,
		metrics: metricsReg,
		streak:  rmerrors.NewFailureStreak(3),
		clock:   realClock{},
	}
}

// Run executes the state machine until ctx is cancelled (SIGTERM) or a
// fatal condition is reached. It always returns nil on a clean
// shutdown; an error return means state could not be persisted at all,
// which is the one failure this loop cannot route through ReducerState
// itself.
func (l *Loop) Run(ctx context.Context) error {
	state := model.NewReducerState()
	now := l.clock.Now()
	nowTS := model.FormatTS(now)
	state.StartedAtTS = &nowTS
	state.PollerStartedAtTS = &nowTS
	if err := l.persist(state); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return l.stop(state, "context cancelled")
		}

		fatal := l.poll(ctx, state)
		if fatal {
			return l.stop(state, "fatal rate-limit condition")
		}
		if ctx.Err() != nil {
			return l.stop(state, "context cancelled")
		}

		plan := planner.Next(state, l.cfg.BaseInterval, l.clock.Now())
		gated, _ := ratelimit.ApplyGate(plan, l.control, ratelimit.Millis(l.clock.Now()))

		l.clock.Sleep(ctx, time.Duration(gated.SleepMs)*time.Millisecond)

		if gated.Burst {
			if ctx.Err() != nil {
				return l.stop(state, "context cancelled")
			}
			if fatal := l.poll(ctx, state); fatal {
				return l.stop(state, "fatal rate-limit condition")
			}
			l.clock.Sleep(ctx, time.Duration(gated.BurstGapMs)*time.Millisecond)
		}
	}
}

// poll performs one fetch+reduce+persist cycle and reports whether a
// fatal condition was reached.
func (l *Loop) poll(ctx context.Context, state *model.ReducerState) (fatal bool) {
	state.PollCount++
	now := l.clock.Now()
	nowTS := model.FormatTS(now)
	state.LastPollTS = &nowTS

	resp, err := l.fetcher.FetchRateLimit(ctx)
	if err == nil {
		buckets, results := reducer.Reduce(state.Buckets, resp, nowTS)
		state.Buckets = buckets
		for _, r := range results {
			if r.RotationWithoutReset {
				if l.log != nil {
					l.log.Infof("bucket %s: reset timestamp rotated without a used-counter drop", r.Bucket)
				}
				l.appendDiagnostic(state, "rotation_without_reset", r.Bucket, "")
			}
		}
		l.control = ratelimit.OnSuccess(l.control)
		state.RateLimitControl = l.control
		state.ConsecutiveNonRateLimitFailures = 0
		l.streak.RecordSuccess()
		state.LastError = nil
		l.appendDiagnostic(state, "poll_success", "", "")
		l.persistBestEffort(state)
		return false
	}

	var httpErr *rmerrors.HTTPError
	if errors.As(err, &httpErr) && httpErr.RateLimit != nil {
		kind := ratelimit.Classify(*httpErr.RateLimit)
		if kind != ratelimit.None {
			decision := ratelimit.Handle(kind, *httpErr.RateLimit, l.control, ratelimit.Millis(now))
			l.control = decision.State
			state.RateLimitControl = l.control
			msg := err.Error()
			state.LastError = &msg
			l.appendDiagnostic(state, "rate_limit_gated", "", msg)
			l.persistBestEffort(state)
			return decision.Fatal
		}
	}

	// Non-rate-limit failure: transport, HTTP-generic, or parse.
	state.FailureCount++
	msg := err.Error()
	state.LastError = &msg
	state.ConsecutiveNonRateLimitFailures = l.streak.RecordFailure()
	l.appendDiagnostic(state, "poll_failure", "", msg)
	l.persistBestEffort(state)
	return false
}

func (l *Loop) stop(state *model.ReducerState, reason string) error {
	nowTS := model.FormatTS(l.clock.Now())
	state.StoppedAtTS = &nowTS
	l.appendDiagnostic(state, "stopped", "", reason)
	return l.persist(state)
}

func (l *Loop) persist(state *model.ReducerState) error {
	if err := l.store.Write(state); err != nil {
		return &rmerrors.StateIOError{Err: err}
	}
	if l.metrics != nil {
		l.metrics.Observe(state)
		if err := l.metrics.WriteTextfile(l.store.MetricsPath()); err != nil && l.log != nil {
			l.log.Warnf("metrics textfile write failed: %v", err)
		}
	}
	if l.cfg.Diagnostics {
		if err := l.store.WriteDebugYAML(state); err != nil && l.log != nil {
			l.log.Warnf("debug dump write failed: %v", err)
		}
	}
	return nil
}

// persistBestEffort logs a write failure without treating it as fatal:
// the loop continues with its in-memory state unchanged and the next
// successful write supersedes whatever was lost.
func (l *Loop) persistBestEffort(state *model.ReducerState) {
	if err := l.persist(state); err != nil && l.log != nil {
		l.log.Warnf("state persist failed, will retry next cycle: %v", err)
	}
}

func (l *Loop) appendDiagnostic(state *model.ReducerState, event, bucket, detail string) {
	if !l.cfg.Diagnostics {
		return
	}
	entry := model.DiagnosticsEntry{
		TS:     model.FormatTS(l.clock.Now()),
		Event:  event,
		Bucket: bucket,
		Detail: detail,
	}
	state.Diagnostics = append(state.Diagnostics, entry)
	if len(state.Diagnostics) > diagnosticsRingSize {
		state.Diagnostics = state.Diagnostics[len(state.Diagnostics)-diagnosticsRingSize:]
	}
}
