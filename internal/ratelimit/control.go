// Package ratelimit classifies failed fetches against the forge's own
// rate-limit signalling and decides how long polling should be gated.
// It is the only component allowed to raise a planned sleep beyond what
// internal/planner computed.
package ratelimit

import (
	"strings"
	"time"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
	"github.com/ratewatch/ci-rate-monitor/internal/planner"
)

// Kind classifies a failed fetch's rate-limit flavor.
type Kind int

const (
	// None means the failure is not a rate-limit event at all.
	None Kind = iota
	Primary
	Secondary
)

const (
	SecondaryDefaultWaitMS int64 = 60_000
	SecondaryBackoffCapMS  int64 = 30 * 60 * 1000
	MaxSecondaryRetries    int   = 5
)

// ErrorDetails is the subset of a failed HTTP response the classifier
// and the decision function need.
type ErrorDetails struct {
	Status             int
	Message            string
	RateLimitRemaining *int64
	RetryAfterSeconds  *int64
	Reset              *int64
}

// Classify determines whether a failed fetch's details represent a
// primary quota exhaustion, a secondary abuse-detection trigger, or no
// rate-limit event at all.
func Classify(details ErrorDetails) Kind {
	if details.Status != 403 && details.Status != 429 {
		return None
	}
	lower := strings.ToLower(details.Message)
	if strings.Contains(lower, "secondary") || strings.Contains(lower, "abuse") {
		return Secondary
	}
	if details.RateLimitRemaining != nil && *details.RateLimitRemaining == 0 {
		return Primary
	}
	return None
}

// Decision is the outcome of handling a classified rate-limit error.
type Decision struct {
	WaitMS int64
	Fatal  bool
	State  model.RateLimitControlState
}

// Handle decides how long to wait given a classified rate-limit event
// and the current control state. nowMS is the current instant in epoch
// milliseconds.
func Handle(kind Kind, details ErrorDetails, state model.RateLimitControlState, nowMS int64) Decision {
	switch kind {
	case Primary:
		wait := int64(0)
		if details.Reset != nil {
			wait = max0(*details.Reset*1000 - nowMS)
		}
		next := int64(nowMS + wait)
		state.BlockedUntilMS = &next
		return Decision{WaitMS: wait, State: state}

	case Secondary:
		n := state.SecondaryConsecutive + 1

		candidates := []int64{}
		if details.RetryAfterSeconds != nil {
			candidates = append(candidates, *details.RetryAfterSeconds*1000)
		}
		if details.Reset != nil {
			candidates = append(candidates, max0(*details.Reset*1000-nowMS))
		}
		backoff := SecondaryDefaultWaitMS * pow2(n-1)
		if backoff > SecondaryBackoffCapMS {
			backoff = SecondaryBackoffCapMS
		}
		candidates = append(candidates, backoff)

		wait := candidates[0]
		for _, c := range candidates[1:] {
			if c > wait {
				wait = c
			}
		}

		state.SecondaryConsecutive = n
		next := nowMS + wait
		state.BlockedUntilMS = &next

		fatal := n > MaxSecondaryRetries
		return Decision{WaitMS: wait, Fatal: fatal, State: state}

	default:
		return Decision{State: state}
	}
}

// OnSuccess resets the control state after a successful fetch: any
// secondary-rate-limit streak and block deadline are cleared.
func OnSuccess(state model.RateLimitControlState) model.RateLimitControlState {
	state.SecondaryConsecutive = 0
	state.BlockedUntilMS = nil
	return state
}

// Effective returns the control state with an already-elapsed
// blocked_until_ms normalised to nil: readers must treat a past
// deadline as equivalent to no block at all.
func Effective(state model.RateLimitControlState, nowMS int64) model.RateLimitControlState {
	if state.BlockedUntilMS != nil && *state.BlockedUntilMS <= nowMS {
		state.BlockedUntilMS = nil
	}
	return state
}

// ApplyGate overrides the planner's output when the control state is
// still blocking: the gated sleep never runs shorter than the time
// remaining on the block.
func ApplyGate(p planner.Plan, state model.RateLimitControlState, nowMS int64) (planner.Plan, bool) {
	state = Effective(state, nowMS)
	if state.BlockedUntilMS == nil {
		return p, false
	}
	remaining := *state.BlockedUntilMS - nowMS
	if remaining > p.SleepMs {
		p.SleepMs = remaining
	}
	p.Burst = false
	p.BurstGapMs = 0
	return p, true
}

func max0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func pow2(n int) int64 {
	if n <= 0 {
		return 1
	}
	var r int64 = 1
	for i := 0; i < n; i++ {
		r *= 2
	}
	return r
}

// Millis is a tiny seam so callers in this package's tests can avoid
// depending on wall-clock time; production code always passes an
// explicit time.Time converted with Millis.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
