// Package planner picks the next poll delay so the monitor straddles
// bucket resets with the fewest possible polls. It is pure with respect
// to its inputs: "now" is always a parameter.
package planner

import (
	"time"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

// PollDebounceMS is the minimum-interval floor applied to every sleep
// decision, collapsing reset cascades where several buckets roll over
// within seconds of each other.
const PollDebounceMS int64 = 5000

// burstTriggerSeconds is the distance-to-reset below which the planner
// switches to straddling the boundary with two polls instead of one.
const burstTriggerSeconds = 8.0

// Plan is the planner's decision for the next poll.
type Plan struct {
	SleepMs    int64
	Burst      bool
	BurstGapMs int64
}

// Next computes the next poll plan from the current reducer state, the
// configured base interval, and the current instant.
func Next(state *model.ReducerState, baseInterval time.Duration, now time.Time) Plan {
	nowSec := float64(now.Unix())
	window := 2 * baseInterval.Seconds()

	haveCandidate := false
	dStar := 0.0

	if state != nil {
		for _, b := range state.Buckets {
			delta := float64(b.LastReset) - nowSec
			if delta > 0 && delta <= window {
				if !haveCandidate || delta < dStar {
					dStar = delta
					haveCandidate = true
				}
			}
		}
	}

	var p Plan
	if !haveCandidate {
		p = Plan{SleepMs: baseInterval.Milliseconds(), Burst: false}
	} else if dStar <= burstTriggerSeconds {
		dStarMs := int64(dStar * 1000)
		sleep := dStarMs - 2000
		if sleep < 0 {
			sleep = 0
		}
		gap := dStarMs + 2000
		if gap < 4000 {
			gap = 4000
		}
		p = Plan{SleepMs: sleep, Burst: true, BurstGapMs: gap}
	} else {
		sleepMs := int64((dStar - 4) * 1000)
		floor := baseInterval.Milliseconds() / 4
		ceil := baseInterval.Milliseconds()
		if sleepMs < floor {
			sleepMs = floor
		}
		if sleepMs > ceil {
			sleepMs = ceil
		}
		p = Plan{SleepMs: sleepMs, Burst: false}
	}

	p.SleepMs = debounce(p.SleepMs)
	if p.Burst {
		p.BurstGapMs = debounce(p.BurstGapMs)
	}
	return p
}

func debounce(ms int64) int64 {
	if ms < PollDebounceMS {
		return PollDebounceMS
	}
	return ms
}
