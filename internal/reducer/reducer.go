// Package reducer turns a stream of discretely-sampled rate-limit
// snapshots into an accurate per-bucket cumulative usage count. Every
// function here is pure: no clock reads, no I/O, no package-level
// state. The timestamp is always a parameter so replay and property
// tests can drive it directly.
package reducer

import (
	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

// UpdateResult describes the delta a single updateBucket call produced.
type UpdateResult struct {
	Bucket        string
	Delta         int64
	Anomaly       bool
	WindowCrossed bool
	// RotationWithoutReset flags a sample whose reset timestamp changed
	// while its used counter did not drop (case 3), so callers can log it
	// for later analysis without the reducer itself doing any I/O.
	RotationWithoutReset bool
}

// UpdateBucket computes the next BucketState for a single bucket given
// its prior state (nil if this is the first sample seen for it), a
// fresh sample, and the sample timestamp (RFC3339). It does not mutate
// prior.
func UpdateBucket(prior *model.BucketState, sample model.RateLimitSample, timestampRFC3339 string) (model.BucketState, UpdateResult) {
	if prior == nil {
		return model.BucketState{
			LastUsed:       sample.Used,
			LastReset:      sample.Reset,
			Limit:          sample.Limit,
			TotalUsed:      0,
			WindowsCrossed: 0,
			Anomalies:      0,
			FirstSeenTS:    timestampRFC3339,
			LastUpdatedTS:  timestampRFC3339,
		}, UpdateResult{}
	}

	next := *prior
	next.Limit = sample.Limit
	next.LastUpdatedTS = timestampRFC3339

	result := UpdateResult{}

	switch {
	case sample.Reset != prior.LastReset && sample.Used < prior.LastUsed:
		// Case 2: genuine window reset. The new `used` is entirely
		// post-reset activity.
		next.TotalUsed = prior.TotalUsed + sample.Used
		next.WindowsCrossed = prior.WindowsCrossed + 1
		next.LastReset = sample.Reset
		result.Delta = sample.Used
		result.WindowCrossed = true

	case sample.Reset != prior.LastReset && sample.Used >= prior.LastUsed:
		// Case 3: reset timestamp rotated but the counter did not
		// restart. Treated conservatively as a same-window update.
		delta := sample.Used - prior.LastUsed
		next.TotalUsed = prior.TotalUsed + delta
		next.LastReset = sample.Reset
		result.Delta = delta
		result.RotationWithoutReset = true

	default:
		// Case 4: same window.
		delta := sample.Used - prior.LastUsed
		if delta < 0 {
			next.Anomalies = prior.Anomalies + 1
			result.Anomaly = true
		} else {
			next.TotalUsed = prior.TotalUsed + delta
			result.Delta = delta
		}
	}

	next.LastUsed = sample.Used
	return next, result
}

// Reduce folds every bucket present in resp through UpdateBucket,
// returning the updated bucket map and the per-bucket results in
// response order is not guaranteed (map iteration). Buckets absent from
// resp are left untouched in the returned map.
func Reduce(buckets map[string]model.BucketState, resp model.RateLimitResponse, timestampRFC3339 string) (map[string]model.BucketState, []UpdateResult) {
	next := make(map[string]model.BucketState, len(buckets))
	for name, state := range buckets {
		next[name] = state
	}

	results := make([]UpdateResult, 0, len(resp))
	for name, sample := range resp {
		var priorPtr *model.BucketState
		if prior, ok := buckets[name]; ok {
			priorPtr = &prior
		}
		updated, res := UpdateBucket(priorPtr, sample, timestampRFC3339)
		res.Bucket = name
		next[name] = updated
		results = append(results, res)
	}

	return next, results
}
