package reducer

import (
	"testing"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

func applySeq(t *testing.T, samples []model.RateLimitSample) model.BucketState {
	t.Helper()
	var prior *model.BucketState
	var state model.BucketState
	for i, s := range samples {
		ts := "2026-01-01T00:00:00Z"
		state, _ = UpdateBucket(prior, s, ts)
		prior = &state
		_ = i
	}
	return state
}

func TestFiveCallsSameWindow(t *testing.T) {
	samples := []model.RateLimitSample{
		{Limit: 5000, Reset: 1000, Used: 10},
		{Limit: 5000, Reset: 1000, Used: 11},
		{Limit: 5000, Reset: 1000, Used: 12},
		{Limit: 5000, Reset: 1000, Used: 13},
		{Limit: 5000, Reset: 1000, Used: 14},
		{Limit: 5000, Reset: 1000, Used: 15},
	}
	final := applySeq(t, samples)
	if final.TotalUsed != 5 {
		t.Errorf("total_used = %d, want 5", final.TotalUsed)
	}
	if final.WindowsCrossed != 0 {
		t.Errorf("windows_crossed = %d, want 0", final.WindowsCrossed)
	}
	if final.Anomalies != 0 {
		t.Errorf("anomalies = %d, want 0", final.Anomalies)
	}
}

func TestWindowReset(t *testing.T) {
	samples := []model.RateLimitSample{
		{Reset: 100, Used: 28},
		{Reset: 100, Used: 29},
		{Reset: 160, Used: 0},
		{Reset: 160, Used: 2},
	}
	final := applySeq(t, samples)
	if final.TotalUsed != 3 {
		t.Errorf("total_used = %d, want 3", final.TotalUsed)
	}
	if final.WindowsCrossed != 1 {
		t.Errorf("windows_crossed = %d, want 1", final.WindowsCrossed)
	}
}

func TestRotationWithoutReset(t *testing.T) {
	samples := []model.RateLimitSample{
		{Reset: 100, Used: 10},
		{Reset: 130, Used: 12},
	}
	final := applySeq(t, samples)
	if final.TotalUsed != 2 {
		t.Errorf("total_used = %d, want 2", final.TotalUsed)
	}
	if final.WindowsCrossed != 0 {
		t.Errorf("windows_crossed = %d, want 0", final.WindowsCrossed)
	}
}

func TestAnomalyMidWindow(t *testing.T) {
	samples := []model.RateLimitSample{
		{Reset: 100, Used: 10},
		{Reset: 100, Used: 9},
	}
	final := applySeq(t, samples)
	if final.TotalUsed != 0 {
		t.Errorf("total_used = %d, want 0", final.TotalUsed)
	}
	if final.Anomalies != 1 {
		t.Errorf("anomalies = %d, want 1", final.Anomalies)
	}
}

func TestInitialisationEmitsNoDelta(t *testing.T) {
	state, res := UpdateBucket(nil, model.RateLimitSample{Limit: 100, Used: 42, Reset: 10}, "2026-01-01T00:00:00Z")
	if state.TotalUsed != 0 {
		t.Errorf("total_used = %d, want 0 on first observation", state.TotalUsed)
	}
	if res.Delta != 0 || res.WindowCrossed || res.Anomaly {
		t.Errorf("unexpected result on init: %+v", res)
	}
	if state.LastUsed != 42 || state.LastReset != 10 {
		t.Errorf("unexpected bookkeeping: %+v", state)
	}
}

func TestPurity(t *testing.T) {
	prior := model.BucketState{LastUsed: 5, LastReset: 10, TotalUsed: 5}
	priorCopy := prior
	_, _ = UpdateBucket(&prior, model.RateLimitSample{Used: 7, Reset: 10}, "t")
	if prior != priorCopy {
		t.Errorf("UpdateBucket mutated its input: got %+v, want unchanged %+v", prior, priorCopy)
	}
}

func TestIdempotentOnDuplicateSample(t *testing.T) {
	prior := model.BucketState{LastUsed: 5, LastReset: 10, TotalUsed: 5}
	sample := model.RateLimitSample{Used: 5, Reset: 10}
	first, res1 := UpdateBucket(&prior, sample, "t")
	second, res2 := UpdateBucket(&first, sample, "t")
	if res1.Delta != 0 || res2.Delta != 0 {
		t.Errorf("duplicate sample should produce zero delta, got %d and %d", res1.Delta, res2.Delta)
	}
	if first.TotalUsed != second.TotalUsed {
		t.Errorf("total_used drifted across idempotent reduction: %d vs %d", first.TotalUsed, second.TotalUsed)
	}
}

func TestReduceLeavesAbsentBucketsUntouched(t *testing.T) {
	buckets := map[string]model.BucketState{
		"core":   {LastUsed: 1, LastReset: 10, TotalUsed: 1},
		"search": {LastUsed: 2, LastReset: 20, TotalUsed: 2},
	}
	resp := model.RateLimitResponse{
		"core": {Used: 3, Reset: 10},
	}
	next, results := reduceFor(t, buckets, resp)
	if next["search"] != buckets["search"] {
		t.Errorf("bucket absent from response was mutated: %+v", next["search"])
	}
	if len(results) != 1 || results[0].Bucket != "core" {
		t.Errorf("unexpected results: %+v", results)
	}
	if next["core"].TotalUsed != 3 {
		t.Errorf("core total_used = %d, want 3", next["core"].TotalUsed)
	}
}

func reduceFor(t *testing.T, buckets map[string]model.BucketState, resp model.RateLimitResponse) (map[string]model.BucketState, []UpdateResult) {
	t.Helper()
	return Reduce(buckets, resp, "2026-01-01T00:00:00Z")
}
