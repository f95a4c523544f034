// Package report defines the output-renderer contract. Rendering a
// human-facing markdown summary is an external collaborator and out of
// scope here; this package implements the seam that collaborator sits
// behind (BuildReport) plus the two machine-readable renderers a
// downstream step can already consume directly.
package report

import (
	"sort"
	"time"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

// failureRateWarningThreshold is the failure_count / poll_count ratio
// above which the report warns that too many polls failed.
const failureRateWarningThreshold = 0.10

// BucketSummary is one bucket's row in a Report.
type BucketSummary struct {
	Name           string
	TotalUsed      int64
	WindowsCrossed int64
	Anomalies      int64
	Limit          int64
}

// Report is the renderer-facing summary of a completed job.
type Report struct {
	GeneratedAt  time.Time
	Buckets      []BucketSummary
	PollCount    int64
	FailureCount int64
	Warnings     []string
}

// Renderer turns a Report into bytes in some wire format.
type Renderer interface {
	Render(r Report) ([]byte, error)
}

// BuildReport is the pure state -> report transform. generatedAt is a
// parameter so it stays testable without touching the clock.
func BuildReport(state *model.ReducerState, generatedAt time.Time) Report {
	r := Report{
		GeneratedAt:  generatedAt,
		PollCount:    state.PollCount,
		FailureCount: state.FailureCount,
	}

	names := make([]string, 0, len(state.Buckets))
	for name := range state.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	anomalyTotal := int64(0)
	for _, name := range names {
		b := state.Buckets[name]
		r.Buckets = append(r.Buckets, BucketSummary{
			Name:           name,
			TotalUsed:      b.TotalUsed,
			WindowsCrossed: b.WindowsCrossed,
			Anomalies:      b.Anomalies,
			Limit:          b.Limit,
		})
		anomalyTotal += b.Anomalies
	}

	if anomalyTotal > 0 {
		r.Warnings = append(r.Warnings, "one or more buckets recorded unreconciled sample-pair anomalies")
	}
	if state.PollCount > 0 {
		failureRate := float64(state.FailureCount) / float64(state.PollCount)
		if failureRate > failureRateWarningThreshold {
			r.Warnings = append(r.Warnings, "more than 10% of polls failed during this job")
		}
	}

	return r
}
