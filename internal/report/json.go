package report

import (
	"encoding/json"
	"time"
)

// jsonBucket mirrors BucketSummary with a human-friendly display name,
// since the JSON report is the one format a downstream summary step
// reads directly rather than reformatting.
type jsonBucket struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	TotalUsed      int64  `json:"total_used"`
	WindowsCrossed int64  `json:"windows_crossed"`
	Anomalies      int64  `json:"anomalies"`
	Limit          int64  `json:"limit"`
}

type jsonReport struct {
	GeneratedAt  time.Time    `json:"generated_at"`
	PollCount    int64        `json:"poll_count"`
	FailureCount int64        `json:"failure_count"`
	Warnings     []string     `json:"warnings"`
	Buckets      []jsonBucket `json:"buckets"`
}

// JSONRenderer renders a Report as indented JSON.
type JSONRenderer struct{}

func (JSONRenderer) Render(r Report) ([]byte, error) {
	out := jsonReport{
		GeneratedAt:  r.GeneratedAt,
		PollCount:    r.PollCount,
		FailureCount: r.FailureCount,
		Warnings:     r.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	for _, b := range r.Buckets {
		out.Buckets = append(out.Buckets, jsonBucket{
			Name:           b.Name,
			DisplayName:    DisplayName(b.Name),
			TotalUsed:      b.TotalUsed,
			WindowsCrossed: b.WindowsCrossed,
			Anomalies:      b.Anomalies,
			Limit:          b.Limit,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}
