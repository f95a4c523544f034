package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

func sampleState() *model.ReducerState {
	s := model.NewReducerState()
	s.PollCount = 10
	s.FailureCount = 2
	s.Buckets["core"] = model.BucketState{TotalUsed: 100, WindowsCrossed: 1, Limit: 5000}
	s.Buckets["code_search"] = model.BucketState{TotalUsed: 5, Anomalies: 1, Limit: 10}
	return s
}

func TestBuildReportIsDeterministic(t *testing.T) {
	s := sampleState()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r1 := BuildReport(s, ts)
	r2 := BuildReport(s, ts)
	b1, _ := json.Marshal(r1)
	b2, _ := json.Marshal(r2)
	if string(b1) != string(b2) {
		t.Fatalf("BuildReport is not deterministic:\n%s\nvs\n%s", b1, b2)
	}
}

func TestBuildReportWarnings(t *testing.T) {
	s := sampleState() // has an anomaly and failure_count/poll_count = 20%
	r := BuildReport(s, time.Now())
	if len(r.Warnings) != 2 {
		t.Fatalf("expected 2 warnings (anomalies + failure rate), got %v", r.Warnings)
	}
}

func TestBuildReportNoWarningsWhenClean(t *testing.T) {
	s := model.NewReducerState()
	s.PollCount = 10
	s.Buckets["core"] = model.BucketState{TotalUsed: 10}
	r := BuildReport(s, time.Now())
	if len(r.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", r.Warnings)
	}
}

func TestJSONRendererRoundTrips(t *testing.T) {
	r := BuildReport(sampleState(), time.Now())
	out, err := JSONRenderer{}.Render(r)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}
	if decoded["poll_count"].(float64) != 10 {
		t.Errorf("poll_count = %v, want 10", decoded["poll_count"])
	}
}

func TestCSVRendererHasHeaderAndRows(t *testing.T) {
	r := BuildReport(sampleState(), time.Now())
	out, err := CSVRenderer{}.Render(r)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 { // header + 2 buckets
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "bucket,display_name") {
		t.Errorf("unexpected header: %q", lines[0])
	}
}

func TestDisplayNameTitleCasesUnderscoredBuckets(t *testing.T) {
	if got := DisplayName("code_search"); got != "Code Search" {
		t.Errorf("DisplayName(code_search) = %q, want %q", got, "Code Search")
	}
}
