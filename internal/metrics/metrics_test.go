package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

func TestObserveAndWriteTextfile(t *testing.T) {
	reg := New()
	state := model.NewReducerState()
	state.PollCount = 7
	state.Buckets["core"] = model.BucketState{TotalUsed: 42, WindowsCrossed: 1, Limit: 5000}
	reg.Observe(state)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := reg.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile output: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "ratewatch_poll_count 7") {
		t.Errorf("missing poll_count metric, got:\n%s", out)
	}
	if !strings.Contains(out, `bucket="core"`) {
		t.Errorf("missing bucket label, got:\n%s", out)
	}
}
