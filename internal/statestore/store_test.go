package statestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	state := model.NewReducerState()
	state.PollCount = 3
	ts := "2026-01-01T00:00:00Z"
	state.StartedAtTS = &ts
	state.Buckets["core"] = model.BucketState{LastUsed: 5, LastReset: 10, TotalUsed: 5}

	if err := s.Write(state); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.NotFound {
		t.Fatal("expected state to be found")
	}
	if res.State.PollCount != 3 {
		t.Errorf("poll_count = %d, want 3", res.State.PollCount)
	}
	if res.State.Buckets["core"].TotalUsed != 5 {
		t.Errorf("core.total_used = %d, want 5", res.State.Buckets["core"].TotalUsed)
	}
	if _, err := os.Stat(filepath.Join(dir, tmpFileName)); !os.IsNotExist(err) {
		t.Errorf("temp file should not remain after a successful write")
	}
}

func TestReadNotFound(t *testing.T) {
	s := New(t.TempDir())
	res, err := s.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NotFound {
		t.Fatal("expected NotFound=true for a missing state file")
	}
}

func TestReadRejectsNonObjectBuckets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, stateFileName), []byte(`{"buckets":"not-a-map"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir)
	if _, err := s.Read(); err == nil {
		t.Fatal("expected an error for buckets of the wrong structural type")
	}
}

func TestReadToleratesUnknownKeysAndMissingOptionalFields(t *testing.T) {
	dir := t.TempDir()
	body := `{"buckets":{},"poll_count":1,"some_future_field":"ignored"}`
	if err := os.WriteFile(filepath.Join(dir, stateFileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir)
	res, err := s.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State.StartedAtTS != nil {
		t.Errorf("expected missing optional field to default to nil")
	}
}

func TestPIDRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	if err := s.WritePID(4242); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, err := s.ReadPID()
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != 4242 {
		t.Errorf("pid = %d, want 4242", pid)
	}
	if err := s.RemovePID(); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if err := s.RemovePID(); err != nil {
		t.Errorf("RemovePID on an already-removed file should be a no-op, got %v", err)
	}
}

func TestWriteDebugYAMLProducesReadableDump(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	state := model.NewReducerState()
	state.PollCount = 7
	state.Buckets["core"] = model.BucketState{TotalUsed: 12, Limit: 5000}

	if err := s.WriteDebugYAML(state); err != nil {
		t.Fatalf("WriteDebugYAML: %v", err)
	}

	data, err := os.ReadFile(s.DebugPath())
	if err != nil {
		t.Fatalf("reading debug dump: %v", err)
	}
	if !strings.Contains(string(data), "poll_count: 7") {
		t.Errorf("debug dump missing poll_count, got:\n%s", data)
	}
	if !strings.Contains(string(data), "core:") {
		t.Errorf("debug dump missing bucket name, got:\n%s", data)
	}
}

func TestWriteProducesWholeFileNeverTorn(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	state := model.NewReducerState()
	for i := 0; i < 200; i++ {
		state.Buckets["core"] = model.BucketState{TotalUsed: int64(i)}
		if err := s.Write(state); err != nil {
			t.Fatalf("Write: %v", err)
		}
		res, err := s.Read()
		if err != nil {
			t.Fatalf("Read after write %d: %v", i, err)
		}
		if res.NotFound {
			t.Fatalf("state disappeared after write %d", i)
		}
	}
}
