// Package statestore implements the atomic-rename write/read protocol
// for ReducerState and the PID file the spawn/kill machinery uses to
// find the detached child.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ratewatch/ci-rate-monitor/internal/model"
)

const (
	stateFileName   = "state.json"
	tmpFileName     = "state.json.tmp"
	pidFileName     = "poller.pid"
	logFileName     = "poller.log"
	debugFileName   = "poller.debug.yaml"
	metricsFileName = "poller.prom"
)

// Store reads and writes state.json and poller.pid under a directory.
// The child is the sole writer of state.json; the parent writes
// poller.pid once on spawn and removes it after kill.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. dir is created lazily on first
// write, not here.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// StatePath returns the path to state.json.
func (s *Store) StatePath() string { return filepath.Join(s.dir, stateFileName) }

// PIDPath returns the path to poller.pid.
func (s *Store) PIDPath() string { return filepath.Join(s.dir, pidFileName) }

// LogPath returns the path to poller.log.
func (s *Store) LogPath() string { return filepath.Join(s.dir, logFileName) }

// DebugPath returns the path to poller.debug.yaml, the human-readable
// dump WriteDebugYAML produces when diagnostics mode is on.
func (s *Store) DebugPath() string { return filepath.Join(s.dir, debugFileName) }

// MetricsPath returns the path to poller.prom, the node-exporter-style
// textfile the poll loop writes when diagnostics mode is on.
func (s *Store) MetricsPath() string { return filepath.Join(s.dir, metricsFileName) }

// Write serialises state as JSON to a temp file and renames it onto
// state.json, so any concurrent reader sees either the whole old file
// or the whole new one, never a torn write.
func (s *Store) Write(state *model.ReducerState) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("statestore: create dir: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("statestore: marshal: %w", err)
	}

	tmpPath := filepath.Join(s.dir, tmpFileName)
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("statestore: write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.StatePath()); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("statestore: rename temp file: %w", err)
	}
	return nil
}

// debugDump is a YAML-friendly projection of ReducerState: every field
// a human debugging a stuck job would want to see at a glance, in the
// order they'd want to see it.
type debugDump struct {
	GeneratedAt       string                       `yaml:"generated_at"`
	StartedAt         *string                      `yaml:"started_at,omitempty"`
	PollerStartedAt   *string                      `yaml:"poller_started_at,omitempty"`
	StoppedAt         *string                      `yaml:"stopped_at,omitempty"`
	LastPollAt        *string                      `yaml:"last_poll_at,omitempty"`
	PollCount         int64                        `yaml:"poll_count"`
	FailureCount      int64                        `yaml:"failure_count"`
	ConsecutiveFails  int64                        `yaml:"consecutive_non_ratelimit_failures"`
	LastError         *string                      `yaml:"last_error,omitempty"`
	RateLimitControl  model.RateLimitControlState  `yaml:"rate_limit_control"`
	Buckets           map[string]model.BucketState `yaml:"buckets"`
	RecentDiagnostics []model.DiagnosticsEntry     `yaml:"recent_diagnostics,omitempty"`
}

// WriteDebugYAML dumps a human-readable snapshot of state to
// poller.debug.yaml. It is called only when diagnostics mode is on; a
// failure here is never fatal to the poll loop, which is why it
// returns an error for the caller to log rather than retry.
func (s *Store) WriteDebugYAML(state *model.ReducerState) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("statestore: create dir: %w", err)
	}

	dump := debugDump{
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		StartedAt:        state.StartedAtTS,
		PollerStartedAt:  state.PollerStartedAtTS,
		StoppedAt:        state.StoppedAtTS,
		LastPollAt:       state.LastPollTS,
		PollCount:        state.PollCount,
		FailureCount:     state.FailureCount,
		ConsecutiveFails: state.ConsecutiveNonRateLimitFailures,
		LastError:        state.LastError,
		RateLimitControl: state.RateLimitControl,
		Buckets:          state.Buckets,
	}
	const recentDiagnosticsLimit = 10
	if n := len(state.Diagnostics); n > 0 {
		start := 0
		if n > recentDiagnosticsLimit {
			start = n - recentDiagnosticsLimit
		}
		dump.RecentDiagnostics = state.Diagnostics[start:]
	}

	data, err := yaml.Marshal(dump)
	if err != nil {
		return fmt.Errorf("statestore: marshal debug dump: %w", err)
	}
	return os.WriteFile(s.DebugPath(), data, 0o644)
}

// ReadResult carries the outcome of Read: a state file may legitimately
// not exist yet (the child hasn't started), which is not an error.
type ReadResult struct {
	State    *model.ReducerState
	NotFound bool
}

// Read loads and validates state.json.
func (s *Store) Read() (ReadResult, error) {
	data, err := os.ReadFile(s.StatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ReadResult{NotFound: true}, nil
		}
		return ReadResult{}, fmt.Errorf("statestore: read: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ReadResult{}, fmt.Errorf("statestore: invalid json: %w", err)
	}

	if bucketsRaw, ok := raw["buckets"]; ok {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(bucketsRaw, &probe); err != nil {
			return ReadResult{}, fmt.Errorf("statestore: buckets must be an object: %w", err)
		}
	}

	state := model.NewReducerState()
	if err := json.Unmarshal(data, state); err != nil {
		return ReadResult{}, fmt.Errorf("statestore: decode: %w", err)
	}
	if state.Buckets == nil {
		state.Buckets = make(map[string]model.BucketState)
	}

	return ReadResult{State: state}, nil
}

// WritePID writes the decimal PID, one line, to poller.pid. Written
// once by the parent on spawn.
func (s *Store) WritePID(pid int) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("statestore: create dir: %w", err)
	}
	return os.WriteFile(s.PIDPath(), []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// ReadPID reads the PID written by WritePID.
func (s *Store) ReadPID() (int, error) {
	data, err := os.ReadFile(s.PIDPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("statestore: malformed pid file: %w", err)
	}
	return pid, nil
}

// RemovePID removes poller.pid after a successful kill. A missing file
// is not an error.
func (s *Store) RemovePID() error {
	err := os.Remove(s.PIDPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
