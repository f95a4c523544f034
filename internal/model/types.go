// Package model holds the data shapes shared by the reducer, the state
// store, and everything downstream of them. Nothing in this package
// touches the clock, the filesystem, or the network.
package model

import "time"

// RateLimitSample is a single bucket reading returned by the forge.
type RateLimitSample struct {
	Limit     int64 `json:"limit"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// RateLimitResponse maps bucket name to its sample. The bucket set is
// open: callers must preserve unknown keys rather than rejecting them.
type RateLimitResponse map[string]RateLimitSample

// BucketState is the reducer's per-bucket accumulator. It is mutated
// only by the reducer and never deleted for the lifetime of a job.
type BucketState struct {
	LastUsed      int64  `json:"last_used"`
	LastReset     int64  `json:"last_reset"`
	Limit         int64  `json:"limit"`
	TotalUsed     int64  `json:"total_used"`
	WindowsCrossed int64 `json:"windows_crossed"`
	Anomalies     int64  `json:"anomalies"`
	FirstSeenTS   string `json:"first_seen_ts"`
	LastUpdatedTS string `json:"last_updated_ts"`
}

// RateLimitControlState is the persisted mirror of the in-memory gate.
// The child process treats its own in-memory copy as authoritative;
// this is carried in ReducerState for observability only.
type RateLimitControlState struct {
	BlockedUntilMS       *int64 `json:"blocked_until_ms"`
	SecondaryConsecutive int    `json:"secondary_consecutive"`
}

// DiagnosticsEntry is one entry in the bounded diagnostics ring.
type DiagnosticsEntry struct {
	TS     string `json:"ts"`
	Event  string `json:"event"`
	Bucket string `json:"bucket,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ReducerState is the persisted top-level record written atomically to
// state.json by the child and read by the parent hooks.
type ReducerState struct {
	Buckets            map[string]BucketState `json:"buckets"`
	PollCount          int64                  `json:"poll_count"`
	FailureCount       int64                  `json:"failure_count"`
	StartedAtTS        *string                `json:"started_at_ts"`
	LastPollTS         *string                `json:"last_poll_ts"`
	StoppedAtTS        *string                `json:"stopped_at_ts"`
	PollerStartedAtTS  *string                `json:"poller_started_at_ts"`
	LastError          *string                `json:"last_error"`
	RateLimitControl   RateLimitControlState  `json:"rate_limit_control"`
	Diagnostics        []DiagnosticsEntry     `json:"diagnostics,omitempty"`

	// ConsecutiveNonRateLimitFailures never gates polling; it is kept for
	// observability (state.json, the debug dump, the metrics gauge).
	// report.BuildReport does not read it.
	ConsecutiveNonRateLimitFailures int64 `json:"consecutive_non_ratelimit_failures"`
}

// NewReducerState returns a freshly initialised, empty state.
func NewReducerState() *ReducerState {
	return &ReducerState{
		Buckets: make(map[string]BucketState),
	}
}

// FormatTS renders t as the RFC3339 string the rest of the system uses
// for every timestamp field.
func FormatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
