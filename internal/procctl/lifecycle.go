package procctl

import (
	"time"

	"github.com/ratewatch/ci-rate-monitor/internal/statestore"
)

// HandshakeTimeout and KillGrace are the two 5s deadlines for the
// startup handshake and the SIGTERM grace period.
const (
	HandshakeTimeout = 5 * time.Second
	KillGrace        = 5 * time.Second
	pollInterval     = 50 * time.Millisecond
)

// WaitForStartup polls store's state file for poller_started_at_ts to
// become non-nil — the startup handshake the parent hook waits on
// before declaring the child alive. It returns false on timeout.
func WaitForStartup(store *statestore.Store, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		res, err := store.Read()
		if err == nil && !res.NotFound && res.State.PollerStartedAtTS != nil {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}

// KillResult describes how KillWithVerification terminated the child.
type KillResult struct {
	Escalated bool // SIGTERM did not stop it within KillGrace; SIGKILL was sent.
	NotFound  bool // the pid did not correspond to a live process at all.
}

// KillWithVerification sends SIGTERM, waits up to grace for the
// process to exit by polling Alive, and escalates to SIGKILL if it
// hasn't.
func KillWithVerification(pid int, grace time.Duration) (KillResult, error) {
	if !Alive(pid) {
		return KillResult{NotFound: true}, nil
	}

	if err := SendTerm(pid); err != nil {
		return KillResult{}, err
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return KillResult{}, nil
		}
		time.Sleep(pollInterval)
	}

	if !Alive(pid) {
		return KillResult{}, nil
	}

	if err := SendKill(pid); err != nil {
		return KillResult{}, err
	}
	return KillResult{Escalated: true}, nil
}
