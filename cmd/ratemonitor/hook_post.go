package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ratewatch/ci-rate-monitor/internal/config"
	"github.com/ratewatch/ci-rate-monitor/internal/procctl"
	"github.com/ratewatch/ci-rate-monitor/internal/report"
	"github.com/ratewatch/ci-rate-monitor/internal/statestore"
)

const (
	jsonReportFileName = "report.json"
	csvReportFileName  = "report.csv"
)

// runHookPost implements the post-job hook: terminate the poll loop
// with SIGTERM/SIGKILL escalation, then render whatever state it left
// behind. A job that ran with the poll loop in a failed-but-not-fatal
// state still gets 0 here; that condition is surfaced through the
// report's warnings, not the hook's exit code.
func runHookPost() int {
	if runtime.GOOS == "windows" {
		fmt.Println("Error: ratemonitor does not support Windows")
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	store := statestore.New(cfg.StateDir)

	if pid, err := store.ReadPID(); err == nil {
		res, killErr := procctl.KillWithVerification(pid, procctl.KillGrace)
		if killErr != nil {
			fmt.Printf("Warning: could not terminate poll loop (pid %d): %v\n", pid, killErr)
		} else if res.Escalated {
			fmt.Printf("ratemonitor: poll loop (pid %d) required SIGKILL\n", pid)
		}
		_ = store.RemovePID()
	}

	result, err := store.Read()
	if err != nil {
		fmt.Printf("Error: could not read poll loop state: %v\n", err)
		return 1
	}
	if result.NotFound {
		fmt.Println("ratemonitor: no poll loop state found; was hook pre run for this job?")
		return 0
	}

	rep := report.BuildReport(result.State, time.Now())

	if err := writeRendered(report.JSONRenderer{}, filepath.Join(cfg.StateDir, jsonReportFileName), rep); err != nil {
		fmt.Printf("Warning: could not write JSON report: %v\n", err)
	}
	if err := writeRendered(report.CSVRenderer{}, filepath.Join(cfg.StateDir, csvReportFileName), rep); err != nil {
		fmt.Printf("Warning: could not write CSV report: %v\n", err)
	}

	fmt.Printf("ratemonitor: %d polls, %d failures, %d bucket(s) tracked\n",
		rep.PollCount, rep.FailureCount, len(rep.Buckets))
	for _, w := range rep.Warnings {
		fmt.Printf("ratemonitor: warning: %s\n", w)
	}

	return 0
}

func writeRendered(r report.Renderer, path string, rep report.Report) error {
	data, err := r.Render(rep)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
