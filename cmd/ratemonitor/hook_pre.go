package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ratewatch/ci-rate-monitor/internal/config"
	"github.com/ratewatch/ci-rate-monitor/internal/procctl"
	"github.com/ratewatch/ci-rate-monitor/internal/statestore"
)

// runHookPre implements the pre-job hook: spawn the detached poll loop
// and block until its startup handshake lands or times out. It returns
// the process's exit code rather than calling os.Exit directly, so
// tests can invoke it in-process.
func runHookPre() int {
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

	exe, err := os.Executable()
	if err != nil {
		fmt.Printf("Error: could not resolve own executable path: %v\n", err)
		return 1
	}

	pid, err := procctl.Spawn(procctl.SpawnConfig{
		Path:    exe,
		Args:    []string{"poll"},
		Env:     os.Environ(),
		LogPath: store.LogPath(),
	})
	if err != nil {
		fmt.Printf("Error: could not spawn poll loop: %v\n", err)
		return 1
	}

	if err := store.WritePID(pid); err != nil {
		fmt.Printf("Error: could not record poll loop pid: %v\n", err)
		_, _ = procctl.KillWithVerification(pid, procctl.KillGrace)
		return 1
	}

	if !procctl.WaitForStartup(store, procctl.HandshakeTimeout) {
		fmt.Println("Error: poll loop did not start within the handshake timeout")
		_, _ = procctl.KillWithVerification(pid, procctl.KillGrace)
		_ = store.RemovePID()
		return 1
	}

	fmt.Printf("ratemonitor: poll loop started (pid %d)\n", pid)
	return 0
}
