package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ratewatch/ci-rate-monitor/internal/config"
	"github.com/ratewatch/ci-rate-monitor/internal/forgeclient"
	"github.com/ratewatch/ci-rate-monitor/internal/logging"
	"github.com/ratewatch/ci-rate-monitor/internal/metrics"
	"github.com/ratewatch/ci-rate-monitor/internal/pollloop"
	"github.com/ratewatch/ci-rate-monitor/internal/statestore"
)

// runPoll is the detached child's entry point. It is never invoked
// directly by a user; hook pre spawns it via its own executable path
// with argv[1] == "poll".
func runPoll() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	store := statestore.New(cfg.StateDir)

	logFile, err := os.OpenFile(store.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not open log file: %v\n", err)
		return 1
	}
	defer logFile.Close()
	log := logging.New(logFile, cfg.Token)

	var metricsReg *metrics.Registry
	if cfg.Diagnostics {
		metricsReg = metrics.New()
	}

	client := forgeclient.New(cfg.ForgeBaseURL, cfg.Token)
	loop := pollloop.New(cfg, client, store, log, metricsReg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("received SIGTERM, shutting down")
		cancel()
	}()

	if err := loop.Run(ctx); err != nil {
		log.Errorf("poll loop exited with error: %v", err)
		return 1
	}

	return 0
}
