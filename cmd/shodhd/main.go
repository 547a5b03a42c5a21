// Package main provides the entry point for the shodhd memory engine
// daemon: it loads configuration, recovers per-user namespaces on demand,
// runs the background scheduler, and blocks until an external collaborator
// (an HTTP surface, an agent runtime) stops calling into it and the process
// receives a shutdown signal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shodh/memory-engine/internal/config"
	"github.com/shodh/memory-engine/internal/engine"
	engineerrors "github.com/shodh/memory-engine/internal/errors"
)

const version = "0.1.0"

// Exit codes per spec §6.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitStorageCorrupt = 2
	exitModelMissing   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitConfigError
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("shodhd starting", "version", version, "storage_path", cfg.StoragePath, "embed_dim", cfg.EmbedDim)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	eng, err := engine.New(cfg, logger)
	if err != nil {
		switch {
		case errors.Is(err, engineerrors.ErrEmbedderUnavailable):
			logger.Error("embedding model unavailable at startup", "error", err)
			return exitModelMissing
		case errors.Is(err, engineerrors.ErrCorruption):
			logger.Error("unrecoverable storage corruption at startup", "error", err)
			return exitStorageCorrupt
		default:
			logger.Error("failed to construct engine", "error", err)
			return exitConfigError
		}
	}

	logger.Info("engine ready")
	eng.Run(ctx) // blocks until ctx is cancelled

	if err := eng.Close(); err != nil {
		logger.Error("error during shutdown", "error", err)
		return exitStorageCorrupt
	}
	logger.Info("shutdown complete")
	return exitOK
}
