// Work plan HTTP service entry point
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robert-malhotra/ewoc-work-plan/internal/app"
	"github.com/robert-malhotra/ewoc-work-plan/internal/config"
	"github.com/robert-malhotra/ewoc-work-plan/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := app.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	logger.Info("starting work plan service",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"s1_provider", cfg.Plan.S1Provider,
		"l8_provider", cfg.Plan.L8Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, server.Options{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close(context.Background())

	return srv.ListenAndServe(ctx, cfg.Server, logger)
}
