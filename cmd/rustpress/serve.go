package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustpress/rustpress-core/internal/appctx"
	"github.com/rustpress/rustpress-core/internal/config"
	"github.com/rustpress/rustpress-core/internal/plugin/loader"
)

func newServeCommand() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RustPress core runtime (plugin loader, job workers, sweepers) until a shutdown signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "total time budget for the graceful shutdown phase sequence")
	return cmd
}

func runServe(ctx context.Context, shutdownTimeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.App.Env == "development" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	app, err := appctx.New(cfg, logger)
	if err != nil {
		return err
	}
	app.RegisterShutdownHandlers()

	ld := loader.NewLoader(cfg.Plugin.Directory, app.Plugins, logger)
	discovered, loadErrs := ld.LoadAll(ctx)
	for _, e := range loadErrs {
		logger.Warn("plugin load error", "error", e)
	}
	logger.Info("plugins loaded", "count", discovered)

	if cfg.Plugin.HotReload {
		if err := ld.WatchDir(ctx); err != nil {
			logger.Warn("plugin hot-reload watch failed to start", "error", err)
		} else {
			defer ld.StopWatch()
		}
	}

	if err := app.Runner.Start(ctx); err != nil {
		return err
	}
	app.StartWorkers(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	logger.Info("rustpress runtime started", "env", cfg.App.Env)
	<-sigCh
	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Lifecycle.Shutdown(shutdownCtx, shutdownTimeout)

	logger.Info("shutdown complete")
	return nil
}
