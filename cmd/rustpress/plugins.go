package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustpress/rustpress-core/internal/appctx"
	"github.com/rustpress/rustpress-core/internal/config"
	"github.com/rustpress/rustpress-core/internal/plugin/loader"
)

func newPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect the plugin directory without starting the runtime",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Discover plugins under the configured plugin directory and print their activation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsList(cmd.Context())
		},
	})
	return cmd
}

func runPluginsList(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	app, err := appctx.New(cfg, logger)
	if err != nil {
		return err
	}

	ld := loader.NewLoader(cfg.Plugin.Directory, app.Plugins, logger, loader.WithLazyLoading())
	if _, err := ld.LoadAll(ctx); err != nil {
		return nil
	}

	for _, reg := range app.Plugins.List() {
		state := "inactive"
		if app.Plugins.IsEnabled(reg.Name) {
			state = "active"
		}
		fmt.Printf("%-20s %-10s v%s\n", reg.Name, state, reg.Version)
	}
	return nil
}
