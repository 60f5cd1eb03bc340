// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/slimjob/pkg/appctx"
	"github.com/vulntor/slimjob/pkg/config"
	"github.com/vulntor/slimjob/pkg/jobs"
	"github.com/vulntor/slimjob/pkg/logging"
	"github.com/vulntor/slimjob/pkg/paths"
)

const cliExecutable = "slimjob"

// NewCommand constructs the top-level slimjob CLI command, wiring global
// flags, configuration loading and logging.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "slimjob runs jobs one at a time, in order, with optional delays",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = paths.DefaultConfigFile()
			}
			mgr := config.NewManager()
			if err := mgr.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg := mgr.Get()

			level := cfg.Log.Level
			if verbosityCount > 0 && !cmd.Flags().Changed("log.level") && !cmd.Flags().Changed("debug") {
				level = verbosityLevel(verbosityCount)
			}
			logging.ConfigureGlobalLogging(logging.Options{
				Level:   level,
				Format:  cfg.Log.Format,
				NoColor: cfg.Log.NoColor,
				Out:     cmd.ErrOrStderr(),
			})

			ctx := appctx.WithConfig(cmd.Context(), mgr)
			if cfg.Engine.Metrics || cfg.Watch.MetricsAddr != "" {
				ctx = appctx.WithRegistry(ctx, prometheus.NewRegistry())
			}

			log.Debug().
				Str("config", configFile).
				Str("engine", cfg.Engine.Name).
				Msg("Configuration loaded")

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default ./slimjob.yaml, then the user config dir)")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newWatchCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func verbosityLevel(count int) string {
	switch {
	case count >= 2:
		return "trace"
	case count == 1:
		return "debug"
	default:
		return "info"
	}
}

// engineFromContext builds a DelayEngine from the loaded configuration,
// registering metrics when a registry is present.
func engineFromContext(cmd *cobra.Command) (*jobs.DelayEngine, config.Config, error) {
	mgr, ok := appctx.Config(cmd.Context())
	if !ok {
		return nil, config.Config{}, fmt.Errorf("configuration not loaded")
	}
	cfg := mgr.Get()

	opts := []jobs.Option{jobs.WithLogger(log.Logger)}
	if reg, ok := appctx.Registry(cmd.Context()); ok {
		opts = append(opts, jobs.WithMetrics(jobs.NewMetrics(reg)))
	}
	return jobs.NewDelayEngine(cfg.Engine.Name, opts...), cfg, nil
}
