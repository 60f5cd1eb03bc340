// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/slimjob/pkg/appctx"
	"github.com/vulntor/slimjob/pkg/config"
	"github.com/vulntor/slimjob/pkg/server"
	"github.com/vulntor/slimjob/pkg/watch"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Report debounced file changes in a directory until interrupted",
		Example: `  slimjob watch ./src
  slimjob watch ./src --watch.debounce 500ms --watch.recursive
  slimjob watch ./src --watch.metrics_addr 127.0.0.1:9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, cfg, err := engineFromContext(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := engine.Close(); err != nil {
					log.Warn().Err(err).Msg("Error closing engine")
				}
			}()

			out := cmd.OutOrStdout()
			handler := func(_ context.Context, c watch.Change) error {
				log.Info().
					Str("component", "watch").
					Str("file", c.Path).
					Str("ops", c.Ops.String()).
					Int("events", c.Events).
					Msg("Change settled")
				_, err := fmt.Fprintf(out, "%s\t%s\t%d\n", c.Ops, c.Path, c.Events)
				return err
			}

			w, err := watch.New(args[0], engine, handler, watch.Options{
				Debounce:  cfg.Watch.Debounce,
				Recursive: cfg.Watch.Recursive,
				Lock:      cfg.Watch.Lock,
				Logger:    log.Logger,
			})
			if err != nil {
				return err
			}

			defer func() { _ = w.Close() }()

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			// srvErr stays nil without a metrics server, so its select case
			// never fires.
			var srvErr chan error
			if srv := metricsServer(cmd, cfg.Watch); srv != nil {
				bound := make(chan string, 1)
				srvErr = make(chan error, 1)
				go func() { srvErr <- srv.Run(runCtx, bound) }()

				select {
				case addr := <-bound:
					log.Debug().Str("component", "server").Str("addr", addr).Msg("Metrics server bound")
				case err := <-srvErr:
					return fmt.Errorf("metrics server: %w", err)
				}
				srv.SetReady(true)
			}

			watchErr := make(chan error, 1)
			go func() { watchErr <- w.Start(runCtx) }()

			select {
			case err = <-watchErr:
				cancel()
				if srvErr != nil {
					if serr := <-srvErr; serr != nil {
						log.Warn().Err(serr).Msg("Metrics server error")
					}
				}
			case serr := <-srvErr:
				cancel()
				err = <-watchErr
				if serr != nil {
					return fmt.Errorf("metrics server: %w", serr)
				}
			}

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	config.BindWatchFlags(cmd.Flags())

	return cmd
}

func metricsServer(cmd *cobra.Command, cfg config.WatchConfig) *server.Server {
	if cfg.MetricsAddr == "" {
		return nil
	}
	reg, ok := appctx.Registry(cmd.Context())
	if !ok {
		return nil
	}
	return server.New(cfg.MetricsAddr, reg)
}
