// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/slimjob/cmd/slimjob/internal/format"
	"github.com/vulntor/slimjob/pkg/jobs"
	"github.com/vulntor/slimjob/pkg/script"
)

func newRunCommand() *cobra.Command {
	var (
		outputMode string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run a job script and print how each job ended",
		Example: `  slimjob run jobs.yaml
  slimjob run jobs.yaml --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := format.ParseMode(outputMode)
			if err != nil {
				return err
			}

			engine, cfg, err := engineFromContext(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := engine.Close(); err != nil {
					log.Warn().Err(err).Msg("Error closing engine")
				}
			}()

			p := format.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode, quiet, !cfg.Log.NoColor && !color.NoColor)
			fail := func(err error) error {
				if perr := p.Error(err); perr != nil {
					return err
				}
				return reportedError{err: err}
			}

			s, err := script.Load(args[0])
			if err != nil {
				return fail(err)
			}

			runner := script.NewRunner(engine,
				script.WithDefaultDelay(cfg.Engine.DefaultDelay),
				script.WithLogger(log.Logger),
			)
			report, err := runner.Run(cmd.Context(), s)
			if err != nil {
				return fail(err)
			}

			if err := p.Report(toView(report)); err != nil {
				return err
			}

			// The report already shows which steps faulted; the error only
			// carries the exit code.
			if report.Failed() {
				return fmt.Errorf("%s: %d of %d steps faulted: %w", s.Name, report.Faulted, len(report.Outcomes), jobs.ErrFaulted)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputMode, "output", "o", string(format.ModeTable), "Output format (table, json)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the table")

	return cmd
}

func toView(r *script.Report) format.Report {
	view := format.Report{
		Script:    r.Script,
		Steps:     make([]format.StepRow, 0, len(r.Outcomes)),
		Order:     r.Order,
		Completed: r.Completed,
		Faulted:   r.Faulted,
		Canceled:  r.Canceled,
		Duration:  r.Duration,
	}
	for _, o := range r.Outcomes {
		view.Steps = append(view.Steps, format.StepRow{
			Name:    o.Name,
			State:   o.State,
			Delay:   o.Delay,
			Started: o.Started,
			Elapsed: o.Elapsed,
			Error:   o.Error,
		})
	}
	return view
}
