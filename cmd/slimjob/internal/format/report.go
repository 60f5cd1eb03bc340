// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// Report is the display form of a script run. It mirrors script.Report so
// this package stays free of engine imports.
type Report struct {
	Script    string        `json:"script"`
	Steps     []StepRow     `json:"steps"`
	Order     []string      `json:"order"`
	Completed int           `json:"completed"`
	Faulted   int           `json:"faulted"`
	Canceled  int           `json:"canceled"`
	Duration  time.Duration `json:"duration_ns"`
}

// StepRow is one line of the report table.
type StepRow struct {
	Name    string        `json:"name"`
	State   string        `json:"state"`
	Delay   time.Duration `json:"delay_ns"`
	Started int           `json:"started"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Error   string        `json:"error,omitempty"`
}

var (
	summaryOK = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10")) // Green

	summaryFailed = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9")) // Red

	summaryDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray
)

const maxErrorWidth = 60

// Report renders r. JSON mode writes r itself; table mode writes one row per
// step. Either way the summary line follows.
func (p *Printer) Report(r Report) error {
	if p.mode == ModeJSON {
		if err := p.JSON(r); err != nil {
			return err
		}
		return p.Summary(p.summaryLine(r))
	}

	rows := make([][]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		started := "-"
		if s.Started > 0 {
			started = strconv.Itoa(s.Started)
		}
		rows = append(rows, []string{
			s.Name,
			p.colorState(s.State),
			s.Delay.String(),
			started,
			s.Elapsed.Round(time.Microsecond).String(),
			truncate(s.Error, maxErrorWidth),
		})
	}
	if err := p.Table([]string{"step", "state", "delay", "order", "elapsed", "error"}, rows); err != nil {
		return err
	}
	return p.Summary(p.summaryLine(r))
}

func (p *Printer) summaryLine(r Report) string {
	mark, style := "✓", summaryOK
	if r.Faulted > 0 {
		mark, style = "✗", summaryFailed
	}
	head := fmt.Sprintf("%s %s: %d completed, %d faulted, %d canceled", mark, r.Script, r.Completed, r.Faulted, r.Canceled)
	tail := fmt.Sprintf("in %s", r.Duration.Round(time.Millisecond))
	if !p.color {
		return head + " " + tail
	}
	return style.Render(head) + " " + summaryDim.Render(tail)
}

func (p *Printer) colorState(state string) string {
	if !p.color {
		return state
	}
	switch state {
	case "completed":
		return color.GreenString(state)
	case "faulted":
		return color.RedString(state)
	case "canceled":
		return color.YellowString(state)
	default:
		return state
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
