// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package format renders command results as a table for people or as JSON for
// scripts. In JSON mode stdout carries exactly one JSON document per command;
// human-oriented lines go to stderr.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// OutputMode selects how a Printer renders results.
type OutputMode string

const (
	ModeJSON  OutputMode = "json"
	ModeTable OutputMode = "table"
)

// ParseMode validates s, case-insensitively, as an output mode.
func ParseMode(s string) (OutputMode, error) {
	switch mode := OutputMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case ModeJSON, ModeTable:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid output mode %q (must be 'json' or 'table')", s)
	}
}

// Printer writes command output to out and diagnostics to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	quiet  bool
	color  bool
}

// New returns a Printer. quiet drops summary lines; color enables ANSI
// styling in table mode.
func New(out, errOut io.Writer, mode OutputMode, quiet, color bool) *Printer {
	return &Printer{out: out, errOut: errOut, mode: mode, quiet: quiet, color: color}
}

// JSON writes v to out as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table writes rows under upper-cased headers, aligned with tabwriter.
func (p *Printer) Table(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)

	head := make([]string, len(headers))
	for i, h := range headers {
		head[i] = strings.ToUpper(h)
		if p.color {
			head[i] = color.New(color.Bold).Sprint(head[i])
		}
	}
	fmt.Fprintln(tw, strings.Join(head, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Summary writes a closing line: to out in table mode, to errOut in JSON
// mode, and nowhere when quiet.
func (p *Printer) Summary(line string) error {
	if p.quiet {
		return nil
	}
	w := p.out
	if p.mode == ModeJSON {
		w = p.errOut
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// Error reports a command failure. JSON mode writes
// {"success": false, "error": ...} to out so callers parsing stdout always
// get a document.
func (p *Printer) Error(err error) error {
	if err == nil {
		return nil
	}
	if p.mode == ModeJSON {
		return p.JSON(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{Error: err.Error()})
	}

	prefix := "Error:"
	if p.color {
		prefix = color.New(color.FgRed, color.Bold).Sprint(prefix)
	}
	_, werr := fmt.Fprintln(p.errOut, prefix, err)
	return werr
}
