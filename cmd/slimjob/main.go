// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vulntor/slimjob/cmd/slimjob/commands"
	"github.com/vulntor/slimjob/pkg/jobs"
)

func main() {
	cmd := commands.NewCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !commands.Reported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(jobs.ExitCode(err))
	}
}
