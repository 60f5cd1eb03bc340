// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import "errors"

// reportedError wraps an error the command has already printed in its
// output format.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already printed by the command that
// returned it, so the caller should only set the exit code.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}
