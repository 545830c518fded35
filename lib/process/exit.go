// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ExitCoder is implemented by errors that carry their own process exit
// status.
type ExitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits with code 1.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// Exit terminates the process for the error returned by a binary's
// run function. Errors implementing ExitCoder exit with their own code
// and print nothing, since the command has already reported the
// outcome. A nil error returns without exiting.
func Exit(err error) {
	if err == nil {
		return
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		os.Exit(coder.ExitCode())
	}
	Fatal(err)
}
