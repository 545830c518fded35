// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package process turns the error returned by a command's run function
// into a process exit. Errors carrying an ExitCode (a failed
// verification, for instance) exit silently with that code; anything
// else is printed to stderr and exits 1.
package process
