// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"errors"
	"fmt"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// ErrUnknownInstance is returned by RestoreAll for a record whose
// instance id has no target.
var ErrUnknownInstance = errors.New("wasix: journal record for unknown instance")

// ExitError reports that an instance has terminated. Every call made
// after termination returns the same *ExitError.
type ExitError struct {
	Code wasi.ExitCode

	// Signal is set when a default signal action terminated the
	// instance.
	Signal wasi.Signal

	// Cause is the runtime failure that forced termination, such as a
	// *SaveError. Nil for a guest-requested exit.
	Cause error
}

func (e *ExitError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("instance terminated with exit code %d: %v", e.Code, e.Cause)
	case e.Signal != wasi.SignalNone:
		return fmt.Sprintf("instance terminated by %s (exit code %d)", e.Signal, e.Code)
	default:
		return fmt.Sprintf("instance exited with code %d", e.Code)
	}
}

func (e *ExitError) Unwrap() error { return e.Cause }

// ExitCode returns the code as an int for process exit paths.
func (e *ExitError) ExitCode() int { return int(e.Code) }

// SaveError is a journaling failure: a call succeeded but its entry
// could not be appended.
type SaveError struct {
	Call string
	Kind journal.EntryKind
	Fd   wasi.Fd
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	message := fmt.Sprintf("journaling %s (%s) failed", e.Call, e.Kind)
	if e.Path != "" {
		message += fmt.Sprintf(" for fd=%d path=%q", e.Fd, e.Path)
	}
	return message + ": " + e.Err.Error()
}

func (e *SaveError) Unwrap() error { return e.Err }

// ReplayError reports that re-executing a journaled call failed.
type ReplayError struct {
	Call  string
	Fd    wasi.Fd
	Path  string
	Errno wasi.Errno
	// Detail describes a result that differs from the recorded one.
	Detail string
}

func (e *ReplayError) Error() string {
	var message string
	if e.Path != "" {
		message = fmt.Sprintf("replaying %s failed (fd=%d, path=%q): %s", e.Call, e.Fd, e.Path, e.Errno)
	} else {
		message = fmt.Sprintf("replaying %s failed (fd=%d): %s", e.Call, e.Fd, e.Errno)
	}
	if e.Detail != "" {
		message += ": " + e.Detail
	}
	return message
}

func (e *ReplayError) Unwrap() error { return e.Errno }

// RenumberError reports that a descriptor allocated during replay could
// not be moved to the id the journal recorded.
type RenumberError struct {
	Call  string
	From  wasi.Fd
	To    wasi.Fd
	Errno wasi.Errno
}

func (e *RenumberError) Error() string {
	return fmt.Sprintf("renumbering descriptor after %s failed (from=%d, to=%d): %s", e.Call, e.From, e.To, e.Errno)
}

func (e *RenumberError) Unwrap() error { return e.Errno }

// RestoreError wraps the first failure of a restore with the position
// of the record that caused it.
type RestoreError struct {
	Index    int
	Seq      uint64
	Instance string
	Kind     journal.EntryKind
	Err      error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restoring journal entry %d (seq %d, %s): %v", e.Index, e.Seq, e.Kind, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }
