// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasi

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestErrnoFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Errno
	}{
		{"nil", nil, ErrnoSuccess},
		{"errno", ErrnoBadf, ErrnoBadf},
		{"wrapped errno", fmt.Errorf("renumber: %w", ErrnoNotsup), ErrnoNotsup},
		{"not exist", fs.ErrNotExist, ErrnoNoent},
		{"exist", fmt.Errorf("create: %w", fs.ErrExist), ErrnoExist},
		{"permission", fs.ErrPermission, ErrnoAcces},
		{"closed", fs.ErrClosed, ErrnoBadf},
		{"host notdir", &os.PathError{Op: "open", Path: "/a/b", Err: unix.ENOTDIR}, ErrnoNotdir},
		{"host notempty", &os.PathError{Op: "rmdir", Path: "/a", Err: unix.ENOTEMPTY}, ErrnoNotempty},
		{"unknown", errors.New("boom"), ErrnoIo},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ErrnoFromError(test.err); got != test.want {
				t.Errorf("ErrnoFromError(%v) = %s, want %s", test.err, got, test.want)
			}
		})
	}
}

func TestErrnoError(t *testing.T) {
	if got := ErrnoNoent.Error(); got != "errno noent" {
		t.Errorf("Error() = %q", got)
	}
	if got := Errno(999).Name(); got != "errno(999)" {
		t.Errorf("Name() for unknown errno = %q", got)
	}
}

func TestFlagString(t *testing.T) {
	if got := (OflagCreat | OflagTrunc).String(); got != "creat|trunc" {
		t.Errorf("Oflags.String() = %q", got)
	}
	if got := Fdflags(0).String(); got != "none" {
		t.Errorf("Fdflags(0).String() = %q", got)
	}
	if got := Oflags(1 << 9).String(); got != "0x200" {
		t.Errorf("unknown bit rendered as %q", got)
	}
}

func TestSignalDefaults(t *testing.T) {
	if !SIGTERM.DefaultTerminates() || !SIGKILL.DefaultTerminates() {
		t.Error("SIGTERM and SIGKILL must terminate by default")
	}
	if SIGCHLD.DefaultTerminates() || SIGWINCH.DefaultTerminates() {
		t.Error("SIGCHLD and SIGWINCH are ignored by default")
	}
	if got := SIGTERM.ExitCode(); got != 143 {
		t.Errorf("SIGTERM exit code = %d, want 143", got)
	}
}
