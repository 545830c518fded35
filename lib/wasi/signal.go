// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasi

import "fmt"

// Signal is a WASIX signal number.
type Signal uint8

const (
	SignalNone Signal = 0
	SIGHUP     Signal = 1
	SIGINT     Signal = 2
	SIGQUIT    Signal = 3
	SIGILL     Signal = 4
	SIGTRAP    Signal = 5
	SIGABRT    Signal = 6
	SIGBUS     Signal = 7
	SIGFPE     Signal = 8
	SIGKILL    Signal = 9
	SIGUSR1    Signal = 10
	SIGSEGV    Signal = 11
	SIGUSR2    Signal = 12
	SIGPIPE    Signal = 13
	SIGALRM    Signal = 14
	SIGTERM    Signal = 15
	SIGCHLD    Signal = 17
	SIGCONT    Signal = 18
	SIGWINCH   Signal = 28
)

var signalNames = map[Signal]string{
	SignalNone: "none",
	SIGHUP:     "SIGHUP",
	SIGINT:     "SIGINT",
	SIGQUIT:    "SIGQUIT",
	SIGILL:     "SIGILL",
	SIGTRAP:    "SIGTRAP",
	SIGABRT:    "SIGABRT",
	SIGBUS:     "SIGBUS",
	SIGFPE:     "SIGFPE",
	SIGKILL:    "SIGKILL",
	SIGUSR1:    "SIGUSR1",
	SIGSEGV:    "SIGSEGV",
	SIGUSR2:    "SIGUSR2",
	SIGPIPE:    "SIGPIPE",
	SIGALRM:    "SIGALRM",
	SIGTERM:    "SIGTERM",
	SIGCHLD:    "SIGCHLD",
	SIGCONT:    "SIGCONT",
	SIGWINCH:   "SIGWINCH",
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return fmt.Sprintf("signal(%d)", uint8(s))
}

// DefaultTerminates reports whether an instance with no handler for s
// terminates when s is delivered.
func (s Signal) DefaultTerminates() bool {
	switch s {
	case SIGKILL, SIGTERM, SIGINT, SIGQUIT, SIGABRT:
		return true
	}
	return false
}

// ExitCode is the conventional exit status of an instance terminated
// by s.
func (s Signal) ExitCode() ExitCode { return ExitCode(128 + uint32(s)) }
