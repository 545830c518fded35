// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"os"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
	"github.com/hghpublic/wasmerio-wasmer/lib/clock"
)

// Streams are the standard streams commands read and write. In is an
// *os.File so the networking consent prompt can tell whether it is a
// terminal.
type Streams struct {
	In  *os.File
	Out io.Writer
	Err io.Writer
}

type app struct {
	ctx     context.Context
	streams Streams
	clock   clock.Clock
}

// Root returns the wasix-journal command tree. Commands observe ctx
// for cancellation.
func Root(ctx context.Context, streams Streams) *cli.Command {
	return newApp(ctx, streams, clock.Real()).root()
}

func newApp(ctx context.Context, streams Streams, c clock.Clock) *app {
	if streams.In == nil {
		streams.In = os.Stdin
	}
	if streams.Out == nil {
		streams.Out = os.Stdout
	}
	if streams.Err == nil {
		streams.Err = os.Stderr
	}
	return &app{ctx: ctx, streams: streams, clock: c}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:    "wasix-journal",
		Summary: "Inspect, verify and replay WASIX syscall journals",
		Description: `Inspect, verify and replay WASIX syscall journals.

A journal records every effectful call an instance made, in order.
Replaying it into a fresh instance reproduces the file system, the
descriptor table and the network configuration the instance had.`,
		HelpOutput: a.streams.Err,
		Subcommands: []*cli.Command{
			a.inspectCommand(),
			a.verifyCommand(),
			a.replayCommand(),
			a.truncateCommand(),
			a.convertCommand(),
			a.exportCommand(),
			a.importCommand(),
			a.versionCommand(),
		},
	}
}
