// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/commands"
	"github.com/hghpublic/wasmerio-wasmer/lib/process"
)

func main() {
	process.Exit(run())
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streams := commands.Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
	return commands.Root(ctx, streams).Execute(os.Args[1:])
}
