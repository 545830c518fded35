// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/clock"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtfs"
	"github.com/hghpublic/wasmerio-wasmer/virtnet"
)

// Preopen is a directory handed to the instance at startup.
type Preopen struct {
	// Path is the directory inside the file system. "/" is the root.
	Path string

	// Fd pins the descriptor id. Zero allocates the next free id after
	// stdio.
	Fd wasi.Fd

	// Rights granted on the directory and inherited by descriptors
	// opened through it. Zero means all rights.
	Rights wasi.Rights
}

// Config configures a new Env. Only FileSystem is required in
// practice; every other field has a usable default.
type Config struct {
	// Instance identifies the instance in a shared journal. Defaults
	// to a fresh UUIDv7.
	Instance string

	// FileSystem defaults to an empty in-memory tree.
	FileSystem virtfs.FileSystem

	// Networking defaults to virtnet.Unsupported.
	Networking virtnet.Networking

	// Journal receives one record per successful effectful call. Nil
	// disables journaling.
	Journal journal.Store

	// Preopens default to the root directory at fd 3.
	Preopens []Preopen

	// Allocator chooses descriptor ids. Defaults to LowestFree.
	Allocator FdAllocator

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Clock stamps snapshot entries. Defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Instance == "" {
		c.Instance = uuid.Must(uuid.NewV7()).String()
	}
	if c.FileSystem == nil {
		c.FileSystem = virtfs.NewMemFS()
	}
	if c.Networking == nil {
		c.Networking = virtnet.Unsupported{}
	}
	if c.Preopens == nil {
		c.Preopens = []Preopen{{Path: "/"}}
	}
	if c.Allocator == nil {
		c.Allocator = LowestFree{}
	}
	if c.Stdin == nil {
		c.Stdin = eofReader{}
	}
	if c.Stdout == nil {
		c.Stdout = io.Discard
	}
	if c.Stderr == nil {
		c.Stderr = io.Discard
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
