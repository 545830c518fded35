// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so that readers observe either the
// old contents or the complete new contents, never a partial write.
//
// The new contents are streamed to a temporary file in the destination
// directory, fsynced, renamed over the destination, and the directory
// is fsynced so the rename survives a power loss. Journal truncation,
// journal import, and encrypted exports all go through [Write].
package atomicfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write atomically replaces path with whatever produce writes. The file
// is created with the given permission bits. If produce returns an
// error the destination is left untouched and the temporary file is
// removed.
func Write(path string, mode os.FileMode, produce func(io.Writer) error) error {
	directory := filepath.Dir(path)
	file, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := file.Name()

	fail := func(format string, err error) error {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf(format, path, err)
	}

	buffered := bufio.NewWriter(file)
	if err := produce(buffered); err != nil {
		return fail("producing contents of %s: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return fail("writing temporary file for %s: %w", err)
	}
	if err := file.Chmod(mode); err != nil {
		return fail("setting mode of temporary file for %s: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fail("syncing temporary file for %s: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file for %s: %w", path, err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	return SyncDirectory(directory)
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte, mode os.FileMode) error {
	return Write(path, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// SyncDirectory fsyncs a directory so that entries created, renamed or
// removed in it are durable.
func SyncDirectory(directory string) error {
	handle, err := os.Open(directory)
	if err != nil {
		return fmt.Errorf("opening directory %s for sync: %w", directory, err)
	}
	defer handle.Close()
	if err := handle.Sync(); err != nil {
		return fmt.Errorf("syncing directory %s: %w", directory, err)
	}
	return nil
}
