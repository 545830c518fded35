// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer.
//
//	instance := testutil.UniqueID("instance") // "instance-1", "instance-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// JournalPath returns a path for a journal that does not exist yet,
// inside a directory removed when the test completes. The extension
// selects the backend: ".db" for SQLite, anything else for the record
// file format.
func JournalPath(t testing.TB, extension string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), UniqueID("journal")+extension)
}
