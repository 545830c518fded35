// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides helpers shared by the journal, runtime and
// command tests.
//
// [JournalPath] returns a fresh journal path inside t.TempDir(); its
// extension picks the store backend. [UniqueID] generates instance ids
// and file names that do not collide within one test binary.
package testutil
