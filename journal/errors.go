// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import "errors"

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("journal: store is closed")

	// ErrLocked is returned when another process holds the journal
	// open for appending.
	ErrLocked = errors.New("journal: journal is locked by another process")

	// ErrCorrupt wraps every integrity failure found while reading:
	// undecodable records, sequence gaps, and hash chain mismatches.
	ErrCorrupt = errors.New("journal: corrupt record")

	// ErrUnknownKind is returned when a record names an entry kind this
	// build does not know.
	ErrUnknownKind = errors.New("journal: unknown entry kind")

	// ErrNotSnapshotBoundary is returned by TruncateBefore when the
	// record at the truncation point is not a Snapshot entry.
	ErrNotSnapshotBoundary = errors.New("journal: truncation point is not a snapshot boundary")

	// ErrSeqOutOfRange is returned for sequence numbers outside the
	// records a store currently holds.
	ErrSeqOutOfRange = errors.New("journal: sequence number out of range")

	// ErrUnsupportedFormat is returned when a journal file was written
	// by a newer, incompatible format version or is not a journal.
	ErrUnsupportedFormat = errors.New("journal: unsupported journal format")
)
