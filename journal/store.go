// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hghpublic/wasmerio-wasmer/lib/clock"
)

// Store is an ordered, append-only sequence of records.
//
// Implementations are safe for concurrent use. Each Append is applied
// atomically under the store's lock, so records appended concurrently
// appear in a single total order with no interleaving.
type Store interface {
	// Append assigns the next sequence number to entry and persists
	// it. The returned record is exactly what Read will yield.
	Append(ctx context.Context, instance string, entry Entry) (Record, error)

	// Read returns an iterator over records with Seq >= from, in
	// order. A from value before the first retained record starts at
	// the first retained record. The iterator sees the records that
	// existed when Read was called.
	Read(ctx context.Context, from uint64) (Iterator, error)

	// TruncateBefore discards every record with Seq < seq. The record
	// at seq must be a Snapshot entry.
	TruncateBefore(ctx context.Context, seq uint64) error

	// Bounds returns the first retained sequence number and the
	// sequence number the next Append will be assigned.
	Bounds(ctx context.Context) (first, next uint64, err error)

	// Len returns the number of records currently held.
	Len(ctx context.Context) (uint64, error)

	Close() error
}

// Iterator yields records in sequence order. Next returns io.EOF after
// the last record.
type Iterator interface {
	Next() (Record, error)
	Close() error
}

// RecordWriter is implemented by stores that can take records with
// their sequence number, instance and time already assigned. The
// record's Seq must equal the store's next sequence number, unless the
// store is empty, in which case the store is rebased to start at it.
type RecordWriter interface {
	WriteRecord(ctx context.Context, record Record) error
}

// SyncMode controls when appended records are flushed to stable
// storage.
type SyncMode uint8

const (
	// SyncAlways flushes after every append. A crash loses at most
	// the record being written, which is then discarded as a torn
	// tail on the next open.
	SyncAlways SyncMode = iota

	// SyncNever leaves flushing to the operating system.
	SyncNever
)

func (m SyncMode) String() string {
	switch m {
	case SyncAlways:
		return "always"
	case SyncNever:
		return "never"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseSyncMode parses a sync mode name as used in configuration.
func ParseSyncMode(name string) (SyncMode, error) {
	switch name {
	case "", "always":
		return SyncAlways, nil
	case "never":
		return SyncNever, nil
	default:
		return 0, fmt.Errorf("unknown sync mode %q (want always or never)", name)
	}
}

// Options configure a persistent store. The zero value is usable.
type Options struct {
	// Compression is applied to each record payload that it shrinks.
	Compression Compression

	Sync SyncMode

	// Clock stamps appended records. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives operational messages (torn tail recovery,
	// truncation). Defaults to a discarding logger.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Open opens or creates the journal at path. Paths ending in ".db" or
// ".sqlite" use the SQLite backend; every other path uses the record
// file format.
func Open(path string, options Options) (Store, error) {
	if IsSQLitePath(path) {
		return OpenSQLite(path, options)
	}
	return OpenFile(path, options)
}

// IsSQLitePath reports whether Open would use the SQLite backend for
// path.
func IsSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// ReadAll collects every record with Seq >= from.
func ReadAll(ctx context.Context, store Store, from uint64) ([]Record, error) {
	iterator, err := store.Read(ctx, from)
	if err != nil {
		return nil, err
	}
	defer iterator.Close()

	var records []Record
	for {
		record, err := iterator.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

// Copy appends every record of source with Seq >= from to destination
// and returns how many were copied. When destination implements
// RecordWriter the records keep their sequence numbers, instances and
// times; otherwise destination assigns new ones.
func Copy(ctx context.Context, destination Store, source Store, from uint64) (int, error) {
	iterator, err := source.Read(ctx, from)
	if err != nil {
		return 0, err
	}
	defer iterator.Close()

	writer, preserving := destination.(RecordWriter)
	copied := 0
	for {
		record, err := iterator.Next()
		if errors.Is(err, io.EOF) {
			return copied, nil
		}
		if err != nil {
			return copied, err
		}
		if preserving {
			err = writer.WriteRecord(ctx, record)
		} else {
			_, err = destination.Append(ctx, record.Instance, record.Entry)
		}
		if err != nil {
			return copied, fmt.Errorf("copying record %d: %w", record.Seq, err)
		}
		copied++
	}
}

// sliceIterator iterates over records already in memory.
type sliceIterator struct {
	records []Record
	next    int
}

func (it *sliceIterator) Next() (Record, error) {
	if it.next >= len(it.records) {
		return Record{}, io.EOF
	}
	record := it.records[it.next]
	it.next++
	return record, nil
}

func (it *sliceIterator) Close() error { return nil }
