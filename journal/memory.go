// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/hghpublic/wasmerio-wasmer/lib/clock"
)

// MemoryStore is a Store held entirely in memory.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	base    uint64
	records []Record
	closed  bool
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ RecordWriter = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store. A nil clock means clock.Real().
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.Real()
	}
	return &MemoryStore{clock: c, base: 1}
}

func (s *MemoryStore) Append(ctx context.Context, instance string, entry Entry) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrClosed
	}

	record := Record{
		Seq:      s.base + uint64(len(s.records)),
		Instance: instance,
		Time:     normalizeTime(s.clock.Now()),
		Entry:    entry,
	}
	s.records = append(s.records, record)
	return record, nil
}

func (s *MemoryStore) WriteRecord(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := s.base + uint64(len(s.records))
	switch {
	case record.Seq == next:
	case len(s.records) == 0 && record.Seq > 0:
		s.base = record.Seq
	default:
		return fmt.Errorf("%w: writing record %d, next is %d", ErrSeqOutOfRange, record.Seq, next)
	}
	record.Time = normalizeTime(record.Time)
	s.records = append(s.records, record)
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, from uint64) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	if from < s.base {
		from = s.base
	}
	start := from - s.base
	if start > uint64(len(s.records)) {
		start = uint64(len(s.records))
	}
	// Full slice expression: later appends cannot alias the snapshot.
	snapshot := s.records[start:len(s.records):len(s.records)]
	return &sliceIterator{records: snapshot}, nil
}

func (s *MemoryStore) TruncateBefore(ctx context.Context, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := s.base + uint64(len(s.records))
	if seq < s.base || seq >= next {
		return fmt.Errorf("%w: truncating before %d, store holds [%d, %d)", ErrSeqOutOfRange, seq, s.base, next)
	}
	index := seq - s.base
	if kind := s.records[index].Entry.Kind(); kind != KindSnapshot {
		return fmt.Errorf("%w: record %d is %s", ErrNotSnapshotBoundary, seq, kind)
	}

	s.records = append([]Record(nil), s.records[index:]...)
	s.base = seq
	return nil
}

func (s *MemoryStore) Bounds(ctx context.Context) (uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, 0, ErrClosed
	}
	return s.base, s.base + uint64(len(s.records)), nil
}

func (s *MemoryStore) Len(ctx context.Context) (uint64, error) {
	first, next, err := s.Bounds(ctx)
	return next - first, err
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
