// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/clock"
	"github.com/hghpublic/wasmerio-wasmer/lib/testutil"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// backend opens a fresh store of one kind.
type backend struct {
	name string
	open func(t *testing.T, c clock.Clock) journal.Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, c clock.Clock) journal.Store {
			return journal.NewMemoryStore(c)
		}},
		{"file", func(t *testing.T, c clock.Clock) journal.Store {
			return openStore(t, testutil.JournalPath(t, ".journal"), journal.Options{Clock: c})
		}},
		{"file-lz4", func(t *testing.T, c clock.Clock) journal.Store {
			return openStore(t, testutil.JournalPath(t, ".journal"), journal.Options{Clock: c, Compression: journal.CompressionLZ4})
		}},
		{"sqlite", func(t *testing.T, c clock.Clock) journal.Store {
			return openStore(t, testutil.JournalPath(t, ".db"), journal.Options{Clock: c, Compression: journal.CompressionZstd})
		}},
	}
}

func openStore(t *testing.T, path string, options journal.Options) journal.Store {
	t.Helper()
	store, err := journal.Open(path, options)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustAppend(t *testing.T, store journal.Store, instance string, entry journal.Entry) journal.Record {
	t.Helper()
	record, err := store.Append(context.Background(), instance, entry)
	if err != nil {
		t.Fatalf("Append(%s): %v", entry.Kind(), err)
	}
	return record
}

func mustReadAll(t *testing.T, store journal.Store, from uint64) []journal.Record {
	t.Helper()
	records, err := journal.ReadAll(context.Background(), store, from)
	if err != nil {
		t.Fatalf("ReadAll(from %d): %v", from, err)
	}
	return records
}

func TestAppendPreservesOrder(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fake := clock.Fake(epoch)
			fake.SetStep(time.Millisecond)
			store := b.open(t, fake)

			entries := []journal.Entry{
				&journal.OpenFileDescriptor{Fd: 5, DirFd: 3, Path: "a.txt", OpenFlags: wasi.OflagCreat, RightsBase: wasi.RightsAll},
				&journal.FileDescriptorWrite{Fd: 5, Offset: 0, Data: []byte("hello")},
				&journal.FileDescriptorSeek{Fd: 5, Offset: 2},
				&journal.CloseFileDescriptor{Fd: 5},
				&journal.ProcessExit{ExitCode: 0},
			}
			for i, entry := range entries {
				record := mustAppend(t, store, "instance-a", entry)
				if record.Seq != uint64(i+1) {
					t.Errorf("record %d: Seq = %d, want %d", i, record.Seq, i+1)
				}
			}

			records := mustReadAll(t, store, 0)
			if len(records) != len(entries) {
				t.Fatalf("read %d records, want %d", len(records), len(entries))
			}
			for i, record := range records {
				if record.Seq != uint64(i+1) {
					t.Errorf("record %d: Seq = %d", i, record.Seq)
				}
				if record.Entry.Kind() != entries[i].Kind() {
					t.Errorf("record %d: kind %s, want %s", i, record.Entry.Kind(), entries[i].Kind())
				}
				if record.Instance != "instance-a" {
					t.Errorf("record %d: instance %q", i, record.Instance)
				}
				want := epoch.Add(time.Duration(i) * time.Millisecond)
				if !record.Time.Equal(want) {
					t.Errorf("record %d: time %v, want %v", i, record.Time, want)
				}
			}

			write, ok := records[1].Entry.(*journal.FileDescriptorWrite)
			if !ok {
				t.Fatalf("record 2 is %T", records[1].Entry)
			}
			if string(write.Data) != "hello" || write.Fd != 5 {
				t.Errorf("write entry = %+v", write)
			}

			first, next, err := store.Bounds(context.Background())
			if err != nil {
				t.Fatalf("Bounds: %v", err)
			}
			if first != 1 || next != 6 {
				t.Errorf("Bounds = [%d, %d), want [1, 6)", first, next)
			}
		})
	}
}

func TestReadFromMiddle(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t, clock.Fake(epoch))
			for i := range 10 {
				mustAppend(t, store, "instance-a", &journal.FileDescriptorSeek{Fd: 4, Offset: int64(i)})
			}

			records := mustReadAll(t, store, 7)
			if len(records) != 4 {
				t.Fatalf("read %d records from 7, want 4", len(records))
			}
			if records[0].Seq != 7 {
				t.Errorf("first Seq = %d, want 7", records[0].Seq)
			}
			if seek := records[0].Entry.(*journal.FileDescriptorSeek); seek.Offset != 6 {
				t.Errorf("first offset = %d, want 6", seek.Offset)
			}

			if records := mustReadAll(t, store, 11); len(records) != 0 {
				t.Errorf("read %d records past the end, want 0", len(records))
			}
		})
	}
}

func TestReadSeesRecordsAtCallTime(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t, clock.Fake(epoch))
			mustAppend(t, store, "a", &journal.ChangeDirectory{Path: "/one"})

			iterator, err := store.Read(context.Background(), 1)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			defer iterator.Close()

			mustAppend(t, store, "a", &journal.ChangeDirectory{Path: "/two"})

			count := 0
			for {
				_, err := iterator.Next()
				if err != nil {
					break
				}
				count++
			}
			if count != 1 {
				t.Errorf("iterator yielded %d records, want 1", count)
			}
		})
	}
}

func TestConcurrentAppendsFormTotalOrder(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t, clock.Real())

			const writers = 8
			const perWriter = 25
			var waitGroup sync.WaitGroup
			errs := make(chan error, writers)
			for writer := range writers {
				waitGroup.Add(1)
				go func() {
					defer waitGroup.Done()
					instance := fmt.Sprintf("instance-%d", writer)
					for i := range perWriter {
						entry := &journal.FileDescriptorSeek{Fd: wasi.Fd(writer), Offset: int64(i)}
						if _, err := store.Append(context.Background(), instance, entry); err != nil {
							errs <- err
							return
						}
					}
				}()
			}
			waitGroup.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("Append: %v", err)
			}

			records := mustReadAll(t, store, 1)
			if len(records) != writers*perWriter {
				t.Fatalf("read %d records, want %d", len(records), writers*perWriter)
			}
			lastOffset := map[string]int64{}
			for i, record := range records {
				if record.Seq != uint64(i+1) {
					t.Fatalf("record %d has Seq %d", i, record.Seq)
				}
				seek := record.Entry.(*journal.FileDescriptorSeek)
				if previous, seen := lastOffset[record.Instance]; seen && seek.Offset != previous+1 {
					t.Errorf("%s: offset %d follows %d", record.Instance, seek.Offset, previous)
				}
				lastOffset[record.Instance] = seek.Offset
			}
		})
	}
}

func TestTruncateBeforeSnapshot(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t, clock.Fake(epoch))

			mustAppend(t, store, "a", &journal.CreateDirectory{DirFd: 3, Path: "d"})
			mustAppend(t, store, "a", &journal.ChangeDirectory{Path: "/d"})
			snapshot := mustAppend(t, store, "a", &journal.Snapshot{When: epoch, Trigger: journal.SnapshotTriggerExplicit})
			mustAppend(t, store, "a", &journal.UnlinkFile{DirFd: 3, Path: "x"})

			err := store.TruncateBefore(ctx, 2)
			if !errors.Is(err, journal.ErrNotSnapshotBoundary) {
				t.Fatalf("TruncateBefore(non-snapshot) = %v, want ErrNotSnapshotBoundary", err)
			}
			if err := store.TruncateBefore(ctx, 99); !errors.Is(err, journal.ErrSeqOutOfRange) {
				t.Fatalf("TruncateBefore(99) = %v, want ErrSeqOutOfRange", err)
			}
			if n, _ := store.Len(ctx); n != 4 {
				t.Fatalf("failed truncation changed Len to %d", n)
			}

			if err := store.TruncateBefore(ctx, snapshot.Seq); err != nil {
				t.Fatalf("TruncateBefore(snapshot): %v", err)
			}
			first, next, err := store.Bounds(ctx)
			if err != nil {
				t.Fatalf("Bounds: %v", err)
			}
			if first != 3 || next != 5 {
				t.Errorf("Bounds = [%d, %d), want [3, 5)", first, next)
			}

			records := mustReadAll(t, store, 0)
			if len(records) != 2 || records[0].Entry.Kind() != journal.KindSnapshot {
				t.Fatalf("after truncation read %d records starting with %v", len(records), records)
			}

			appended := mustAppend(t, store, "a", &journal.ProcessExit{ExitCode: 3})
			if appended.Seq != 5 {
				t.Errorf("append after truncation got Seq %d, want 5", appended.Seq)
			}
			if records := mustReadAll(t, store, 0); len(records) != 3 {
				t.Errorf("read %d records after append, want 3", len(records))
			}
		})
	}
}

func TestCopyPreservesSequence(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			source := journal.NewMemoryStore(clock.Fake(epoch))
			mustAppend(t, source, "a", &journal.CreateDirectory{DirFd: 3, Path: "old"})
			mustAppend(t, source, "a", &journal.Snapshot{When: epoch, Trigger: journal.SnapshotTriggerSignal})
			mustAppend(t, source, "b", &journal.PathRename{OldDirFd: 3, OldPath: "x", NewDirFd: 3, NewPath: "y"})
			if err := source.TruncateBefore(ctx, 2); err != nil {
				t.Fatalf("TruncateBefore: %v", err)
			}

			destination := b.open(t, clock.Fake(epoch.Add(time.Hour)))
			copied, err := journal.Copy(ctx, destination, source, 0)
			if err != nil {
				t.Fatalf("Copy: %v", err)
			}
			if copied != 2 {
				t.Fatalf("copied %d records, want 2", copied)
			}

			records := mustReadAll(t, destination, 0)
			if len(records) != 2 {
				t.Fatalf("destination holds %d records", len(records))
			}
			if records[0].Seq != 2 || records[1].Seq != 3 {
				t.Errorf("copied sequence numbers %d, %d; want 2, 3", records[0].Seq, records[1].Seq)
			}
			if records[1].Instance != "b" {
				t.Errorf("copied instance %q, want b", records[1].Instance)
			}
			if !records[0].Time.Equal(epoch) {
				t.Errorf("copied time %v, want %v", records[0].Time, epoch)
			}
		})
	}
}

func TestClosedStore(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t, clock.Real())
			if err := store.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			_, err := store.Append(context.Background(), "a", &journal.CloseFileDescriptor{Fd: 3})
			if !errors.Is(err, journal.ErrClosed) {
				t.Errorf("Append after Close = %v, want ErrClosed", err)
			}
			if err := store.Close(); err != nil {
				t.Errorf("second Close: %v", err)
			}
		})
	}
}

func TestAppendHonorsCancellation(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t, clock.Real())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if _, err := store.Append(ctx, "a", &journal.CloseFileDescriptor{Fd: 3}); !errors.Is(err, context.Canceled) {
				t.Errorf("Append with cancelled context = %v", err)
			}
			if n, _ := store.Len(context.Background()); n != 0 {
				t.Errorf("cancelled append left %d records", n)
			}
		})
	}
}
