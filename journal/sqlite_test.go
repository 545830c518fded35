// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/clock"
	"github.com/hghpublic/wasmerio-wasmer/lib/sqlitepool"
	"github.com/hghpublic/wasmerio-wasmer/lib/testutil"
)

func TestSQLiteStoreReopenAfterTruncation(t *testing.T) {
	ctx := context.Background()
	path := testutil.JournalPath(t, ".sqlite")
	options := journal.Options{Clock: clock.Fake(epoch)}

	store, err := journal.OpenSQLite(path, options)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	mustAppend(t, store, "a", &journal.CreateDirectory{DirFd: 3, Path: "tmp"})
	snapshot := mustAppend(t, store, "a", &journal.Snapshot{When: epoch, Trigger: journal.SnapshotTriggerExplicit})
	mustAppend(t, store, "a", &journal.RemoveDirectory{DirFd: 3, Path: "tmp"})
	if err := store.TruncateBefore(ctx, snapshot.Seq); err != nil {
		t.Fatalf("TruncateBefore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openStore(t, path, options)
	records := mustReadAll(t, reopened, 0)
	if len(records) != 2 {
		t.Fatalf("read %d records, want 2", len(records))
	}
	if records[0].Seq != snapshot.Seq {
		t.Errorf("first retained Seq = %d, want %d", records[0].Seq, snapshot.Seq)
	}
	// Reading from the middle verifies against the stored hash of the
	// previous record rather than the anchor.
	if records := mustReadAll(t, reopened, snapshot.Seq+1); len(records) != 1 {
		t.Errorf("read %d records from %d, want 1", len(records), snapshot.Seq+1)
	}
}

func TestSQLiteStoreSharedBetweenHandles(t *testing.T) {
	path := testutil.JournalPath(t, ".db")
	first := openStore(t, path, journal.Options{})
	second := openStore(t, path, journal.Options{})

	mustAppend(t, first, "a", &journal.ChangeDirectory{Path: "/a"})
	mustAppend(t, second, "b", &journal.ChangeDirectory{Path: "/b"})
	mustAppend(t, first, "a", &journal.ChangeDirectory{Path: "/c"})

	records := mustReadAll(t, second, 0)
	if len(records) != 3 {
		t.Fatalf("read %d records, want 3", len(records))
	}
	for i, record := range records {
		if record.Seq != uint64(i+1) {
			t.Errorf("record %d has Seq %d", i, record.Seq)
		}
	}
}

func TestSQLiteStoreRejectsNewerFormat(t *testing.T) {
	path := testutil.JournalPath(t, ".db")
	store, err := journal.OpenSQLite(path, journal.Options{})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	store.Close()

	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, Connections: 1})
	if err != nil {
		t.Fatalf("sqlitepool.Open: %v", err)
	}
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	err = sqlitex.Execute(conn, "UPDATE journal_meta SET value = ? WHERE key = 'format_version'", &sqlitex.ExecOptions{
		Args: []any{binary.BigEndian.AppendUint64(nil, 99)},
	})
	pool.Put(conn)
	pool.Close()
	if err != nil {
		t.Fatalf("UPDATE: %v", err)
	}

	_, err = journal.OpenSQLite(path, journal.Options{})
	if !errors.Is(err, journal.ErrUnsupportedFormat) {
		t.Fatalf("OpenSQLite(newer format) = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSQLiteStoreDetectsTampering(t *testing.T) {
	path := testutil.JournalPath(t, ".db")
	store := openStore(t, path, journal.Options{})
	mustAppend(t, store, "a", &journal.UnlinkFile{DirFd: 3, Path: "x"})
	mustAppend(t, store, "a", &journal.UnlinkFile{DirFd: 3, Path: "y"})

	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, Connections: 1})
	if err != nil {
		t.Fatalf("sqlitepool.Open: %v", err)
	}
	defer pool.Close()
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	err = sqlitex.Execute(conn, "UPDATE journal_records SET instance = 'b' WHERE seq = 1", nil)
	pool.Put(conn)
	if err != nil {
		t.Fatalf("UPDATE: %v", err)
	}

	_, err = journal.ReadAll(context.Background(), store, 0)
	if !errors.Is(err, journal.ErrCorrupt) {
		t.Fatalf("ReadAll(tampered) = %v, want ErrCorrupt", err)
	}
}
