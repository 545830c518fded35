// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/hghpublic/wasmerio-wasmer/lib/sqlitepool"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal_meta (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS journal_records (
	seq         INTEGER PRIMARY KEY,
	instance    TEXT NOT NULL,
	time_ns     INTEGER NOT NULL,
	kind        INTEGER NOT NULL,
	compression INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	payload     BLOB NOT NULL,
	hash        BLOB NOT NULL
);
`

const (
	metaFormatVersion = "format_version"
	metaBaseSeq       = "base_seq"
	metaAnchor        = "anchor"

	// sqlitePageSize is how many rows an iterator fetches per query.
	sqlitePageSize = 256
)

// SQLiteStore keeps one row per record in a SQLite database. Payloads
// are encoded and chained exactly as in a FileStore. Appends compute the
// next sequence number inside an IMMEDIATE transaction, so several
// processes may append to the same database.
type SQLiteStore struct {
	path    string
	options Options
	logger  *slog.Logger
	pool    *sqlitepool.Pool

	mu     sync.Mutex
	closed bool
}

var (
	_ Store        = (*SQLiteStore)(nil)
	_ RecordWriter = (*SQLiteStore)(nil)
)

// OpenSQLite opens or creates a SQLite journal at path.
func OpenSQLite(path string, options Options) (*SQLiteStore, error) {
	options = options.withDefaults()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:    path,
		Durable: options.Sync == SyncAlways,
		Schema:  sqliteSchema,
		Logger:  options.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}

	store := &SQLiteStore{
		path:    path,
		options: options,
		logger:  options.Logger.With("journal", path),
		pool:    pool,
	}
	if err := store.initialize(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// initialize seeds the metadata rows of a new database and checks the
// format version of an existing one.
func (s *SQLiteStore) initialize(ctx context.Context) error {
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return s.seedMeta(conn)
	})
}

func (s *SQLiteStore) seedMeta(conn *sqlite.Conn) error {
	seed := map[string][]byte{
		metaFormatVersion: encodeUint64(fileFormatVersion),
		metaBaseSeq:       encodeUint64(1),
		metaAnchor:        make([]byte, len(Hash{})),
	}
	for key, value := range seed {
		err := sqlitex.Execute(conn, "INSERT OR IGNORE INTO journal_meta (key, value) VALUES (?, ?)", &sqlitex.ExecOptions{
			Args: []any{key, value},
		})
		if err != nil {
			return fmt.Errorf("initializing journal %s: %w", s.path, err)
		}
	}

	raw, err := readMetaValue(conn, metaFormatVersion)
	if err != nil {
		return err
	}
	version, ok := decodeUint64(raw)
	if !ok {
		return fmt.Errorf("%w: %s: malformed format version", ErrUnsupportedFormat, s.path)
	}
	if version > fileFormatVersion {
		return fmt.Errorf("%w: %s: format version %d is newer than %d", ErrUnsupportedFormat, s.path, version, fileFormatVersion)
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// take borrows a connection unless the store is closed.
func (s *SQLiteStore) take(ctx context.Context) (*sqlite.Conn, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.pool.Take(ctx)
}

// write runs fn under the database write lock unless the store is
// closed.
func (s *SQLiteStore) write(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.pool.Write(ctx, fn)
}

// sqliteTail describes where the next record goes.
type sqliteTail struct {
	base     uint64
	anchor   Hash
	next     uint64
	lastHash Hash
}

func (t sqliteTail) empty() bool { return t.next == t.base }

func readTail(conn *sqlite.Conn) (sqliteTail, error) {
	var tail sqliteTail

	raw, err := readMetaValue(conn, metaBaseSeq)
	if err != nil {
		return tail, err
	}
	base, ok := decodeUint64(raw)
	if !ok || base == 0 {
		return tail, fmt.Errorf("%w: malformed base sequence number", ErrCorrupt)
	}
	raw, err = readMetaValue(conn, metaAnchor)
	if err != nil {
		return tail, err
	}
	anchor, ok := hashFromBytes(raw)
	if !ok {
		return tail, fmt.Errorf("%w: anchor has %d bytes", ErrCorrupt, len(raw))
	}

	tail = sqliteTail{base: base, anchor: anchor, next: base, lastHash: anchor}
	err = sqlitex.Execute(conn, "SELECT seq, hash FROM journal_records ORDER BY seq DESC LIMIT 1", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			hash, ok := hashFromBytes(columnBlob(stmt, 1))
			if !ok {
				return fmt.Errorf("%w: record %d has a malformed hash", ErrCorrupt, stmt.ColumnInt64(0))
			}
			tail.next = uint64(stmt.ColumnInt64(0)) + 1
			tail.lastHash = hash
			return nil
		},
	})
	if err != nil {
		return tail, fmt.Errorf("reading journal tail: %w", err)
	}
	if tail.next < base {
		return tail, fmt.Errorf("%w: last record %d precedes base %d", ErrCorrupt, tail.next-1, base)
	}
	return tail, nil
}

func (s *SQLiteStore) Append(ctx context.Context, instance string, entry Entry) (Record, error) {
	var record Record
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		tail, err := readTail(conn)
		if err != nil {
			return err
		}
		record = Record{
			Seq:      tail.next,
			Instance: instance,
			Time:     normalizeTime(s.options.Clock.Now()),
			Entry:    entry,
		}
		return s.insert(conn, tail.lastHash, record)
	})
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (s *SQLiteStore) WriteRecord(ctx context.Context, record Record) error {
	record.Time = normalizeTime(record.Time)
	return s.write(ctx, func(conn *sqlite.Conn) error {
		tail, err := readTail(conn)
		if err != nil {
			return err
		}
		previous := tail.lastHash
		if record.Seq != tail.next {
			if !tail.empty() || record.Seq == 0 {
				return fmt.Errorf("%w: writing record %d, next is %d", ErrSeqOutOfRange, record.Seq, tail.next)
			}
			if err := writeMetaValue(conn, metaBaseSeq, encodeUint64(record.Seq)); err != nil {
				return err
			}
			if err := writeMetaValue(conn, metaAnchor, make([]byte, len(Hash{}))); err != nil {
				return err
			}
			previous = Hash{}
		}
		return s.insert(conn, previous, record)
	})
}

func (s *SQLiteStore) insert(conn *sqlite.Conn, previous Hash, record Record) error {
	wire, _, err := sealRecord(previous, record, s.options.Compression)
	if err != nil {
		return err
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO journal_records (seq, instance, time_ns, kind, compression, size, payload, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			int64(wire.Seq),
			wire.Instance,
			wire.Time,
			int64(wire.Kind),
			int64(wire.Compression),
			int64(wire.Size),
			wire.Payload,
			wire.Hash,
		},
	})
	if err != nil {
		return fmt.Errorf("appending record %d to %s: %w", record.Seq, s.path, err)
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, from uint64) (_ Iterator, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	endFn := sqlitex.Save(conn)
	defer endFn(&err)

	tail, err := readTail(conn)
	if err != nil {
		return nil, err
	}
	if from < tail.base {
		from = tail.base
	}
	if from >= tail.next {
		return &sliceIterator{}, nil
	}

	previous := tail.anchor
	if from > tail.base {
		found := false
		err = sqlitex.Execute(conn, "SELECT hash FROM journal_records WHERE seq = ?", &sqlitex.ExecOptions{
			Args: []any{int64(from - 1)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				hash, ok := hashFromBytes(columnBlob(stmt, 0))
				if !ok {
					return fmt.Errorf("%w: record %d has a malformed hash", ErrCorrupt, from-1)
				}
				previous = hash
				found = true
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: record %d is missing", ErrCorrupt, from-1)
		}
	}

	return &sqliteIterator{
		store:    s,
		ctx:      ctx,
		previous: previous,
		next:     from,
		end:      tail.next,
	}, nil
}

// sqliteIterator pages through the records that existed when it was
// created. Each page is one query on a briefly borrowed connection.
type sqliteIterator struct {
	store    *SQLiteStore
	ctx      context.Context
	previous Hash
	next     uint64
	end      uint64
	page     []wireRecord
}

func (it *sqliteIterator) Next() (Record, error) {
	if it.next >= it.end {
		return Record{}, io.EOF
	}
	if len(it.page) == 0 {
		if err := it.fetch(); err != nil {
			return Record{}, err
		}
	}

	wire := it.page[0]
	it.page = it.page[1:]
	if wire.Seq != it.next {
		return Record{}, fmt.Errorf("%w: record %d where %d was expected", ErrCorrupt, wire.Seq, it.next)
	}
	record, hash, err := openRecord(it.previous, wire)
	if err != nil {
		return Record{}, err
	}
	it.previous = hash
	it.next++
	return record, nil
}

func (it *sqliteIterator) fetch() error {
	conn, err := it.store.take(it.ctx)
	if err != nil {
		return err
	}
	defer it.store.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		SELECT seq, instance, time_ns, kind, compression, size, payload, hash
		FROM journal_records
		WHERE seq >= ? AND seq < ?
		ORDER BY seq
		LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{int64(it.next), int64(it.end), int64(sqlitePageSize)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			it.page = append(it.page, wireRecord{
				Seq:         uint64(stmt.ColumnInt64(0)),
				Instance:    stmt.ColumnText(1),
				Time:        stmt.ColumnInt64(2),
				Kind:        EntryKind(stmt.ColumnInt64(3)),
				Compression: Compression(stmt.ColumnInt64(4)),
				Size:        int(stmt.ColumnInt64(5)),
				Payload:     columnBlob(stmt, 6),
				Hash:        columnBlob(stmt, 7),
			})
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("reading records from %d: %w", it.next, err)
	}
	if len(it.page) == 0 {
		return fmt.Errorf("%w: record %d was truncated while reading", ErrSeqOutOfRange, it.next)
	}
	return nil
}

func (it *sqliteIterator) Close() error {
	it.page = nil
	it.next = it.end
	return nil
}

// TruncateBefore deletes the rows before seq and moves the anchor to
// the hash of the last deleted record, then checkpoints the
// write-ahead log so the space is reclaimed.
func (s *SQLiteStore) TruncateBefore(ctx context.Context, seq uint64) error {
	var discarded uint64
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		tail, err := readTail(conn)
		if err != nil {
			return err
		}
		if seq < tail.base || seq >= tail.next {
			return fmt.Errorf("%w: truncating before %d, journal holds [%d, %d)", ErrSeqOutOfRange, seq, tail.base, tail.next)
		}

		var kind EntryKind
		err = sqlitex.Execute(conn, "SELECT kind FROM journal_records WHERE seq = ?", &sqlitex.ExecOptions{
			Args: []any{int64(seq)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				kind = EntryKind(stmt.ColumnInt64(0))
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("reading record %d: %w", seq, err)
		}
		if kind != KindSnapshot {
			return fmt.Errorf("%w: record %d is %s", ErrNotSnapshotBoundary, seq, kind)
		}
		if seq == tail.base {
			return nil
		}

		var anchor []byte
		err = sqlitex.Execute(conn, "SELECT hash FROM journal_records WHERE seq = ?", &sqlitex.ExecOptions{
			Args: []any{int64(seq - 1)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				anchor = columnBlob(stmt, 0)
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("reading record %d: %w", seq-1, err)
		}
		if _, ok := hashFromBytes(anchor); !ok {
			return fmt.Errorf("%w: record %d has a malformed hash", ErrCorrupt, seq-1)
		}

		err = sqlitex.Execute(conn, "DELETE FROM journal_records WHERE seq < ?", &sqlitex.ExecOptions{
			Args: []any{int64(seq)},
		})
		if err != nil {
			return fmt.Errorf("truncating journal %s: %w", s.path, err)
		}
		if err := writeMetaValue(conn, metaBaseSeq, encodeUint64(seq)); err != nil {
			return err
		}
		if err := writeMetaValue(conn, metaAnchor, anchor); err != nil {
			return err
		}
		discarded = seq - tail.base
		return nil
	})
	if err != nil || discarded == 0 {
		return err
	}

	s.logger.Info("journal truncated",
		"first_seq", seq,
		"discarded_records", discarded,
	)
	if _, err := s.pool.Checkpoint(ctx); err != nil {
		// The truncation is committed; only space reclamation failed.
		s.logger.Warn("checkpoint after truncation failed", "error", err)
	}
	return nil
}

func (s *SQLiteStore) Bounds(ctx context.Context) (first, next uint64, err error) {
	if err := s.checkOpen(); err != nil {
		return 0, 0, err
	}
	err = s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		tail, err := readTail(conn)
		first, next = tail.base, tail.next
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return first, next, nil
}

func (s *SQLiteStore) Len(ctx context.Context) (uint64, error) {
	first, next, err := s.Bounds(ctx)
	return next - first, err
}

// Close waits for borrowed connections and closes the database.
// Closing a closed store is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.pool.Close()
}

func readMetaValue(conn *sqlite.Conn, key string) ([]byte, error) {
	var value []byte
	found := false
	err := sqlitex.Execute(conn, "SELECT value FROM journal_meta WHERE key = ?", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnBlob(stmt, 0)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reading journal metadata %q: %w", key, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: journal metadata %q is missing", ErrUnsupportedFormat, key)
	}
	return value, nil
}

func writeMetaValue(conn *sqlite.Conn, key string, value []byte) error {
	err := sqlitex.Execute(conn, "INSERT OR REPLACE INTO journal_meta (key, value) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{key, value},
	})
	if err != nil {
		return fmt.Errorf("writing journal metadata %q: %w", key, err)
	}
	return nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	buffer := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, buffer)
	return buffer
}

func encodeUint64(value uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, value)
}

func decodeUint64(data []byte) (uint64, bool) {
	if len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}
