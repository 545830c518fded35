// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultBusyTimeout is how long a writer waits for another process to
// release the write lock before failing with SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// Config describes a database and how its connections are prepared.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// Connections is the pool size. Zero means 4.
	Connections int

	// Durable syncs the write-ahead log on every commit
	// (synchronous=FULL). Otherwise commits survive a process crash but
	// not necessarily a power failure (synchronous=NORMAL).
	Durable bool

	// BusyTimeout overrides DefaultBusyTimeout.
	BusyTimeout time.Duration

	// Schema is a script run on every new connection. It must be
	// idempotent (CREATE TABLE IF NOT EXISTS and the like).
	Schema string

	// Logger receives open, checkpoint and close messages. Nil
	// discards them.
	Logger *slog.Logger
}

// Pool hands out prepared connections. It is safe for concurrent use;
// the connections it returns are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are prepared lazily, so schema
// errors surface from the first Take, Read or Write.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlitepool: Path is required")
	}
	connections := cfg.Connections
	if connections <= 0 {
		connections = 4
	}
	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pragmas := connectionPragmas(cfg.Durable, busyTimeout)
	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: connections,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
				}
			}
			if cfg.Schema == "" {
				return nil
			}
			if err := sqlitex.ExecuteScript(conn, cfg.Schema, nil); err != nil {
				return fmt.Errorf("sqlitepool: applying schema: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Debug("sqlite pool opened",
		"path", cfg.Path,
		"connections", connections,
		"durable", cfg.Durable,
	)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

func connectionPragmas(durable bool, busyTimeout time.Duration) []string {
	synchronous := "NORMAL"
	if durable {
		synchronous = "FULL"
	}
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=" + synchronous,
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA temp_store=MEMORY",
	}
}

// Take borrows a connection, blocking until one is free or ctx is
// done. Pair every successful Take with Put. Prefer Read and Write,
// which scope the work in a transaction.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection. Put(nil) is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Write runs fn inside an IMMEDIATE transaction. The write lock is
// taken before fn runs, so a read-modify-write in fn cannot race a
// writer in another process. The transaction commits when fn returns
// nil and rolls back otherwise.
func (p *Pool) Write(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin: %w", err)
	}
	defer endFn(&err)
	return fn(conn)
}

// Read runs fn inside a savepoint so every query in fn sees the same
// snapshot of the database.
func (p *Pool) Read(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	endFn := sqlitex.Save(conn)
	defer endFn(&err)
	return fn(conn)
}

// Checkpoint copies the write-ahead log into the database and resets
// it. It returns the number of log frames moved. Readers holding old
// snapshots make the checkpoint partial; that is not an error.
func (p *Pool) Checkpoint(ctx context.Context) (frames int, err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer p.Put(conn)

	busy := false
	err = sqlitex.ExecuteTransient(conn, "PRAGMA wal_checkpoint(TRUNCATE)", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			busy = stmt.ColumnInt(0) != 0
			frames = stmt.ColumnInt(2)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: checkpointing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite checkpoint",
		"path", p.path,
		"frames", frames,
		"partial", busy,
	)
	return frames, nil
}

// Path returns the database path.
func (p *Pool) Path() string { return p.path }

// Close waits for borrowed connections to return and closes them all.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}
