// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool prepares pools of zombiezen.com/go/sqlite
// connections for the SQLite journal backend.
//
// Every connection runs in WAL mode with a busy timeout, so several
// processes can append to one database while others read it. Writes go
// through [Pool.Write], which holds the write lock for the whole
// callback; consistent multi-query reads go through [Pool.Read].
// [Pool.Checkpoint] folds the log back into the database after large
// deletions such as a journal truncation.
package sqlitepool
