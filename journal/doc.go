// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal defines the execution-state journal of a WASIX
// instance: the closed set of entries that describe the effects of
// completed system calls, and the append-only stores that persist them
// in order.
//
// # Entries
//
// Each journalable call family has exactly one entry variant, a plain
// struct whose fields are everything needed to reproduce the effect.
// The set is sealed: [Entry] has an unexported method, so variants can
// only be declared in this package. Dispatch is exhaustive at compile
// time through [Applier], which has one method per variant. The replay
// side of the runtime implements Applier, so declaring a variant
// without its replay counterpart fails to build.
//
// Every variant has a stable [EntryKind]. Kinds are persisted and are
// never renumbered or reused.
//
// # Stores
//
// A [Store] holds an ordered sequence of [Record] values, each wrapping
// one entry with the sequence number assigned at append, the id of the
// instance that produced it, and the append time. Appends from any
// number of goroutines are serialized into a single total order. The
// only removal is [Store.TruncateBefore], and only at a snapshot
// boundary.
//
// Three backends are provided:
//
//   - [MemoryStore] keeps records in a slice. Used by tests and as the
//     staging journal for dry-run replays.
//   - [FileStore] writes a CBOR sequence of records to a single file,
//     each record compressed (LZ4 or zstd) when that shrinks it and
//     linked to its predecessor by a keyed BLAKE3 hash chain. The file
//     is held under an exclusive flock while open.
//   - [SQLiteStore] keeps one row per record in a SQLite database,
//     with the same payload encoding and hash chain.
//
// [Open] selects a backend from the path's extension.
package journal
