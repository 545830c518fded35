// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package wasix is the system-call layer of a WASIX instance with
// execution-state journaling.
//
// An [Env] owns an instance's descriptor table and working directory
// and borrows its capability providers: a [virtfs.FileSystem] and a
// [virtnet.Networking]. Every effectful call runs in three steps under
// the instance's call lock:
//
//  1. Host work queued through [Env.QueueSignal], [Env.QueueUnwind]
//     and [Env.QueueRewind] is drained on the calling goroutine.
//  2. The call's internal implementation computes the effect.
//  3. If the effect succeeded, exactly one [journal.Entry] describing
//     it is appended to the configured store.
//
// A failed call with no side effect appends nothing. A failed append
// terminates the instance: the call returns an [*ExitError] wrapping a
// [*SaveError], and every later call returns the same exit.
//
// [Restore] rebuilds an instance from a journal by re-executing each
// entry through the same internal implementations, with journaling
// suppressed. Calls that produce descriptors may be allocated any free
// id during replay; the replayer then moves the descriptor to the id
// the journal recorded, so the restored table matches the original
// id for id. Replay is fail-fast: the first entry that cannot be
// re-executed aborts the restore with a [*RestoreError] naming the
// entry's index.
//
// Reads of stdin and writes to stdout and stderr are not journaled.
// A read from a file is journaled as a seek to the new cursor position.
package wasix
