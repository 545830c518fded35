// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"context"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// ProcExit terminates the instance with code. It always returns an
// *ExitError; if the exit could not be journaled the code is
// ErrnoFault and the cause a *SaveError.
func (e *Env) ProcExit(ctx context.Context, code wasi.ExitCode) error {
	if err := e.begin(ctx, "proc_exit"); err != nil {
		return err
	}
	defer e.end()
	return e.exitProcess(ctx, code, wasi.SignalNone)
}

// procExitInternal marks the instance terminated without journaling.
func (e *Env) procExitInternal(code wasi.ExitCode) {
	e.terminate(&ExitError{Code: code})
}

// Snapshot journals a snapshot marker and returns its sequence number.
// A journal can be truncated before that sequence number once the
// state it describes has been captured elsewhere. Without a journal
// the returned sequence number is zero.
func (e *Env) Snapshot(ctx context.Context, trigger journal.SnapshotTrigger) (uint64, error) {
	if err := e.begin(ctx, "snapshot"); err != nil {
		return 0, err
	}
	defer e.end()

	if trigger == "" {
		trigger = journal.SnapshotTriggerExplicit
	}
	record, err := e.saveSnapshot(ctx, trigger)
	if err != nil {
		return 0, err
	}
	return record.Seq, nil
}
