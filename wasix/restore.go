// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/hghpublic/wasmerio-wasmer/journal"
)

// RestoreOptions tune a restore.
type RestoreOptions struct {
	// OnApplied is called after each record has been applied.
	OnApplied func(index int, record journal.Record)
}

// Restore re-executes, in stored order, every record from records that
// belongs to env's instance. Records of other instances are skipped.
// It returns the number of records applied.
//
// The env's call lock is held for the whole restore and journaling is
// suppressed, so the restore neither interleaves with guest calls nor
// appends to the journal being read. The first failure aborts the
// restore with a *RestoreError; the env is then in an unspecified
// partially restored state and should be discarded.
func Restore(ctx context.Context, env *Env, records journal.Iterator, options RestoreOptions) (int, error) {
	return restore(ctx, records, map[string]*Env{env.instance: env}, true, options)
}

// RestoreAll replays a journal shared by several instances, routing
// each record to the target registered under its instance id. A record
// for an instance with no target fails the restore with
// ErrUnknownInstance.
func RestoreAll(ctx context.Context, records journal.Iterator, targets map[string]*Env, options RestoreOptions) (int, error) {
	return restore(ctx, records, targets, false, options)
}

func restore(ctx context.Context, records journal.Iterator, targets map[string]*Env, skipUnknown bool, options RestoreOptions) (int, error) {
	// Lock in id order so concurrent restores over overlapping target
	// sets cannot deadlock.
	for _, id := range slices.Sorted(maps.Keys(targets)) {
		env := targets[id]
		env.callMu.Lock()
		env.replaying = true
		defer func() {
			env.replaying = false
			env.callMu.Unlock()
		}()
	}

	applied := 0
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		record, err := records.Next()
		if errors.Is(err, io.EOF) {
			return applied, nil
		}
		if err != nil {
			return applied, fmt.Errorf("reading journal record %d: %w", index, err)
		}

		env, ok := targets[record.Instance]
		if !ok {
			if skipUnknown {
				continue
			}
			return applied, &RestoreError{
				Index:    index,
				Seq:      record.Seq,
				Instance: record.Instance,
				Kind:     record.Entry.Kind(),
				Err:      fmt.Errorf("%w %q", ErrUnknownInstance, record.Instance),
			}
		}

		if err := journal.Apply(ctx, record.Entry, &replayer{env: env}); err != nil {
			env.logger.Error("restore failed",
				"index", index,
				"seq", record.Seq,
				"kind", record.Entry.Kind(),
				"error", err,
			)
			return applied, &RestoreError{
				Index:    index,
				Seq:      record.Seq,
				Instance: record.Instance,
				Kind:     record.Entry.Kind(),
				Err:      err,
			}
		}
		applied++
		if options.OnApplied != nil {
			options.OnApplied(index, record)
		}
	}
}
