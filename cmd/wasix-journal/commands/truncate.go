// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
	"github.com/hghpublic/wasmerio-wasmer/journal"
)

func (a *app) truncateCommand() *cli.Command {
	var (
		common       commonOptions
		before       uint64
		lastSnapshot bool
	)
	return &cli.Command{
		Name:    "truncate",
		Group:   "Maintenance",
		Summary: "Discard records before a snapshot",
		Description: `Discard every record before a snapshot record.

The snapshot record itself is kept and becomes the first record. The
journal is rewritten atomically, so a crash leaves either the old or
the new journal.`,
		Usage: "wasix-journal truncate <journal> (--before SEQ | --last-snapshot) [flags]",
		Examples: []cli.Example{
			{Description: "Keep only the records since the newest snapshot", Command: "wasix-journal truncate app.wjournal --last-snapshot"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("truncate", pflag.ContinueOnError)
			common.addFlags(flagSet)
			flagSet.Uint64Var(&before, "before", 0, "sequence number of the snapshot record to keep first")
			flagSet.BoolVar(&lastSnapshot, "last-snapshot", false, "truncate before the newest snapshot record")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, "<journal>"); err != nil {
				return err
			}
			if (before != 0) == lastSnapshot {
				return fmt.Errorf("exactly one of --before or --last-snapshot is required")
			}
			s, err := a.setup("truncate", &common)
			if err != nil {
				return err
			}
			store, err := s.openJournal(args[0])
			if err != nil {
				return err
			}
			defer closeJournal(store, s.logger)

			if lastSnapshot {
				before, err = newestSnapshot(a, store)
				if err != nil {
					return err
				}
			}

			lengthBefore, err := store.Len(a.ctx)
			if err != nil {
				return err
			}
			if err := store.TruncateBefore(a.ctx, before); err != nil {
				return fmt.Errorf("truncating before seq %d: %w", before, err)
			}
			lengthAfter, err := store.Len(a.ctx)
			if err != nil {
				return err
			}
			s.logger.Info("journal truncated", "before", before, "removed", lengthBefore-lengthAfter)
			fmt.Fprintf(a.streams.Out, "removed %d records; journal now starts at seq %d\n", lengthBefore-lengthAfter, before)
			return nil
		},
	}
}

// newestSnapshot returns the sequence number of the last Snapshot
// record.
func newestSnapshot(a *app, store journal.Store) (uint64, error) {
	iterator, err := store.Read(a.ctx, 0)
	if err != nil {
		return 0, err
	}
	defer iterator.Close()

	var newest uint64
	for {
		record, err := iterator.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading journal: %w", err)
		}
		if record.Entry.Kind() == journal.KindSnapshot {
			newest = record.Seq
		}
	}
	if newest == 0 {
		return 0, fmt.Errorf("journal has no snapshot record")
	}
	return newest, nil
}
