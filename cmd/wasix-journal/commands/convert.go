// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
	"github.com/hghpublic/wasmerio-wasmer/journal"
)

func (a *app) convertCommand() *cli.Command {
	var common commonOptions
	return &cli.Command{
		Name:    "convert",
		Group:   "Maintenance",
		Summary: "Copy a journal's records into a new journal",
		Description: `Copy every record of a journal into a new journal.

The destination's extension picks its backend: .db, .sqlite and
.sqlite3 use SQLite, anything else the record file format. Records
keep their sequence numbers, instances and times; the destination
uses the configured compression.`,
		Usage: "wasix-journal convert <source> <destination> [flags]",
		Examples: []cli.Example{
			{Description: "Move a journal to SQLite", Command: "wasix-journal convert app.wjournal app.db"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("convert", pflag.ContinueOnError)
			common.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, "<source>", "<destination>"); err != nil {
				return err
			}
			s, err := a.setup("convert", &common)
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[1]); err == nil {
				return fmt.Errorf("destination %s already exists", args[1])
			}

			source, err := s.openJournal(args[0])
			if err != nil {
				return err
			}
			defer closeJournal(source, s.logger)

			copied, err := s.copyInto(a, args[1], source)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.streams.Out, "copied %d records to %s\n", copied, args[1])
			return nil
		},
	}
}

// copyInto creates the journal at path and copies every record of
// source into it. On failure the partial destination is removed.
func (s *session) copyInto(a *app, path string, source journal.Store) (int, error) {
	destination, err := s.createJournal(path)
	if err != nil {
		return 0, err
	}
	copied, err := journal.Copy(a.ctx, destination, source, 0)
	closeErr := destination.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("copying into %s: %w", path, err)
	}
	s.logger.Info("records copied", "destination", path, "count", copied)
	return copied, nil
}
