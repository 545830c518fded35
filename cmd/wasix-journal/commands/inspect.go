// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
	"github.com/hghpublic/wasmerio-wasmer/journal"
)

// recordView is the printed form of one record.
type recordView struct {
	Seq      uint64    `json:"seq"`
	Instance string    `json:"instance"`
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	Fd       *uint32   `json:"fd,omitempty"`
	Entry    string    `json:"entry,omitempty"`
}

func (a *app) inspectCommand() *cli.Command {
	var (
		common     commonOptions
		from       uint64
		instance   string
		diagnostic bool
		outputJSON bool
	)
	return &cli.Command{
		Name:    "inspect",
		Aliases: []string{"cat"},
		Group:   "Inspection",
		Summary: "List the records in a journal",
		Description: `List the records in a journal in sequence order.

Each line shows the sequence number, append time, instance and entry
kind, plus the descriptor the entry acts on. --diag adds the entry's
fields in CBOR diagnostic notation.`,
		Usage: "wasix-journal inspect <journal> [flags]",
		Examples: []cli.Example{
			{Description: "Show one instance's records with their fields", Command: "wasix-journal inspect app.wjournal --instance 0192f0c1-... --diag"},
			{Description: "Machine-readable listing", Command: "wasix-journal inspect app.db --json"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			common.addFlags(flagSet)
			flagSet.Uint64Var(&from, "from", 0, "first sequence number to list")
			flagSet.StringVar(&instance, "instance", "", "only list records of this instance")
			flagSet.BoolVar(&diagnostic, "diag", false, "include entry fields in CBOR diagnostic notation")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, "<journal>"); err != nil {
				return err
			}
			s, err := a.setup("inspect", &common)
			if err != nil {
				return err
			}
			store, err := s.openJournal(args[0])
			if err != nil {
				return err
			}
			defer closeJournal(store, s.logger)

			views, err := collectViews(a, store, from, instance, diagnostic)
			if err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(a.streams.Out, views)
			}
			return printViews(a.streams.Out, views)
		},
	}
}

func collectViews(a *app, store journal.Store, from uint64, instance string, diagnostic bool) ([]recordView, error) {
	iterator, err := store.Read(a.ctx, from)
	if err != nil {
		return nil, err
	}
	defer iterator.Close()

	var views []recordView
	for {
		record, err := iterator.Next()
		if errors.Is(err, io.EOF) {
			return views, nil
		}
		if err != nil {
			return views, fmt.Errorf("reading journal: %w", err)
		}
		if instance != "" && record.Instance != instance {
			continue
		}
		view := recordView{
			Seq:      record.Seq,
			Instance: record.Instance,
			Time:     record.Time.UTC(),
			Kind:     record.Entry.Kind().String(),
		}
		if fd, ok := journal.DescriptorOf(record.Entry); ok {
			value := uint32(fd)
			view.Fd = &value
		}
		if diagnostic {
			view.Entry, err = journal.Diagnose(record.Entry)
			if err != nil {
				return views, fmt.Errorf("record %d: %w", record.Seq, err)
			}
		}
		views = append(views, view)
	}
}

func printViews(w io.Writer, views []recordView) error {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tINSTANCE\tKIND\tFD")
	for _, view := range views {
		fd := "-"
		if view.Fd != nil {
			fd = fmt.Sprint(*view.Fd)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", view.Seq, view.Time.Format(time.RFC3339Nano), view.Instance, view.Kind, fd)
		if view.Entry != "" {
			fmt.Fprintf(tw, "\t\t\t  %s\t\n", view.Entry)
		}
	}
	return tw.Flush()
}
