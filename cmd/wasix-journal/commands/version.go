// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
	"github.com/hghpublic/wasmerio-wasmer/lib/version"
)

func (a *app) versionCommand() *cli.Command {
	var short bool
	return &cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVar(&short, "short", false, "print only the version line")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			if short {
				fmt.Fprintln(a.streams.Out, version.Info())
				return nil
			}
			fmt.Fprintf(a.streams.Out, "wasix-journal %s\n", version.Full())
			return nil
		},
	}
}
