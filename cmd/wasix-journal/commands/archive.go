// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/atomicfile"
	"github.com/hghpublic/wasmerio-wasmer/lib/sealed"
)

// An archive is a journal in the record file format, sealed with age.
// The record format carries its own hash chain, so an import verifies
// the records as well as the ciphertext.
const archiveJournalName = "archive.wjournal"

func (a *app) exportCommand() *cli.Command {
	var (
		common     commonOptions
		recipients []string
		output     string
		armored    bool
	)
	return &cli.Command{
		Name:    "export",
		Group:   "Archives",
		Summary: "Write an encrypted archive of a journal",
		Description: `Write every record of a journal to an age-encrypted archive.

Any of the recipients can import the archive. The archive is written
atomically with mode 0600.`,
		Usage: "wasix-journal export <journal> --recipient KEY... --output FILE [flags]",
		Examples: []cli.Example{
			{Description: "Archive for an operator and an escrow key", Command: "wasix-journal export app.db --recipient age1op... --recipient age1escrow... --output app.age"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			common.addFlags(flagSet)
			flagSet.StringArrayVar(&recipients, "recipient", nil, "age public key (age1...) to encrypt to (repeatable)")
			flagSet.StringVarP(&output, "output", "o", "", "archive file to write")
			flagSet.BoolVar(&armored, "armor", false, "write PEM-style ASCII armor")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, "<journal>"); err != nil {
				return err
			}
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			ageRecipients, err := sealed.ParseRecipients(recipients)
			if err != nil {
				return err
			}
			s, err := a.setup("export", &common)
			if err != nil {
				return err
			}
			source, err := s.openJournal(args[0])
			if err != nil {
				return err
			}
			defer closeJournal(source, s.logger)

			staging, err := os.MkdirTemp("", "wasix-export-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(staging)

			stagedPath := filepath.Join(staging, archiveJournalName)
			copied, err := s.copyInto(a, stagedPath, source)
			if err != nil {
				return err
			}

			staged, err := os.Open(stagedPath)
			if err != nil {
				return err
			}
			defer staged.Close()

			err = atomicfile.Write(output, 0600, func(w io.Writer) error {
				encryptor, err := sealed.Encrypt(w, ageRecipients, armored)
				if err != nil {
					return err
				}
				if _, err := io.Copy(encryptor, staged); err != nil {
					return fmt.Errorf("encrypting journal: %w", err)
				}
				return encryptor.Close()
			})
			if err != nil {
				return err
			}
			s.logger.Info("journal exported", "output", output, "records", copied,
				"recipients", sealed.FormatRecipients(recipients))
			fmt.Fprintf(a.streams.Out, "exported %d records to %s\n", copied, output)
			return nil
		},
	}
}

func (a *app) importCommand() *cli.Command {
	var (
		common   commonOptions
		identity string
		output   string
	)
	return &cli.Command{
		Name:    "import",
		Group:   "Archives",
		Summary: "Restore a journal from an encrypted archive",
		Description: `Decrypt an archive written by export into a new journal.

The records are verified against their hash chain before anything is
written. The output's extension picks its backend.`,
		Usage: "wasix-journal import <archive> --identity FILE --output JOURNAL [flags]",
		Examples: []cli.Example{
			{Description: "Import into SQLite", Command: "wasix-journal import app.age --identity ~/.config/age/key.txt --output app.db"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			common.addFlags(flagSet)
			flagSet.StringVarP(&identity, "identity", "i", "", "age identity file, or - for stdin")
			flagSet.StringVarP(&output, "output", "o", "", "journal to create")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, "<archive>"); err != nil {
				return err
			}
			if identity == "" || output == "" {
				return fmt.Errorf("--identity and --output are required")
			}
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("output %s already exists", output)
			}
			identities, err := sealed.ReadIdentities(identity)
			if err != nil {
				return err
			}
			s, err := a.setup("import", &common)
			if err != nil {
				return err
			}

			archive, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer archive.Close()
			plaintext, err := sealed.Decrypt(archive, identities)
			if err != nil {
				return err
			}

			staging, err := os.MkdirTemp("", "wasix-import-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(staging)
			stagedPath := filepath.Join(staging, archiveJournalName)
			if err := writeStaged(stagedPath, plaintext); err != nil {
				return err
			}

			source, err := journal.OpenFile(stagedPath, journal.Options{Logger: s.logger})
			if err != nil {
				return fmt.Errorf("reading archived journal: %w", err)
			}
			defer closeJournal(source, s.logger)

			copied, err := s.copyInto(a, output, source)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.streams.Out, "imported %d records into %s\n", copied, output)
			return nil
		},
	}
}

func writeStaged(path string, plaintext io.Reader) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, plaintext); err != nil {
		file.Close()
		return fmt.Errorf("decrypting archive: %w", err)
	}
	return file.Close()
}
