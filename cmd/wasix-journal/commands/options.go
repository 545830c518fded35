// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/config"
)

// commonOptions are the flags every command accepts.
type commonOptions struct {
	configPath string
	log        cli.LogOptions
}

func (o *commonOptions) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.configPath, "config", "", "config file (default $WASIX_CONFIG, else built-in defaults)")
	o.log.AddFlags(flagSet)
}

// session is what a command works with once its common flags are
// resolved.
type session struct {
	config *config.Config
	logger *slog.Logger
	// color is the --color mode for human-readable output.
	color string
}

func (a *app) setup(command string, options *commonOptions) (*session, error) {
	logger, err := cli.NewLogger(a.streams.Err, options.log)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(options.configPath)
	if err != nil {
		return nil, err
	}
	return &session{config: cfg, logger: logger.With("command", command), color: options.log.Color}, nil
}

// loadConfig reads the file named by --config or WASIX_CONFIG. With
// neither set the built-in defaults apply, since every command names
// its journal explicitly.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case os.Getenv("WASIX_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openJournal opens an existing journal. Opening never creates one for
// a read-side command.
func (s *session) openJournal(path string) (journal.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return s.createJournal(path)
}

// createJournal opens path, creating an empty journal if needed, with
// the configured compression and sync mode.
func (s *session) createJournal(path string) (journal.Store, error) {
	options, err := s.config.JournalOptions(s.logger)
	if err != nil {
		return nil, err
	}
	store, err := journal.Open(path, options)
	if errors.Is(err, journal.ErrLocked) {
		return nil, fmt.Errorf("%s is in use by another process: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	return store, nil
}

func closeJournal(store journal.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Error("closing journal failed", "error", err)
	}
}
