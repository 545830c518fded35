// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// Values accepted by --color.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// LogOptions are the logging and output flags every command accepts.
type LogOptions struct {
	// Verbosity raises the level: 0 warn, 1 info, 2 or more debug.
	Verbosity int

	// Quiet limits output to errors and wins over Verbosity.
	Quiet bool

	// Format is text, json or auto.
	Format string

	// Color is auto, always or never. Auto styles human-readable
	// output only when it goes to a terminal.
	Color string
}

// AddFlags registers -v, -q, --log-format and --color on flagSet.
func (o *LogOptions) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.CountVarP(&o.Verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	flagSet.BoolVarP(&o.Quiet, "quiet", "q", false, "log errors only")
	flagSet.StringVar(&o.Format, "log-format", "auto", "log format: text, json or auto")
	flagSet.StringVar(&o.Color, "color", ColorAuto, "style output: auto, always or never")
}

// CheckColor returns an error unless mode is a --color value. Empty
// means auto.
func CheckColor(mode string) error {
	switch mode {
	case "", ColorAuto, ColorAlways, ColorNever:
		return nil
	}
	return fmt.Errorf("unknown color mode %q (want auto, always or never)", mode)
}

// Level returns the minimum level the options select.
func (o LogOptions) Level() slog.Level {
	switch {
	case o.Quiet:
		return slog.LevelError
	case o.Verbosity >= 2:
		return slog.LevelDebug
	case o.Verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// NewLogger creates the structured logger for a command. With format
// auto, a terminal gets slog.TextHandler for human-readable output and
// anything else (CI, scripts, pipes) gets slog.JSONHandler.
func NewLogger(w io.Writer, options LogOptions) (*slog.Logger, error) {
	if err := CheckColor(options.Color); err != nil {
		return nil, err
	}
	handlerOptions := &slog.HandlerOptions{Level: options.Level()}

	format := options.Format
	if format == "" || format == "auto" {
		format = "json"
		if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			format = "text"
		}
	}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOptions)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOptions)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text, json or auto)", options.Format)
	}
}
