// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-line framework of wasix-journal.
//
// A [Command] tree is dispatched by [Command.Execute]: the first
// positional argument selects a subcommand (by name or alias), the
// rest is parsed with the command's pflag set and handed to Run. Help
// lists subcommands by [Command.Group]. Unknown commands and flags
// come back as a [UsageError] suggesting the closest known name within
// an edit distance of three.
//
// [LogOptions] and [NewLogger] give every command the same -v, -q and
// --log-format flags. [ExitError] lets a command that already reported
// its outcome pick the exit code.
package cli
