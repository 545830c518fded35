// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the command tree.
type Command struct {
	// Name is what the user types, e.g. "inspect".
	Name string

	// Aliases are alternative names accepted for dispatch.
	Aliases []string

	// Group titles the section this command is listed under in the
	// parent's help. Commands without a group are listed under
	// "Commands".
	Group string

	// Summary is the one-line description in the parent's listing.
	Summary string

	// Description is shown at the top of the command's own help.
	Description string

	// Usage overrides the synthesized usage line, e.g.
	// "wasix-journal inspect <journal> [flags]".
	Usage string

	Examples []Example

	// Flags builds the flag set. It is called on every Execute and
	// every help render, so it must return a fresh set each time.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	// When Subcommands is also set, Run handles arguments that name no
	// subcommand.
	Run func(args []string) error

	// HelpOutput receives help text. Inherited from the parent when
	// nil; os.Stderr at the root.
	HelpOutput io.Writer

	parent *Command
}

// Example is a usage example shown in help output.
type Example struct {
	Description string
	Command     string
}

// UsageError reports a command line that could not be dispatched or
// parsed. Its message points the user at the relevant --help.
type UsageError struct {
	// Command is the full command path, e.g. "wasix-journal truncate".
	Command string
	Err     error
	// Suggestion is the closest known command or flag, if any.
	Suggestion string
}

func (e *UsageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (did you mean %s?)", e.Suggestion)
	}
	fmt.Fprintf(&b, "\n\nRun '%s --help' for usage.", e.Command)
	return b.String()
}

func (e *UsageError) Unwrap() error { return e.Err }

// Execute parses args and dispatches down the tree.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.helpOutput())
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if sub := c.find(args[0]); sub != nil {
			sub.parent = c
			return sub.Execute(args[1:])
		}
		if c.Run == nil {
			usage := c.usageError(fmt.Errorf("unknown command %q", args[0]))
			if suggestion := suggestCommand(args[0], c.Subcommands); suggestion != "" {
				usage.Suggestion = fmt.Sprintf("%q", suggestion)
			}
			return usage
		}
	}

	if c.Run == nil {
		c.PrintHelp(c.helpOutput())
		if len(c.Subcommands) == 0 {
			return fmt.Errorf("no action defined for %q", c.fullName())
		}
		if len(args) == 0 {
			return errors.New("subcommand required")
		}
		return fmt.Errorf("subcommand required (got flag %q)", args[0])
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		flagSet.SetOutput(io.Discard)
		if err := flagSet.Parse(args); err != nil {
			usage := c.usageError(err)
			if strings.Contains(err.Error(), "unknown flag") || strings.Contains(err.Error(), "unknown shorthand flag") {
				// Parse may have consumed state, so suggest against a
				// fresh set.
				usage.Suggestion = suggestFlag(args, c.Flags())
			}
			return usage
		}
		args = flagSet.Args()
	}
	return c.Run(args)
}

func (c *Command) find(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name || slices.Contains(sub.Aliases, name) {
			return sub
		}
	}
	return nil
}

func (c *Command) usageError(err error) *UsageError {
	return &UsageError{Command: c.fullName(), Err: err}
}

// PrintHelp writes the command's help to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	switch {
	case c.Description != "":
		fmt.Fprintf(w, "%s\n\n", c.Description)
	case c.Summary != "":
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	usage := c.Usage
	switch {
	case usage != "":
	case len(c.Subcommands) > 0:
		usage = name + " <command> [flags]"
	default:
		usage = name + " [flags]"
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	for _, group := range c.groups() {
		title := group
		if title == "" {
			title = "Commands"
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			if sub.Group != group {
				continue
			}
			label := sub.Name
			if len(sub.Aliases) > 0 {
				label += " (" + strings.Join(sub.Aliases, ", ") + ")"
			}
			fmt.Fprintf(tw, "  %s\t%s\n", label, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		if usages := c.Flags().FlagUsages(); usages != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usages)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
			if example.Description != "" {
				fmt.Fprintln(w)
			}
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// groups returns the subcommand groups in order of first appearance.
func (c *Command) groups() []string {
	var groups []string
	for _, sub := range c.Subcommands {
		if !slices.Contains(groups, sub.Group) {
			groups = append(groups, sub.Group)
		}
	}
	return groups
}

func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func (c *Command) helpOutput() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.HelpOutput != nil {
			return command.HelpOutput
		}
	}
	return os.Stderr
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

// RequireArgs fails unless exactly len(names) positional arguments
// remain. names label them in the error, e.g. "<journal>".
func RequireArgs(args []string, names ...string) error {
	if len(args) == len(names) {
		return nil
	}
	if len(args) < len(names) {
		return fmt.Errorf("missing argument %s", names[len(args)])
	}
	return fmt.Errorf("unexpected argument %q", args[len(names)])
}
