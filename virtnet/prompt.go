// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// TerminalPrompter asks on the controlling terminal. When Input is not
// a terminal it denies without asking, so unattended runs never block
// on a prompt.
type TerminalPrompter struct {
	// Input defaults to os.Stdin.
	Input *os.File

	// Output receives the question and the follow-up hint. Defaults to
	// os.Stderr.
	Output io.Writer
}

func (p TerminalPrompter) Confirm(ctx context.Context, call string) (bool, error) {
	input := p.Input
	if input == nil {
		input = os.Stdin
	}
	output := p.Output
	if output == nil {
		output = os.Stderr
	}
	if !term.IsTerminal(int(input.Fd())) {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return confirm(input, output, call)
}

// confirm writes the question for call to output and reads a yes/no
// answer from input. Anything other than y or yes is a no.
func confirm(input io.Reader, output io.Writer, call string) (bool, error) {
	fmt.Fprintf(output, "Networking needs to be enabled to call function '%s'.\n", call)
	fmt.Fprint(output, "Enable networking? [y/N] ")

	line, err := bufio.NewReader(input).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		fmt.Fprintln(output)
		return false, fmt.Errorf("reading answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
	default:
		return false, nil
	}

	styled := termenv.NewOutput(output)
	fmt.Fprintf(output, "%s: to enable networking by default, use the `--net` flag\n",
		styled.String("Info").Bold())
	return true, nil
}
