// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
)

// palette styles the human-readable output. With color auto the
// renderer inspects the writer, so output to a file or pipe stays
// plain text. Always and never pin the profile.
type palette struct {
	heading lipgloss.Style
	label   lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
}

func newPalette(w io.Writer, color string) palette {
	renderer := lipgloss.NewRenderer(w)
	switch color {
	case cli.ColorAlways:
		renderer.SetColorProfile(termenv.ANSI)
	case cli.ColorNever:
		renderer.SetColorProfile(termenv.Ascii)
	}
	return palette{
		heading: renderer.NewStyle().Bold(true),
		label:   renderer.NewStyle().Faint(true),
		ok:      renderer.NewStyle().Foreground(lipgloss.Color("2")),
		failed:  renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}
