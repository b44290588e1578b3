// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#5C7A84")
	ColorTitle   = lipgloss.Color("#20B9B4")
)

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// machinePrefix maps icons to the prefix used in machine mode.
var machinePrefix = map[Icon]string{
	IconSuccess: "OK",
	IconWarning: "WARN",
	IconError:   "ERROR",
	IconPending: "PENDING",
}

// Printer writes status lines for one personality level.
//
// # Thread Safety
//
// Not safe for concurrent use; the CLI prints from one goroutine.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Level PersonalityLevel

	title   lipgloss.Style
	muted   lipgloss.Style
	palette map[Icon]lipgloss.Style
}

// NewPrinter returns a Printer writing results to out and failures to
// errOut.
func NewPrinter(level PersonalityLevel, out, errOut io.Writer) *Printer {
	p := &Printer{Out: out, Err: errOut, Level: level}
	color := level == PersonalityStandard
	style := func(c lipgloss.Color) lipgloss.Style {
		if !color {
			return lipgloss.NewStyle()
		}
		return lipgloss.NewStyle().Foreground(c)
	}
	p.title = style(ColorTitle).Bold(color)
	p.muted = style(ColorMuted)
	p.palette = map[Icon]lipgloss.Style{
		IconSuccess: style(ColorSuccess),
		IconWarning: style(ColorWarning),
		IconError:   style(ColorError),
		IconPending: style(ColorMuted),
	}
	return p
}

// Status prints one line marked with icon. Errors and warnings go to Err
// in machine mode.
func (p *Printer) Status(icon Icon, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.Level == PersonalityMachine {
		w := p.Out
		if icon == IconError || icon == IconWarning {
			w = p.Err
		}
		fmt.Fprintf(w, "%s: %s\n", machinePrefix[icon], text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", p.palette[icon].Render(string(icon)), text)
}

func (p *Printer) Success(format string, args ...any) { p.Status(IconSuccess, format, args...) }
func (p *Printer) Warning(format string, args ...any) { p.Status(IconWarning, format, args...) }
func (p *Printer) Error(format string, args ...any)   { p.Status(IconError, format, args...) }

// Info prints an unmarked line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.Out, format+"\n", args...)
}

// Title prints a heading. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	if p.Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(p.Out, p.title.Render(text))
}

// Table prints rows as aligned columns. Machine mode separates columns
// with tabs and omits the header.
func (p *Printer) Table(header []string, rows [][]string) {
	if p.Level == PersonalityMachine {
		for _, row := range rows {
			fmt.Fprintln(p.Out, strings.Join(row, "\t"))
		}
		return
	}
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = cell
			if i < len(cells)-1 && i < len(widths) {
				parts[i] += strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			}
		}
		return strings.Join(parts, "  ")
	}
	fmt.Fprintln(p.Out, p.muted.Render(line(header)))
	for _, row := range rows {
		fmt.Fprintln(p.Out, line(row))
	}
}
