package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// statusKind classifies a status line for its label and color. Info is
// the zero value so plain facts render without ceremony.
type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

// kindStyles maps each kind to its bracket label and ANSI color.
var kindStyles = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {label: "INFO", color: "\x1b[34m"},
	statusOK:    {label: "OK", color: "\x1b[32m"},
	statusWarn:  {label: "WARN", color: "\x1b[33m"},
	statusError: {label: "ERROR", color: "\x1b[31m"},
}

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// renderStatusLine formats one `label: [KIND] message` row. The label
// column is padded so stacked lines read as a table.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := kindStyles[kind]
	bracket := "[" + style.label + "]"
	if message != "" {
		bracket += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", bracket)
	if colorize && style.color != "" {
		return style.color + line + ansiReset
	}
	return line
}

// renderSectionHeader returns the header line and its underline rule.
func renderSectionHeader(title string, colorize bool) []string {
	header := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(header))
	if !colorize {
		return []string{header, rule}
	}
	accent := kindStyles[statusInfo].color
	return []string{accent + header + ansiReset, accent + rule + ansiReset}
}

// shouldColorize gates ANSI output on the writer being a real
// terminal, so piped and test output stays plain.
func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
