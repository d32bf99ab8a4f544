package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"vigil/internal/analysis"
	"vigil/internal/session"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 22
	statusIndent     = "  "
)

var kindStyles = map[statusKind]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

// renderStatusLine formats "  Label:   [TAG] message", colored by kind.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style, ok := kindStyles[kind]
	if !ok {
		style = kindStyles[statusInfo]
	}
	status := "[" + style.tag + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
	if colorize {
		return style.color + line + ansiReset
	}
	return line
}

// statusPrinter writes sectioned status output to one writer.
type statusPrinter struct {
	out      io.Writer
	colorize bool
	started  bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, colorize: shouldColorize(out)}
}

// section prints a "== Title ==" header, separated from any earlier section
// by a blank line.
func (p *statusPrinter) section(title string) {
	if p.started {
		fmt.Fprintln(p.out)
	}
	p.started = true
	header := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(header))
	if p.colorize {
		header, rule = ansiBlue+header+ansiReset, ansiBlue+rule+ansiReset
	}
	fmt.Fprintln(p.out, header)
	fmt.Fprintln(p.out, rule)
}

func (p *statusPrinter) line(label string, kind statusKind, message string) {
	fmt.Fprintln(p.out, renderStatusLine(label, kind, message, p.colorize))
}

func (p *statusPrinter) lines(lines []string) {
	for _, l := range lines {
		fmt.Fprintln(p.out, l)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// sessionStatusKind colors a session status for list and show output.
func sessionStatusKind(status string) statusKind {
	switch session.Status(status) {
	case session.StatusCompleted:
		return statusOK
	case session.StatusFailed:
		return statusError
	case session.StatusPending:
		return statusInfo
	default:
		return statusWarn
	}
}

func riskKind(level analysis.RiskLevel) statusKind {
	switch level {
	case analysis.RiskLow:
		return statusOK
	case analysis.RiskModerate:
		return statusWarn
	case analysis.RiskHigh, analysis.RiskCritical:
		return statusError
	default:
		return statusInfo
	}
}
