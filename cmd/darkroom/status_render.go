package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"darkroom/internal/store"
)

// severity grades one status row.
type severity int

const (
	sevInfo severity = iota
	sevOK
	sevWarn
	sevError
)

var severityTags = map[severity]string{
	sevInfo:  "INFO",
	sevOK:    "OK",
	sevWarn:  "WARN",
	sevError: "ERROR",
}

var severityColors = map[severity]text.Colors{
	sevInfo:  {text.FgBlue},
	sevOK:    {text.FgGreen},
	sevWarn:  {text.FgYellow},
	sevError: {text.FgRed},
}

// Tier rows are tinted by tier instead of severity.
var tierColors = map[store.Tier]text.Colors{
	store.TierBronze: {text.FgHiRed},
	store.TierSilver: {text.FgHiWhite},
	store.TierGold:   {text.FgHiYellow},
}

const labelWidth = 18

// statusSheet accumulates the sectioned plain-text report printed by
// `darkroom status`.
type statusSheet struct {
	color bool
	lines []string
}

func newStatusSheet(color bool) *statusSheet {
	return &statusSheet{color: color}
}

// section starts a titled block, separated from the previous one by a blank line.
func (s *statusSheet) section(title string) {
	if len(s.lines) > 0 {
		s.lines = append(s.lines, "")
	}
	heading := "== " + strings.TrimSpace(title) + " =="
	s.lines = append(s.lines,
		s.paint(text.Colors{text.FgBlue}, heading),
		s.paint(text.Colors{text.FgBlue}, strings.Repeat("-", len(heading))),
	)
}

func (s *statusSheet) row(label string, sev severity, format string, args ...any) {
	s.lines = append(s.lines, s.paint(severityColors[sev], formatRow(label, severityTags[sev], fmt.Sprintf(format, args...))))
}

func (s *statusSheet) tier(t store.Tier, active int) {
	s.lines = append(s.lines, s.paint(tierColors[t], formatRow(tierLabel(t), severityTags[sevInfo], fmt.Sprintf("%d active", active))))
}

func (s *statusSheet) paint(colors text.Colors, line string) string {
	if !s.color || len(colors) == 0 {
		return line
	}
	return colors.EscapeSeq() + line + text.EscapeReset
}

func formatRow(label, tag, message string) string {
	row := fmt.Sprintf("  %-*s [%s]", labelWidth, label+":", tag)
	if message != "" {
		row += " " + message
	}
	return row
}

func tierLabel(t store.Tier) string {
	name := string(t)
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// isTerminal reports whether w is a terminal that should receive colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
