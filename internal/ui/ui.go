// Package ui renders the human-readable report on stderr. Machine
// output (JSON or sexp) owns stdout; nothing here writes there.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tftio/org-gh/internal/types"
)

// Adaptive colors readable on both light and dark terminals.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#27AE60", Dark: "#50FA7B"}
	colorError   = lipgloss.AdaptiveColor{Light: "#D73737", Dark: "#FF5555"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#E67E22", Dark: "#FFB86C"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#2980B9", Dark: "#8BE9FD"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6C7A89", Dark: "#6272A4"}
)

var (
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// Report writes the operation summary. With quiet set, only errors and
// unresolved conflicts appear; with verbose set, resolved conflicts are
// listed too.
func Report(w io.Writer, res *types.Result, quiet, verbose bool) {
	if !quiet {
		header := fmt.Sprintf("%s %s", res.Mode, res.Repo)
		if res.DryRun {
			header += mutedStyle.Render(" (dry run)")
		}
		fmt.Fprintln(w, headerStyle.Render(header))

		for _, a := range res.Actions {
			fmt.Fprintln(w, "  "+renderAction(a))
		}
		for _, warning := range res.Warnings {
			fmt.Fprintln(w, "  "+warnStyle.Render("warning: ")+warning)
		}
	}

	for _, c := range res.Conflicts {
		line := fmt.Sprintf("conflict on %s", c.Field)
		if c.Number != 0 {
			line += fmt.Sprintf(" (#%d)", c.Number)
		}
		line += fmt.Sprintf(": org=%s gh=%s", c.Org, c.Remote)
		if c.Resolution == types.ResolutionSkipped {
			fmt.Fprintln(w, "  "+errorStyle.Render(line)+mutedStyle.Render(" [unresolved]"))
		} else if verbose {
			fmt.Fprintln(w, "  "+warnStyle.Render(line)+mutedStyle.Render(" [resolved: "+string(c.Resolution)+"]"))
		}
	}

	if res.Error != "" {
		fmt.Fprintln(w, errorStyle.Render("error: ")+res.Error)
	}
	if !quiet {
		fmt.Fprintln(w, mutedStyle.Render(summaryLine(res.Counts)))
	}
}

func renderAction(a types.ActionOutcome) string {
	target := a.Identity
	if a.Number != 0 {
		target = fmt.Sprintf("#%d", a.Number)
	}
	line := fmt.Sprintf("%-10s %s", a.Kind, target)
	if a.Detail != "" {
		line += " " + mutedStyle.Render(a.Detail)
	}
	switch a.Status {
	case types.StatusFailed:
		return errorStyle.Render("✗ ") + line
	case types.StatusSkipped:
		return mutedStyle.Render("- ") + line
	case types.StatusLogged, types.StatusPulled:
		return infoStyle.Render("← ") + line
	default:
		return successStyle.Render("✓ ") + line
	}
}

func summaryLine(c types.Counts) string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(c.Created, "created")
	add(c.Updated, "updated")
	add(c.Closed, "closed")
	add(c.Reopened, "reopened")
	add(c.Pulled, "pulled")
	add(c.Logged, "logged")
	add(c.Skipped, "skipped")
	add(c.Conflicts, "conflicts")
	add(c.Errors, "errors")
	if len(parts) == 0 {
		return "nothing to do"
	}
	return strings.Join(parts, ", ")
}
