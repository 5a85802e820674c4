package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/HendryAvila/specpatch/internal/patch"
)

// ColorMode selects when terminal output is colored.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Valid reports whether m is a known mode.
func (m ColorMode) Valid() bool {
	switch m {
	case ColorAuto, ColorAlways, ColorNever, "":
		return true
	default:
		return false
	}
}

// Enabled resolves the mode for f. Auto colors terminals only and honors
// NO_COLOR.
func (m ColorMode) Enabled(f *os.File) bool {
	switch m {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes reports for humans.
type Printer struct {
	w     io.Writer
	color bool
	diffs bool

	header   lipgloss.Style
	outcomes map[patch.Outcome]*color.Color
	added    *color.Color
	removed  *color.Color
	dim      *color.Color
}

// NewPrinter creates a Printer. When diffs is set, changed documents are
// followed by a line diff.
func NewPrinter(w io.Writer, useColor, diffs bool) *Printer {
	p := &Printer{
		w:      w,
		color:  useColor,
		diffs:  diffs,
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		outcomes: map[patch.Outcome]*color.Color{
			patch.Applied:        color.New(color.FgGreen),
			patch.AlreadyApplied: color.New(color.FgCyan),
			patch.Skipped:        color.New(color.FgHiBlack),
			patch.NotFound:       color.New(color.FgRed, color.Bold),
			patch.Ambiguous:      color.New(color.FgMagenta, color.Bold),
			patch.Failed:         color.New(color.FgRed),
		},
		added:   color.New(color.FgGreen),
		removed: color.New(color.FgRed),
		dim:     color.New(color.FgHiBlack),
	}
	all := []*color.Color{p.added, p.removed, p.dim}
	for _, c := range p.outcomes {
		all = append(all, c)
	}
	for _, c := range all {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Print writes the report.
func (p *Printer) Print(r *Report) error {
	var sb strings.Builder

	title := "specpatch apply"
	switch {
	case r.DryRun:
		title = "specpatch plan"
	case r.Checked && len(r.Entries) == 0:
		title = "specpatch check"
	}
	sb.WriteString(p.title(fmt.Sprintf("%s: %s", title, strings.Join(r.Sets, " -> "))))
	sb.WriteString("\n")

	for _, e := range r.Entries {
		fmt.Fprintf(&sb, "  %-16s %-28s %s", p.badge(e.Outcome), e.PatchID, e.Document)
		if e.Diff != nil {
			sb.WriteString(p.dim.Sprintf(" @%d", e.Diff.Line))
		}
		sb.WriteString("\n")
		if e.Detail != "" && !e.Outcome.OK() {
			fmt.Fprintf(&sb, "    %s\n", e.Detail)
		}
		if len(e.Lines) > 0 {
			fmt.Fprintf(&sb, "    occurrences at lines %s\n", joinInts(e.Lines))
		}
	}

	sb.WriteString("\n")
	for _, d := range r.Documents {
		fmt.Fprintf(&sb, "  %-12s %s", string(d.Status), d.Path)
		if len(d.BlockedBy) > 0 {
			fmt.Fprintf(&sb, " (blocked by %s)", strings.Join(d.BlockedBy, ", "))
		}
		sb.WriteString("\n")
		if p.diffs && d.Changed && d.Status != StatusBlocked {
			p.writeDiff(&sb, LineDiff(d.Before, d.Content))
		}
	}

	if r.Checked {
		sb.WriteString("\n")
		for _, is := range r.Issues {
			fmt.Fprintf(&sb, "  %s %s\n", p.removed.Sprint("!"), is.Detail)
		}
	}

	fmt.Fprintf(&sb, "\n%s (%s)\n", p.title(verdict(r)), summary(r))
	_, err := io.WriteString(p.w, sb.String())
	return err
}

func (p *Printer) title(s string) string {
	if !p.color {
		return s
	}
	return p.header.Render(s)
}

func (p *Printer) badge(o patch.Outcome) string {
	c, ok := p.outcomes[o]
	if !ok {
		return string(o)
	}
	return c.Sprint(string(o))
}

func (p *Printer) writeDiff(sb *strings.Builder, diff string) {
	for _, line := range splitLines(diff) {
		switch {
		case strings.HasPrefix(line, "+ "):
			line = p.added.Sprint(line)
		case strings.HasPrefix(line, "- "):
			line = p.removed.Sprint(line)
		default:
			line = p.dim.Sprint(line)
		}
		fmt.Fprintf(sb, "      %s\n", line)
	}
}
