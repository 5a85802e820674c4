package report

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/specpatch/internal/patch"
)

// Markdown renders the report for MCP clients and log files.
func Markdown(r *Report) string {
	var sb strings.Builder

	title := "Patch run"
	switch {
	case r.DryRun:
		title = "Patch plan (dry run)"
	case r.Checked && len(r.Entries) == 0:
		title = "Consistency check"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if r.RunID != "" {
		fmt.Fprintf(&sb, "**Run**: `%s`\n", r.RunID)
	}
	fmt.Fprintf(&sb, "**Sets**: %s\n", strings.Join(r.Sets, " → "))
	fmt.Fprintf(&sb, "**Result**: %s\n", verdict(r))
	fmt.Fprintf(&sb, "**Outcomes**: %s\n\n", summary(r))

	if len(r.Entries) > 0 {
		sb.WriteString("## Patches\n\n")
		sb.WriteString("| Patch | Document | Outcome | Detail |\n")
		sb.WriteString("|-------|----------|---------|--------|\n")
		for _, e := range r.Entries {
			detail := e.Detail
			if len(e.Lines) > 0 {
				detail += fmt.Sprintf(" (lines %s)", joinInts(e.Lines))
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
				e.PatchID, e.Document, e.Outcome, escapeCell(detail))
		}
		sb.WriteString("\n")
	}

	if len(r.Documents) > 0 {
		sb.WriteString("## Documents\n\n")
		for _, d := range r.Documents {
			fmt.Fprintf(&sb, "- `%s`: %s", d.Path, d.Status)
			if len(d.BlockedBy) > 0 {
				fmt.Fprintf(&sb, " (blocked by %s)", strings.Join(d.BlockedBy, ", "))
			}
			if d.Error != "" {
				fmt.Fprintf(&sb, " (%s)", d.Error)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if r.Checked {
		sb.WriteString("## Consistency\n\n")
		if len(r.Issues) == 0 {
			sb.WriteString("No issues found.\n\n")
		}
		for _, is := range r.Issues {
			fmt.Fprintf(&sb, "- **%s**: %s\n", is.Kind, is.Detail)
		}
		if len(r.Issues) > 0 {
			sb.WriteString("\n")
		}
	}

	diffs := false
	for _, d := range r.Documents {
		if !d.Changed || d.Status == StatusBlocked {
			continue
		}
		if !diffs {
			sb.WriteString("## Changes\n\n")
			diffs = true
		}
		fmt.Fprintf(&sb, "### %s\n\n```diff\n%s```\n\n", d.Path, LineDiff(d.Before, d.Content))
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// --- Helpers ---

func verdict(r *Report) string {
	switch {
	case r.Success() && r.DryRun:
		return "would succeed"
	case r.Success():
		return "success"
	case r.DryRun:
		return "would fail"
	default:
		return "failed"
	}
}

// summary lists non-zero outcome counts in a fixed order.
func summary(r *Report) string {
	counts := r.Counts()
	order := []patch.Outcome{
		patch.Applied, patch.AlreadyApplied, patch.Skipped,
		patch.NotFound, patch.Ambiguous, patch.Failed,
	}
	var parts []string
	for _, o := range order {
		if counts[o] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[o], o))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
