package applier

import (
	"fmt"

	"github.com/HendryAvila/specpatch/internal/anchor"
	"github.com/HendryAvila/specpatch/internal/patch"
	"github.com/HendryAvila/specpatch/internal/report"
)

// step is the result of applying one patch to a working copy.
type step struct {
	outcome patch.Outcome
	content string
	diff    *report.Diff
	lines   []int
	detail  string
}

// applyPatch evaluates p against content. It never mutates anything but
// the returned copy.
func applyPatch(p patch.Patch, content string) step {
	switch p.EffectiveKind() {
	case patch.KindDeleteBlock:
		return deleteBlock(p, content)
	case patch.KindInsertAfter:
		return insertAfter(p, content)
	default:
		return replace(p, content)
	}
}

func replace(p patch.Patch, content string) step {
	m := anchor.Locate(content, p.Anchor)
	if m.Ambiguous() {
		return ambiguous(p, content)
	}

	// A replacement that embeds its anchor keeps the anchor alive, so the
	// replacement is the only completion marker.
	if !p.RemovesAnchor() && anchor.Contains(content, p.Replacement) {
		return alreadyApplied(content)
	}
	if m.Unique() {
		return splice(content, m.Position, m.Position+len(p.Anchor), p.Replacement)
	}
	if p.Replacement == "" || anchor.Contains(content, p.Replacement) {
		return alreadyApplied(content)
	}
	return step{
		outcome: patch.NotFound,
		content: content,
		detail:  fmt.Sprintf("neither anchor %s nor replacement found", quote(p.Anchor)),
	}
}

func deleteBlock(p patch.Patch, content string) step {
	m := anchor.Locate(content, p.Anchor)
	switch {
	case m.Absent():
		return alreadyApplied(content)
	case m.Ambiguous():
		return ambiguous(p, content)
	}

	end := len(content)
	if p.Until != "" {
		end = anchor.IndexFrom(content, p.Until, m.Position+len(p.Anchor))
		if end < 0 {
			return step{
				outcome: patch.NotFound,
				content: content,
				detail:  fmt.Sprintf("block end %s not found after anchor", quote(p.Until)),
			}
		}
	}
	return splice(content, m.Position, end, "")
}

func insertAfter(p patch.Patch, content string) step {
	if anchor.Contains(content, p.Replacement) {
		return alreadyApplied(content)
	}

	m := anchor.Locate(content, p.Anchor)
	switch {
	case m.Absent():
		return step{
			outcome: patch.NotFound,
			content: content,
			detail:  fmt.Sprintf("neither marker %s nor inserted text found", quote(p.Anchor)),
		}
	case m.Ambiguous():
		return ambiguous(p, content)
	}

	at := m.Position + len(p.Anchor)
	if next := anchor.IndexFrom(content, p.Until, at); next >= 0 {
		at = next
	}
	return splice(content, at, at, p.Replacement)
}

// splice replaces content[start:end] with text and records the diff.
func splice(content string, start, end int, text string) step {
	out := content[:start] + text + content[end:]
	return step{
		outcome: patch.Applied,
		content: out,
		diff: &report.Diff{
			Old:     report.Range{Start: start, End: end},
			New:     report.Range{Start: start, End: start + len(text)},
			Line:    anchor.Line(content, start),
			Removed: content[start:end],
			Added:   text,
		},
	}
}

func alreadyApplied(content string) step {
	return step{outcome: patch.AlreadyApplied, content: content}
}

func ambiguous(p patch.Patch, content string) step {
	lines := anchor.Lines(content, anchor.All(content, p.Anchor))
	return step{
		outcome: patch.Ambiguous,
		content: content,
		lines:   lines,
		detail:  fmt.Sprintf("anchor %s occurs %d times", quote(p.Anchor), len(lines)),
	}
}

// quote shortens long anchors for messages.
func quote(s string) string {
	const limit = 60
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return fmt.Sprintf("%q", s)
}
