package report

import (
	"strings"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// DiffContext is the number of unchanged lines shown around each change.
const DiffContext = 2

// LineDiff renders a line-oriented diff of before and after. Changed lines
// carry a "-" or "+" prefix, unchanged ones two spaces; long unchanged
// runs collapse to "...". It returns "" when the texts are equal.
func LineDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for i, d := range diffs {
		chunk := splitLines(d.Text)
		switch d.Type {
		case diffpatch.DiffDelete:
			writeLines(&sb, "- ", chunk)
		case diffpatch.DiffInsert:
			writeLines(&sb, "+ ", chunk)
		case diffpatch.DiffEqual:
			head, tail := DiffContext, DiffContext
			if i == 0 {
				head = 0
			}
			if i == len(diffs)-1 {
				tail = 0
			}
			if len(chunk) <= head+tail {
				writeLines(&sb, "  ", chunk)
				continue
			}
			writeLines(&sb, "  ", chunk[:head])
			sb.WriteString("...\n")
			writeLines(&sb, "  ", chunk[len(chunk)-tail:])
		}
	}
	return sb.String()
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

func writeLines(sb *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		sb.WriteString(prefix)
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
}
