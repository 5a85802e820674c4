// Package anchor locates exact text fragments (anchors) inside documents.
//
// Matching is byte-for-byte: case-sensitive, whitespace-significant and
// without any normalization. Anchors in spec artifacts are routinely
// multi-line blocks with exact indentation, so they must match verbatim.
package anchor

import "strings"

// Match describes where an anchor occurs in a document.
type Match struct {
	// Count is the number of occurrences, overlapping ones included.
	Count int
	// Position is the byte offset of the first occurrence, or -1.
	Position int
}

// Absent reports whether the anchor does not occur at all.
func (m Match) Absent() bool { return m.Count == 0 }

// Unique reports whether the anchor occurs exactly once.
func (m Match) Unique() bool { return m.Count == 1 }

// Ambiguous reports whether the anchor occurs more than once. Callers
// must refuse to act on an ambiguous anchor rather than pick the first hit.
func (m Match) Ambiguous() bool { return m.Count > 1 }

// Locate counts the occurrences of anchor in content and returns the
// offset of the first one. An empty anchor never matches.
func Locate(content, anchor string) Match {
	positions := All(content, anchor)
	if len(positions) == 0 {
		return Match{Count: 0, Position: -1}
	}
	return Match{Count: len(positions), Position: positions[0]}
}

// All returns the byte offsets of every occurrence of anchor in content,
// including overlapping occurrences ("aa" occurs twice in "aaa").
func All(content, anchor string) []int {
	if anchor == "" {
		return nil
	}
	var positions []int
	offset := 0
	for {
		i := strings.Index(content[offset:], anchor)
		if i < 0 {
			return positions
		}
		positions = append(positions, offset+i)
		offset += i + 1
		if offset >= len(content) {
			return positions
		}
	}
}

// Contains reports whether fragment occurs in content at least once.
// Empty fragments are treated as absent.
func Contains(content, fragment string) bool {
	return fragment != "" && strings.Contains(content, fragment)
}

// Line returns the 1-based line number of a byte offset in content.
func Line(content string, offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(content[:offset], "\n") + 1
}

// Lines returns the 1-based line numbers of the given offsets.
func Lines(content string, offsets []int) []int {
	lines := make([]int, len(offsets))
	for i, off := range offsets {
		lines[i] = Line(content, off)
	}
	return lines
}

// IndexFrom returns the offset of the first occurrence of marker at or
// after from, or -1. An empty marker never matches.
func IndexFrom(content, marker string, from int) int {
	if marker == "" || from < 0 || from > len(content) {
		return -1
	}
	i := strings.Index(content[from:], marker)
	if i < 0 {
		return -1
	}
	return from + i
}

// Between extracts the text between the first occurrence of prefix and
// the next occurrence of suffix after it. When suffix is empty or does not
// follow the prefix, the extract runs to the end of content.
func Between(content, prefix, suffix string) (string, bool) {
	start := strings.Index(content, prefix)
	if prefix == "" || start < 0 {
		return "", false
	}
	start += len(prefix)
	end := IndexFrom(content, suffix, start)
	if end < 0 {
		end = len(content)
	}
	return content[start:end], true
}
