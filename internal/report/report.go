// Package report aggregates the outcome of a patch run: one entry per
// patch, one result per document, and the consistency issues found after
// the commit.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	perrors "github.com/HendryAvila/specpatch/internal/errors"
	"github.com/HendryAvila/specpatch/internal/patch"
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes in the range.
func (r Range) Len() int { return r.End - r.Start }

// Diff is the minimal record of an applied patch: the bytes removed from
// the old content and the bytes that took their place in the new one.
type Diff struct {
	Old     Range  `json:"old"`
	New     Range  `json:"new"`
	Line    int    `json:"line"`
	Removed string `json:"removed,omitempty"`
	Added   string `json:"added,omitempty"`
}

// Entry is the result of a single patch.
type Entry struct {
	Set      string        `json:"set"`
	PatchID  string        `json:"patch_id"`
	Document string        `json:"document"`
	Kind     patch.Kind    `json:"kind"`
	Outcome  patch.Outcome `json:"outcome"`
	Diff     *Diff         `json:"diff,omitempty"`
	Lines    []int         `json:"lines,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// --- Document status enum ---

// Status is what happened to a document at commit time.
type Status string

const (
	StatusCommitted   Status = "committed"
	StatusUnchanged   Status = "unchanged"
	StatusPlanned     Status = "planned"
	StatusBlocked     Status = "blocked"
	StatusWriteFailed Status = "write-failed"
	StatusAborted     Status = "aborted"
)

// OK reports whether the document ended in a consistent stored state.
func (s Status) OK() bool {
	switch s {
	case StatusCommitted, StatusUnchanged, StatusPlanned:
		return true
	default:
		return false
	}
}

// Document is the per-document result of a run.
type Document struct {
	Path      string   `json:"path"`
	Status    Status   `json:"status"`
	Changed   bool     `json:"changed"`
	BlockedBy []string `json:"blocked_by,omitempty"`
	Error     string   `json:"error,omitempty"`

	// Before and Content hold the text read at the start of the run and
	// the final working copy.
	Before  string `json:"-"`
	Content string `json:"-"`
}

// --- Consistency issues ---

// IssueKind classifies a consistency check failure.
type IssueKind string

const (
	AnchorPresent      IssueKind = "anchor-present"
	ReplacementMissing IssueKind = "replacement-missing"
	LinkMismatch       IssueKind = "link-mismatch"
)

// Issue is one failed consistency assertion.
type Issue struct {
	Kind     IssueKind         `json:"kind"`
	Set      string            `json:"set,omitempty"`
	PatchID  string            `json:"patch_id,omitempty"`
	LinkID   string            `json:"link_id,omitempty"`
	Document string            `json:"document,omitempty"`
	Detail   string            `json:"detail"`
	Values   map[string]string `json:"values,omitempty"`
}

// --- Report ---

// Report is returned by every run, successful or not.
type Report struct {
	RunID           string     `json:"run_id,omitempty"`
	DryRun          bool       `json:"dry_run"`
	Sets            []string   `json:"sets"`
	Entries         []Entry    `json:"entries"`
	Documents       []Document `json:"documents"`
	Checked         bool       `json:"checked"`
	Issues          []Issue    `json:"issues,omitempty"`
	FullyConsistent bool       `json:"fully_consistent"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
}

// Document returns the result for path.
func (r *Report) Document(path string) (Document, bool) {
	for _, d := range r.Documents {
		if d.Path == path {
			return d, true
		}
	}
	return Document{}, false
}

// Entry returns the entry for a patch id. When a chain applies the same
// id twice, the first match wins; use set to disambiguate.
func (r *Report) Entry(set, id string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.PatchID == id && (set == "" || e.Set == set) {
			return e, true
		}
	}
	return Entry{}, false
}

// Counts tallies entries by outcome.
func (r *Report) Counts() map[patch.Outcome]int {
	counts := make(map[patch.Outcome]int)
	for _, e := range r.Entries {
		counts[e.Outcome]++
	}
	return counts
}

// Success reports whether every patch succeeded, every document reached a
// consistent state, and the consistency check (if run) passed.
func (r *Report) Success() bool {
	for _, e := range r.Entries {
		if !e.Outcome.OK() {
			return false
		}
	}
	for _, d := range r.Documents {
		if !d.Status.OK() {
			return false
		}
	}
	return !r.Checked || len(r.Issues) == 0
}

// Err converts a failed report into a coded error. Store failures are
// reported by the run itself, so a write-failed document maps to
// E_DOCUMENT_STORE here only as a fallback.
func (r *Report) Err() error {
	var notFound, ambiguous, failed []string
	for _, e := range r.Entries {
		switch e.Outcome {
		case patch.NotFound:
			notFound = append(notFound, e.PatchID)
		case patch.Ambiguous:
			ambiguous = append(ambiguous, e.PatchID)
		case patch.Failed:
			failed = append(failed, e.PatchID)
		}
	}
	switch {
	case len(ambiguous) > 0:
		return perrors.NewWithDetails(perrors.EAmbiguousAnchor,
			fmt.Sprintf("%d patch(es) have ambiguous anchors", len(ambiguous)),
			map[string]string{"patches": strings.Join(ambiguous, ",")})
	case len(notFound) > 0:
		return perrors.NewWithDetails(perrors.EAnchorNotFound,
			fmt.Sprintf("%d patch(es) found neither anchor nor replacement", len(notFound)),
			map[string]string{"patches": strings.Join(notFound, ",")})
	case len(failed) > 0:
		return perrors.NewWithDetails(perrors.EPatchFailed,
			fmt.Sprintf("%d patch(es) failed to evaluate their precondition", len(failed)),
			map[string]string{"patches": strings.Join(failed, ",")})
	}
	for _, d := range r.Documents {
		if d.Status == StatusWriteFailed || d.Status == StatusAborted {
			return perrors.NewWithDetails(perrors.EDocumentStore,
				fmt.Sprintf("document %s was not written", d.Path),
				map[string]string{"document": d.Path, "status": string(d.Status)})
		}
	}
	if r.Checked && len(r.Issues) > 0 {
		return perrors.NewWithDetails(perrors.EConsistency,
			fmt.Sprintf("%d consistency issue(s) after commit", len(r.Issues)),
			map[string]string{"first": r.Issues[0].Detail})
	}
	return nil
}

// WriteJSON encodes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
