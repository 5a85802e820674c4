// Package checker verifies documents after a patch run. It re-reads the
// stored documents and asserts, for each patch, that its anchor is gone
// and its replacement is present, then compares linked values across
// documents. Checking never mutates anything.
package checker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HendryAvila/specpatch/internal/anchor"
	"github.com/HendryAvila/specpatch/internal/document"
	perrors "github.com/HendryAvila/specpatch/internal/errors"
	"github.com/HendryAvila/specpatch/internal/patch"
	"github.com/HendryAvila/specpatch/internal/report"
)

// Checker runs consistency assertions against a document store.
type Checker struct {
	store document.Store
	vars  map[string]string
	cache map[string]string
}

// New creates a Checker. vars are the configuration defaults passed to
// 'when' preconditions.
func New(store document.Store, vars map[string]string) *Checker {
	return &Checker{store: store, vars: vars}
}

// Scope narrows a check to part of a run.
type Scope struct {
	// Documents restricts assertions to these paths. Nil means all.
	Documents map[string]bool
	// Outcomes holds, per set position, the outcome of each patch in the
	// run that produced the documents. Patches that did not apply are not
	// asserted. When nil, preconditions are evaluated against the stored
	// content instead.
	Outcomes []map[string]patch.Outcome
}

func (sc Scope) includes(path string) bool {
	return sc.Documents == nil || sc.Documents[path]
}

// Check asserts every patch of the chain and every link. Issues are
// returned in chain order; a store failure aborts the check.
func (c *Checker) Check(sets []*patch.Set, scope Scope) ([]report.Issue, error) {
	c.cache = make(map[string]string)

	var issues []report.Issue
	for si, s := range sets {
		found, err := c.checkPatches(sets, si, scope)
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)

		found, err = c.checkLinks(s, scope)
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)
	}
	return issues, nil
}

func (c *Checker) checkPatches(sets []*patch.Set, si int, scope Scope) ([]report.Issue, error) {
	s := sets[si]
	conds, err := patch.Conditions(s)
	if err != nil {
		return nil, err
	}
	dependents := patch.Dependents(s)
	vars := patch.MergeVars(c.vars, s.Vars)

	var issues []report.Issue
	for i, p := range s.Patches {
		if !scope.includes(p.Document) {
			continue
		}
		content, err := c.read(p.Document)
		if err != nil {
			return nil, err
		}

		if scope.Outcomes != nil {
			if si >= len(scope.Outcomes) {
				continue
			}
			o, ok := scope.Outcomes[si][p.ID]
			if !ok || o == patch.Skipped || !o.OK() {
				continue
			}
		} else if cond := conds[p.ID]; cond != nil {
			if ok, err := cond.Eval(vars, p.Document, content); err != nil || !ok {
				continue
			}
		}

		if p.RemovesAnchor() && anchor.Contains(content, p.Anchor) && !reintroduced(sets, si, i, p) {
			issues = append(issues, report.Issue{
				Kind:     report.AnchorPresent,
				Set:      s.Label(),
				PatchID:  p.ID,
				Document: p.Document,
				Detail:   fmt.Sprintf("anchor of %s is still present in %s", p.ID, p.Document),
			})
		}
		if p.LeavesReplacement() && !anchor.Contains(content, p.Replacement) && !rewritten(sets, si, i, p, dependents[p.ID]) {
			issues = append(issues, report.Issue{
				Kind:     report.ReplacementMissing,
				Set:      s.Label(),
				PatchID:  p.ID,
				Document: p.Document,
				Detail:   fmt.Sprintf("replacement of %s is missing from %s", p.ID, p.Document),
			})
		}
	}
	return issues, nil
}

func (c *Checker) checkLinks(s *patch.Set, scope Scope) ([]report.Issue, error) {
	var issues []report.Issue
	for _, l := range s.Links {
		inScope := true
		for _, doc := range l.Documents {
			inScope = inScope && scope.includes(doc)
		}
		if !inScope {
			continue
		}

		values := make(map[string]string, len(l.Documents))
		var missing []string
		for _, doc := range l.Documents {
			content, err := c.read(doc)
			if err != nil {
				return nil, err
			}
			v, ok := anchor.Between(content, l.Prefix, l.Suffix)
			if !ok {
				missing = append(missing, doc)
				continue
			}
			values[doc] = v
		}

		switch {
		case len(missing) > 0:
			issues = append(issues, report.Issue{
				Kind:     report.LinkMismatch,
				Set:      s.Label(),
				LinkID:   l.ID,
				Document: missing[0],
				Detail:   fmt.Sprintf("link %s: prefix %q not found in %s", l.ID, l.Prefix, strings.Join(missing, ", ")),
				Values:   values,
			})
		case !allEqual(values):
			issues = append(issues, report.Issue{
				Kind:   report.LinkMismatch,
				Set:    s.Label(),
				LinkID: l.ID,
				Detail: fmt.Sprintf("link %s: documents disagree (%s)", l.ID, describe(values)),
				Values: values,
			})
		}
	}
	return issues, nil
}

func (c *Checker) read(path string) (string, error) {
	if content, ok := c.cache[path]; ok {
		return content, nil
	}
	content, err := c.store.Read(path)
	if err != nil {
		return "", perrors.WrapWithDetails(perrors.EDocumentStore,
			"reading document for consistency check", err,
			map[string]string{"document": path})
	}
	c.cache[path] = content
	return content, nil
}

// --- Helpers ---

// reintroduced reports whether a later patch on the same document writes
// text containing p's anchor, which makes its presence legitimate.
func reintroduced(sets []*patch.Set, si, i int, p patch.Patch) bool {
	return later(sets, si, i, p.Document, func(q patch.Patch, _ bool) bool {
		return anchor.Contains(q.Replacement, p.Anchor)
	})
}

// rewritten reports whether p's replacement was legitimately consumed by
// a later patch: a dependent in the same set, or an overlapping anchor in
// a later set of the chain.
func rewritten(sets []*patch.Set, si, i int, p patch.Patch, dependents []string) bool {
	deps := make(map[string]bool, len(dependents))
	for _, id := range dependents {
		deps[id] = true
	}
	return later(sets, si, i, p.Document, func(q patch.Patch, sameSet bool) bool {
		if sameSet && deps[q.ID] {
			return true
		}
		return anchor.Contains(q.Anchor, p.Replacement) || anchor.Contains(p.Replacement, q.Anchor)
	})
}

// later reports whether any patch after sets[si].Patches[i] that targets
// document satisfies match. Within the same set only patches after i
// count; later sets count in full.
func later(sets []*patch.Set, si, i int, document string, match func(q patch.Patch, sameSet bool) bool) bool {
	for sj := si; sj < len(sets); sj++ {
		start := 0
		if sj == si {
			start = i + 1
		}
		for _, q := range sets[sj].Patches[start:] {
			if q.Document == document && match(q, sj == si) {
				return true
			}
		}
	}
	return false
}

func allEqual(values map[string]string) bool {
	first, set := "", false
	for _, v := range values {
		if !set {
			first, set = v, true
			continue
		}
		if v != first {
			return false
		}
	}
	return true
}

func describe(values map[string]string) string {
	docs := make([]string, 0, len(values))
	for doc := range values {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = fmt.Sprintf("%s=%q", doc, values[doc])
	}
	return strings.Join(parts, ", ")
}
