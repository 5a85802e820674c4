// Package applier runs ordered patch sets against a document store.
//
// A run reads every target document once, applies the patches in set
// order against in-memory working copies, and commits each document with
// a single atomic write, only when every patch that affects it succeeded.
// Several sets may be chained in one run: working copies carry over from
// one set to the next and commit gating spans the whole chain.
package applier

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/HendryAvila/specpatch/internal/anchor"
	"github.com/HendryAvila/specpatch/internal/checker"
	"github.com/HendryAvila/specpatch/internal/document"
	perrors "github.com/HendryAvila/specpatch/internal/errors"
	"github.com/HendryAvila/specpatch/internal/patch"
	"github.com/HendryAvila/specpatch/internal/report"
)

// timeNow is a package-level variable for testing.
var timeNow = time.Now

// Options configures an Applier.
type Options struct {
	// Vars are configuration defaults for 'when' preconditions. Set vars
	// override them.
	Vars map[string]string
	// DryRun computes the full report, including the consistency check
	// against the working copies, without writing anything.
	DryRun bool
	// Logger receives per-patch and per-document events. Nil discards.
	Logger *slog.Logger
}

// Applier applies patch sets to the documents of one store.
type Applier struct {
	store document.Store
	opts  Options
	log   *slog.Logger
}

// New creates an Applier over store.
func New(store document.Store, opts Options) *Applier {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Applier{store: store, opts: opts, log: log}
}

// run holds the mutable state of a single application run.
type run struct {
	sets     []*patch.Set
	docs     []string
	before   map[string]string
	working  map[string]string
	entries  [][]report.Entry
	outcomes []map[string]patch.Outcome
}

// Apply runs the chain of sets. Validation and read failures are returned
// before any document is touched. Otherwise a report is always returned;
// the error is non-nil only when a document write failed or the
// post-commit check could not read the store.
func (a *Applier) Apply(sets ...*patch.Set) (*report.Report, error) {
	started := timeNow()
	if len(sets) == 0 {
		return nil, perrors.New(perrors.EUsage, "no patch sets to apply")
	}

	r := &run{sets: sets}
	conds := make([]map[string]*patch.Condition, len(sets))
	for i, s := range sets {
		if err := patch.Validate(s); err != nil {
			return nil, err
		}
		c, err := patch.Conditions(s)
		if err != nil {
			return nil, err
		}
		conds[i] = c
	}

	if err := a.load(r); err != nil {
		return nil, err
	}

	for si, s := range sets {
		a.applySet(r, si, s, conds[si])
	}
	r.resolveChain()
	for _, es := range r.entries {
		for _, e := range es {
			a.log.Debug("patch outcome",
				"set", e.Set, "patch", e.PatchID, "document", e.Document, "outcome", string(e.Outcome))
		}
	}

	rep := &report.Report{
		DryRun:    a.opts.DryRun,
		StartedAt: started,
	}
	for _, s := range sets {
		rep.Sets = append(rep.Sets, s.Label())
	}
	for _, es := range r.entries {
		rep.Entries = append(rep.Entries, es...)
	}

	storeErr := a.commit(r, rep)
	if storeErr == nil {
		if err := a.check(r, rep); err != nil {
			storeErr = err
		}
	}
	rep.FinishedAt = timeNow()
	return rep, storeErr
}

// load reads every document the chain touches, once.
func (a *Applier) load(r *run) error {
	r.before = make(map[string]string)
	r.working = make(map[string]string)
	for _, s := range r.sets {
		for _, path := range s.Documents() {
			if _, ok := r.before[path]; ok {
				continue
			}
			content, err := a.store.Read(path)
			if err != nil {
				msg := "reading document"
				if errors.Is(err, document.ErrNotFound) {
					msg = "target document does not exist"
				}
				return perrors.WrapWithDetails(perrors.EDocumentStore, msg, err,
					map[string]string{"document": path, "set": s.Label()})
			}
			r.docs = append(r.docs, path)
			r.before[path] = content
			r.working[path] = content
		}
	}
	return nil
}

// applySet applies one set in declared order. Every patch runs, even after
// a failure, so the report is complete.
func (a *Applier) applySet(r *run, si int, s *patch.Set, conds map[string]*patch.Condition) {
	vars := patch.MergeVars(a.opts.Vars, s.Vars)
	entries := make([]report.Entry, 0, len(s.Patches))
	outcomes := make(map[string]patch.Outcome, len(s.Patches))

	for _, p := range s.Patches {
		content := r.working[p.Document]
		e := report.Entry{
			Set:      s.Label(),
			PatchID:  p.ID,
			Document: p.Document,
			Kind:     p.EffectiveKind(),
		}

		if cond := conds[p.ID]; cond != nil {
			ok, err := cond.Eval(vars, p.Document, content)
			switch {
			case err != nil:
				e.Outcome = patch.Failed
				e.Detail = err.Error()
			case !ok:
				e.Outcome = patch.Skipped
				e.Detail = fmt.Sprintf("precondition %q is false", cond.String())
			}
		}

		if e.Outcome == "" {
			st := applyPatch(p, content)
			e.Outcome = st.outcome
			e.Diff = st.diff
			e.Lines = st.lines
			e.Detail = st.detail
			if st.outcome.Mutates() {
				r.working[p.Document] = st.content
			}
		}

		outcomes[p.ID] = e.Outcome
		entries = append(entries, e)
	}

	r.resolveSuperseded(s, entries, outcomes)
	r.entries = append(r.entries, entries)
	r.outcomes = append(r.outcomes, outcomes)
}

// resolveSuperseded turns a NotFound into AlreadyApplied when a patch
// that depends on it, on the same document, shows its own work in the
// working copy: the dependent consumed this patch's replacement on an
// earlier run.
func (r *run) resolveSuperseded(s *patch.Set, entries []report.Entry, outcomes map[string]patch.Outcome) {
	dependents := patch.Dependents(s)
	for i := range entries {
		e := &entries[i]
		if e.Outcome != patch.NotFound || e.Kind == patch.KindDeleteBlock {
			continue
		}
		for _, id := range dependents[e.PatchID] {
			dep, _ := s.Lookup(id)
			if dep.Document == e.Document && r.done(dep, outcomes[id]) {
				e.Outcome = patch.AlreadyApplied
				e.Detail = fmt.Sprintf("superseded by dependent patch %s", id)
				outcomes[e.PatchID] = patch.AlreadyApplied
				break
			}
		}
	}
}

// resolveChain extends superseding across sets: a NotFound is
// AlreadyApplied when a patch of a later set, on the same document,
// rewrote text overlapping this patch's replacement and shows its own
// work in the working copy.
func (r *run) resolveChain() {
	for si, s := range r.sets {
		for i := range r.entries[si] {
			e := &r.entries[si][i]
			if e.Outcome != patch.NotFound || e.Kind == patch.KindDeleteBlock {
				continue
			}
			p, _ := s.Lookup(e.PatchID)
			if p.Replacement == "" {
				continue
			}
			if by, ok := r.laterRewrite(si, p); ok {
				e.Outcome = patch.AlreadyApplied
				e.Detail = fmt.Sprintf("superseded by patch %s", by)
				r.outcomes[si][e.PatchID] = patch.AlreadyApplied
			}
		}
	}
}

// laterRewrite finds a done patch after set si whose anchor overlaps the
// replacement of p.
func (r *run) laterRewrite(si int, p patch.Patch) (string, bool) {
	for sj := si + 1; sj < len(r.sets); sj++ {
		for _, e := range r.entries[sj] {
			if e.Document != p.Document || e.Kind == patch.KindDeleteBlock {
				continue
			}
			q, _ := r.sets[sj].Lookup(e.PatchID)
			if q.Anchor == "" || !r.done(q, e.Outcome) {
				continue
			}
			if anchor.Contains(q.Anchor, p.Replacement) || anchor.Contains(p.Replacement, q.Anchor) {
				return e.Set + ":" + e.PatchID, true
			}
		}
	}
	return "", false
}

// done reports whether q's outcome is evidence of its work: it changed the
// working copy, or it was already applied and its non-empty replacement
// is present.
func (r *run) done(q patch.Patch, o patch.Outcome) bool {
	switch o {
	case patch.Applied:
		return true
	case patch.AlreadyApplied:
		return q.Replacement != "" && anchor.Contains(r.working[q.Document], q.Replacement)
	default:
		return false
	}
}

// blockers maps each document to the patches that prevent its commit:
// its own failed patches, and failed patches elsewhere that one of its
// patches transitively depends on.
func (r *run) blockers() map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	add := func(doc, label string) {
		if seen[doc] == nil {
			seen[doc] = make(map[string]bool)
		}
		if !seen[doc][label] {
			seen[doc][label] = true
			out[doc] = append(out[doc], label)
		}
	}

	for si, s := range r.sets {
		dependents := patch.Dependents(s)
		for _, e := range r.entries[si] {
			if e.Outcome.OK() {
				continue
			}
			label := e.PatchID
			if len(r.sets) > 1 {
				label = e.Set + ":" + e.PatchID
			}
			add(e.Document, label)
			for _, id := range dependents[e.PatchID] {
				if dep, ok := s.Lookup(id); ok {
					add(dep.Document, label)
				}
			}
		}
	}
	return out
}

// commit writes every changed, unblocked document once. After the first
// write failure no further document is attempted.
func (a *Applier) commit(r *run, rep *report.Report) error {
	blocked := r.blockers()
	var storeErr error

	for _, path := range r.docs {
		d := report.Document{
			Path:    path,
			Changed: r.working[path] != r.before[path],
			Before:  r.before[path],
			Content: r.working[path],
		}

		switch {
		case len(blocked[path]) > 0:
			d.Status = report.StatusBlocked
			d.BlockedBy = blocked[path]
			d.Content = r.before[path]
			a.log.Warn("document not committed", "document", path, "blocked_by", blocked[path])
		case !d.Changed:
			d.Status = report.StatusUnchanged
		case a.opts.DryRun:
			d.Status = report.StatusPlanned
		case storeErr != nil:
			d.Status = report.StatusAborted
			d.Content = r.before[path]
		default:
			if err := a.store.Write(path, r.working[path]); err != nil {
				d.Status = report.StatusWriteFailed
				d.Error = err.Error()
				d.Content = r.before[path]
				storeErr = perrors.WrapWithDetails(perrors.EDocumentStore, "writing document", err,
					map[string]string{"document": path, "committed": committedList(rep.Documents)})
				a.log.Error("document write failed", "document", path, "err", err)
				break
			}
			d.Status = report.StatusCommitted
			a.log.Info("document committed", "document", path)
		}
		rep.Documents = append(rep.Documents, d)
	}
	return storeErr
}

// check runs the consistency checker over the documents that reached a
// consistent state. Dry runs check the working copies.
func (a *Applier) check(r *run, rep *report.Report) error {
	store := a.store
	if a.opts.DryRun {
		store = document.NewMemStore(r.working)
	}

	docs := make(map[string]bool)
	allOK := true
	for _, d := range rep.Documents {
		if d.Status.OK() {
			docs[d.Path] = true
		} else {
			allOK = false
		}
	}

	issues, err := checker.New(store, a.opts.Vars).Check(r.sets, checker.Scope{
		Documents: docs,
		Outcomes:  r.outcomes,
	})
	if err != nil {
		return err
	}
	rep.Checked = true
	rep.Issues = issues
	rep.FullyConsistent = allOK && len(issues) == 0
	for _, is := range issues {
		a.log.Warn("consistency issue", "kind", string(is.Kind), "detail", is.Detail)
	}
	return nil
}

func committedList(docs []report.Document) string {
	var out string
	for _, d := range docs {
		if d.Status == report.StatusCommitted {
			if out != "" {
				out += ","
			}
			out += d.Path
		}
	}
	if out == "" {
		return "none"
	}
	return out
}
