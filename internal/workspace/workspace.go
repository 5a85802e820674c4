// Package workspace wires configuration, the document store, the applier
// and the run journal into the operations exposed by the CLI and the MCP
// tools: plan, apply, check and history.
package workspace

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/HendryAvila/specpatch/internal/applier"
	"github.com/HendryAvila/specpatch/internal/checker"
	"github.com/HendryAvila/specpatch/internal/config"
	"github.com/HendryAvila/specpatch/internal/document"
	perrors "github.com/HendryAvila/specpatch/internal/errors"
	"github.com/HendryAvila/specpatch/internal/journal"
	"github.com/HendryAvila/specpatch/internal/patch"
	"github.com/HendryAvila/specpatch/internal/report"
)

// OverlaySep separates a patch set path from the overlays applied to it:
// "sets/paths.yaml+overlays/v2.json".
const OverlaySep = "+"

// Ref names a patch set file and the overlays applied to it, in order.
type Ref struct {
	Path     string
	Overlays []string
}

// ParseRef splits "set.yaml+a.json+b.yaml" into a Ref.
func ParseRef(s string) Ref {
	parts := strings.Split(s, OverlaySep)
	return Ref{Path: parts[0], Overlays: parts[1:]}
}

// ParseRefs parses every argument.
func ParseRefs(args []string) []Ref {
	refs := make([]Ref, 0, len(args))
	for _, a := range args {
		refs = append(refs, ParseRef(a))
	}
	return refs
}

// Workspace runs patch operations for one project.
type Workspace struct {
	cfg     *config.Config
	store   document.Store
	log     *slog.Logger
	journal *journal.Journal
}

// Open creates a Workspace over the project's file store. A journal that
// cannot be opened is logged and disabled; runs still proceed.
func Open(cfg *config.Config, log *slog.Logger) *Workspace {
	w := New(cfg, document.NewFileStore(cfg.DocumentRoot()), log)
	j, err := journal.New(journal.Config{DataDir: cfg.JournalDir()})
	if err != nil {
		log.Warn("run journal disabled", "err", err)
		return w
	}
	w.journal = j
	return w
}

// New creates a Workspace over an explicit store, without a journal.
func New(cfg *config.Config, store document.Store, log *slog.Logger) *Workspace {
	return &Workspace{cfg: cfg, store: store, log: log}
}

// WithJournal attaches a run journal.
func (w *Workspace) WithJournal(j *journal.Journal) *Workspace {
	w.journal = j
	return w
}

// Close releases the journal.
func (w *Workspace) Close() error {
	if w.journal == nil {
		return nil
	}
	return w.journal.Close()
}

// Config returns the workspace configuration.
func (w *Workspace) Config() *config.Config { return w.cfg }

// LoadSets loads every referenced set and applies its overlays. Relative
// paths resolve against the config directory.
func (w *Workspace) LoadSets(refs []Ref) ([]*patch.Set, error) {
	if len(refs) == 0 {
		return nil, perrors.New(perrors.EUsage, "at least one patch set is required")
	}
	sets := make([]*patch.Set, 0, len(refs))
	for _, ref := range refs {
		s, err := patch.Load(w.cfg.ResolvePath(ref.Path))
		if err != nil {
			return nil, err
		}
		for _, o := range ref.Overlays {
			ops, err := patch.LoadOverlay(w.cfg.ResolvePath(o))
			if err != nil {
				return nil, err
			}
			if s, err = patch.ApplyOverlay(s, ops); err != nil {
				return nil, err
			}
		}
		w.log.Debug("patch set loaded", "set", s.Label(), "patches", len(s.Patches), "overlays", len(ref.Overlays))
		sets = append(sets, s)
	}
	return sets, nil
}

// Plan applies the sets to working copies only.
func (w *Workspace) Plan(refs []Ref) (*report.Report, error) {
	sets, err := w.LoadSets(refs)
	if err != nil {
		return nil, err
	}
	return w.applier(true).Apply(sets...)
}

// Apply applies the sets and commits the documents that passed gating.
// The run is journaled; a journal failure is logged and never fails the
// run.
func (w *Workspace) Apply(refs []Ref) (*report.Report, error) {
	sets, err := w.LoadSets(refs)
	if err != nil {
		return nil, err
	}
	rep, runErr := w.applier(false).Apply(sets...)
	if rep != nil && w.journal != nil {
		if err := w.journal.Record(rep); err != nil {
			w.log.Warn("run not journaled", "err", perrors.Wrap(perrors.EJournal, "recording run", err))
		}
	}
	return rep, runErr
}

// Check runs the consistency checker on the stored documents.
func (w *Workspace) Check(refs []Ref) (*report.Report, error) {
	sets, err := w.LoadSets(refs)
	if err != nil {
		return nil, err
	}
	issues, err := checker.New(w.store, w.cfg.Vars).Check(sets, checker.Scope{})
	if err != nil {
		return nil, err
	}
	rep := &report.Report{
		Checked:         true,
		Issues:          issues,
		FullyConsistent: len(issues) == 0,
	}
	for _, s := range sets {
		rep.Sets = append(rep.Sets, s.Label())
	}
	return rep, nil
}

// History lists recent journaled runs.
func (w *Workspace) History(limit int) ([]journal.Run, error) {
	if w.journal == nil {
		return nil, perrors.New(perrors.EJournal, "run journal is not available")
	}
	runs, err := w.journal.Recent(limit)
	if err != nil {
		return nil, perrors.Wrap(perrors.EJournal, "listing runs", err)
	}
	return runs, nil
}

// Run returns one journaled run in detail.
func (w *Workspace) Run(id string) (*journal.RunDetail, error) {
	if w.journal == nil {
		return nil, perrors.New(perrors.EJournal, "run journal is not available")
	}
	d, err := w.journal.Get(id)
	if err != nil {
		return nil, perrors.Wrap(perrors.EJournal, fmt.Sprintf("loading run %s", id), err)
	}
	return d, nil
}

func (w *Workspace) applier(dryRun bool) *applier.Applier {
	return applier.New(w.store, applier.Options{
		Vars:   w.cfg.Vars,
		DryRun: dryRun,
		Logger: w.log,
	})
}
