// Package patch models anchored text patches and ordered patch sets.
//
// A Patch is an immutable rewrite rule: find an exact anchor in one target
// document and rewrite it. A Set is an ordered list of patches whose
// declared order must be a topological order of their depends_on graph,
// because later patches routinely anchor on text written by earlier ones.
//
// Files are split by concern:
//   - types.go: Patch, Set, Link and outcome enums
//   - validate.go: structural checks and the dependency/ordering resolver
//   - when.go: optional preconditions (expr-lang expressions)
//   - load.go: YAML/JSON and CUE patch set files
//   - overlay.go: RFC 6902 overlays applied to a set before validation
package patch

// --- Patch kind enum ---

// Kind selects how a patch rewrites its target document.
type Kind string

const (
	// KindReplace swaps the anchor for the replacement text.
	KindReplace Kind = "replace"
	// KindDeleteBlock removes the text from the anchor up to (not
	// including) the next Until marker, or to the end of the document.
	KindDeleteBlock Kind = "delete-block"
	// KindInsertAfter keeps the anchor and inserts the replacement before
	// the next Until marker after it, or right after the anchor.
	KindInsertAfter Kind = "insert-after"
)

var validKinds = map[Kind]bool{
	KindReplace:     true,
	KindDeleteBlock: true,
	KindInsertAfter: true,
}

// --- Core data structures ---

// Patch is a single unit of change against one document.
type Patch struct {
	ID          string   `yaml:"id" json:"id"`
	Document    string   `yaml:"document" json:"document"`
	Kind        Kind     `yaml:"kind,omitempty" json:"kind,omitempty"`
	Anchor      string   `yaml:"anchor" json:"anchor"`
	Replacement string   `yaml:"replacement,omitempty" json:"replacement,omitempty"`
	Until       string   `yaml:"until,omitempty" json:"until,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	When        string   `yaml:"when,omitempty" json:"when,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// EffectiveKind returns the patch kind, defaulting to KindReplace.
func (p Patch) EffectiveKind() Kind {
	if p.Kind == "" {
		return KindReplace
	}
	return p.Kind
}

// RemovesAnchor reports whether a successful application leaves the
// anchor absent from the document. Insert-after keeps its marker, and a
// replacement that embeds its own anchor keeps it too.
func (p Patch) RemovesAnchor() bool {
	switch p.EffectiveKind() {
	case KindInsertAfter:
		return false
	case KindReplace:
		return !containsFragment(p.Replacement, p.Anchor)
	default:
		return true
	}
}

// LeavesReplacement reports whether a successful application leaves the
// replacement text verbatim in the document.
func (p Patch) LeavesReplacement() bool {
	return p.EffectiveKind() != KindDeleteBlock && p.Replacement != ""
}

// Link declares a value that must read the same in several documents,
// e.g. a file path named by both tasks.md and design.md. The value of
// each document is the text between the first Prefix and the next Suffix.
type Link struct {
	ID        string   `yaml:"id" json:"id"`
	Documents []string `yaml:"documents" json:"documents"`
	Prefix    string   `yaml:"prefix" json:"prefix"`
	Suffix    string   `yaml:"suffix,omitempty" json:"suffix,omitempty"`
}

// Set is an ordered collection of patches, possibly spanning documents.
type Set struct {
	Name    string            `yaml:"name,omitempty" json:"name,omitempty"`
	Version string            `yaml:"version,omitempty" json:"version,omitempty"`
	Vars    map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
	Patches []Patch           `yaml:"patches" json:"patches"`
	Links   []Link            `yaml:"links,omitempty" json:"links,omitempty"`

	// Source is the file the set was loaded from, if any.
	Source string `yaml:"-" json:"-"`
}

// Documents returns the distinct target documents in first-use order.
func (s *Set) Documents() []string {
	seen := make(map[string]bool)
	var docs []string
	for _, p := range s.Patches {
		if !seen[p.Document] {
			seen[p.Document] = true
			docs = append(docs, p.Document)
		}
	}
	return docs
}

// Lookup returns the patch with the given ID.
func (s *Set) Lookup(id string) (Patch, bool) {
	for _, p := range s.Patches {
		if p.ID == id {
			return p, true
		}
	}
	return Patch{}, false
}

// Label returns a human-readable name for the set.
func (s *Set) Label() string {
	switch {
	case s.Name != "" && s.Version != "":
		return s.Name + "@" + s.Version
	case s.Name != "":
		return s.Name
	case s.Source != "":
		return s.Source
	default:
		return "unnamed-set"
	}
}

// --- Outcome enum ---

// Outcome is the per-patch result of an application run.
type Outcome string

const (
	// Applied: the anchor occurred exactly once and was rewritten.
	Applied Outcome = "applied"
	// AlreadyApplied: the anchor is gone and the replacement is present.
	AlreadyApplied Outcome = "already-applied"
	// Skipped: the patch precondition evaluated to false.
	Skipped Outcome = "skipped"
	// NotFound: neither anchor nor replacement is present (drift).
	NotFound Outcome = "not-found"
	// Ambiguous: the anchor occurs more than once.
	Ambiguous Outcome = "ambiguous"
	// Failed: the precondition could not be evaluated.
	Failed Outcome = "failed"
)

// OK reports whether the outcome allows its document to be committed.
func (o Outcome) OK() bool {
	switch o {
	case Applied, AlreadyApplied, Skipped:
		return true
	default:
		return false
	}
}

// Mutates reports whether the outcome changed the working copy.
func (o Outcome) Mutates() bool { return o == Applied }
