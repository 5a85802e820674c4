package applier

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/HendryAvila/specpatch/internal/document"
	perrors "github.com/HendryAvila/specpatch/internal/errors"
	"github.com/HendryAvila/specpatch/internal/patch"
	"github.com/HendryAvila/specpatch/internal/report"
)

func init() {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return fixed }
}

// --- Helpers ---

func replacePatch(id, doc, anchor, replacement string, deps ...string) patch.Patch {
	return patch.Patch{ID: id, Document: doc, Anchor: anchor, Replacement: replacement, DependsOn: deps}
}

func set(name string, patches ...patch.Patch) *patch.Set {
	return &patch.Set{Name: name, Patches: patches}
}

func mustApply(t *testing.T, store document.Store, opts Options, sets ...*patch.Set) *report.Report {
	t.Helper()
	rep, err := New(store, opts).Apply(sets...)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return rep
}

func outcomes(rep *report.Report) map[string]patch.Outcome {
	out := make(map[string]patch.Outcome, len(rep.Entries))
	for _, e := range rep.Entries {
		out[e.PatchID] = e.Outcome
	}
	return out
}

func read(t *testing.T, store document.Store, path string) string {
	t.Helper()
	content, err := store.Read(path)
	if err != nil {
		t.Fatalf("Read(%s): %v", path, err)
	}
	return content
}

// --- Testable properties ---

func TestApply_EndToEnd(t *testing.T) {
	store := document.NewMemStore(map[string]string{"tasks.md": "- [ ] 3.2 File: old/path.ts"})
	s := set("paths", replacePatch("move", "tasks.md", "old/path.ts", "new/path.ts"))

	rep := mustApply(t, store, Options{}, s)
	if got := read(t, store, "tasks.md"); got != "- [ ] 3.2 File: new/path.ts" {
		t.Errorf("content = %q", got)
	}
	e, _ := rep.Entry("", "move")
	if e.Outcome != patch.Applied {
		t.Fatalf("outcome = %s, want applied", e.Outcome)
	}
	wantDiff := &report.Diff{
		Old:     report.Range{Start: 16, End: 27},
		New:     report.Range{Start: 16, End: 27},
		Line:    1,
		Removed: "old/path.ts",
		Added:   "new/path.ts",
	}
	if diff := cmp.Diff(wantDiff, e.Diff); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}
	if !rep.Success() || !rep.FullyConsistent {
		t.Errorf("Success=%v FullyConsistent=%v issues=%v", rep.Success(), rep.FullyConsistent, rep.Issues)
	}

	rep = mustApply(t, store, Options{}, s)
	if e, _ := rep.Entry("", "move"); e.Outcome != patch.AlreadyApplied {
		t.Errorf("second run outcome = %s, want already-applied", e.Outcome)
	}
	if got := read(t, store, "tasks.md"); got != "- [ ] 3.2 File: new/path.ts" {
		t.Errorf("content after rerun = %q", got)
	}
	if store.Writes("tasks.md") != 1 {
		t.Errorf("writes = %d, want 1", store.Writes("tasks.md"))
	}
}

func TestApply_Idempotence(t *testing.T) {
	original := "# Design\n\n## Components\n- parser\n- loader\n\n## Tasks\n- [ ] 1.1 wire parser\n"
	s := set("evolve",
		replacePatch("rename", "design.md", "- parser\n", "- lexer\n- parser\n"),
		patch.Patch{ID: "tasks", Document: "design.md", Kind: patch.KindInsertAfter,
			Anchor: "## Tasks\n", Replacement: "- [ ] 1.2 wire lexer\n"},
		patch.Patch{ID: "drop", Document: "design.md", Kind: patch.KindDeleteBlock,
			Anchor: "- loader\n", Until: "\n## Tasks"},
		replacePatch("wire", "design.md", "1.1 wire parser", "1.1 wire parser and lexer"),
	)

	store := document.NewMemStore(map[string]string{"design.md": original})
	first := mustApply(t, store, Options{}, s)
	if !first.Success() {
		t.Fatalf("first run failed: %+v", first.Entries)
	}
	once := read(t, store, "design.md")

	second := mustApply(t, store, Options{}, s)
	for _, e := range second.Entries {
		if e.Outcome != patch.AlreadyApplied {
			t.Errorf("second run %s = %s, want already-applied", e.PatchID, e.Outcome)
		}
	}
	if twice := read(t, store, "design.md"); twice != once {
		t.Errorf("second run changed content:\n%s", cmp.Diff(once, twice))
	}
	if store.Writes("design.md") != 1 {
		t.Errorf("writes = %d, want 1", store.Writes("design.md"))
	}
}

func TestApply_AtomicityOnDrift(t *testing.T) {
	store := document.NewMemStore(map[string]string{
		"a.md": "alpha beta",
		"b.md": "gamma",
	})
	s := set("mixed",
		replacePatch("ok", "a.md", "alpha", "ALPHA"),
		replacePatch("drift", "a.md", "missing", "whatever"),
		replacePatch("other", "b.md", "gamma", "GAMMA"),
	)

	rep := mustApply(t, store, Options{}, s)
	got := outcomes(rep)
	want := map[string]patch.Outcome{"ok": patch.Applied, "drift": patch.NotFound, "other": patch.Applied}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if read(t, store, "a.md") != "alpha beta" {
		t.Error("a.md must be byte-identical after a drifted patch")
	}
	if store.Writes("a.md") != 0 {
		t.Error("a.md must not be written")
	}
	if read(t, store, "b.md") != "GAMMA" {
		t.Error("unrelated b.md should still be committed")
	}

	a, _ := rep.Document("a.md")
	if a.Status != report.StatusBlocked || cmp.Diff([]string{"drift"}, a.BlockedBy) != "" {
		t.Errorf("a.md = %+v", a)
	}
	if rep.Success() || rep.FullyConsistent {
		t.Error("report must not be successful")
	}
	if perrors.GetCode(rep.Err()) != perrors.EAnchorNotFound {
		t.Errorf("Err code = %s", perrors.GetCode(rep.Err()))
	}
}

func TestApply_AmbiguousAnchor(t *testing.T) {
	content := "- [ ] task\n- [ ] task\n"
	store := document.NewMemStore(map[string]string{"tasks.md": content})

	rep := mustApply(t, store, Options{}, set("s", replacePatch("tick", "tasks.md", "- [ ] task", "- [x] task")))
	e, _ := rep.Entry("", "tick")
	if e.Outcome != patch.Ambiguous {
		t.Fatalf("outcome = %s, want ambiguous", e.Outcome)
	}
	if diff := cmp.Diff([]int{1, 2}, e.Lines); diff != "" {
		t.Errorf("lines (-want +got):\n%s", diff)
	}
	if read(t, store, "tasks.md") != content {
		t.Error("ambiguous anchor must not substitute")
	}
	if perrors.ExitCode(rep.Err()) != perrors.ExitPatchFault {
		t.Errorf("exit code = %d, want 1", perrors.ExitCode(rep.Err()))
	}
}

func TestApply_Ordering(t *testing.T) {
	a := replacePatch("A", "doc.md", "foo", "bar")
	b := replacePatch("B", "doc.md", "bar baz", "qux quux", "A")

	store := document.NewMemStore(map[string]string{"doc.md": "foo baz"})
	rep := mustApply(t, store, Options{}, set("ordered", a, b))
	want := map[string]patch.Outcome{"A": patch.Applied, "B": patch.Applied}
	if diff := cmp.Diff(want, outcomes(rep)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if got := read(t, store, "doc.md"); got != "qux quux" {
		t.Errorf("content = %q", got)
	}
	if !rep.FullyConsistent {
		t.Errorf("issues = %+v", rep.Issues)
	}

	// B's completion implies A's, even though A's replacement was consumed.
	rep = mustApply(t, store, Options{}, set("ordered", a, b))
	want = map[string]patch.Outcome{"A": patch.AlreadyApplied, "B": patch.AlreadyApplied}
	if diff := cmp.Diff(want, outcomes(rep)); diff != "" {
		t.Errorf("rerun outcomes (-want +got):\n%s", diff)
	}

	fresh := document.NewMemStore(map[string]string{"doc.md": "foo baz"})
	_, err := New(fresh, Options{}).Apply(set("reversed", b, a))
	if perrors.GetCode(err) != perrors.EOrderingViolation {
		t.Fatalf("err = %v, want E_ORDERING_VIOLATION", err)
	}
	if fresh.Writes("doc.md") != 0 {
		t.Error("rejected set must not touch documents")
	}
}

func TestApply_DriftDetection(t *testing.T) {
	store := document.NewMemStore(map[string]string{"greeting.md": "hello world"})
	rep := mustApply(t, store, Options{}, set("s", replacePatch("bye", "greeting.md", "goodbye world", "farewell")))

	if e, _ := rep.Entry("", "bye"); e.Outcome != patch.NotFound {
		t.Errorf("outcome = %s, want not-found", e.Outcome)
	}
	if read(t, store, "greeting.md") != "hello world" {
		t.Error("document changed")
	}
}

func TestApply_DependentSupersedesConsumedReplacement(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "foo baz"})
	s := set("s",
		replacePatch("rename", "a.md", "foo", "bar"),
		replacePatch("merge", "a.md", "bar baz", "qux", "rename"),
	)
	mustApply(t, store, Options{}, s)

	rep := mustApply(t, store, Options{}, s)
	e, _ := rep.Entry("", "rename")
	if e.Outcome != patch.AlreadyApplied || e.Detail != "superseded by dependent patch merge" {
		t.Errorf("rename = %s (%s)", e.Outcome, e.Detail)
	}
	if !rep.Success() || read(t, store, "a.md") != "qux" {
		t.Errorf("rerun should be a no-op success, content %q", read(t, store, "a.md"))
	}
}

func TestApply_DriftNotMaskedByEmptyDependent(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "hello world"})
	s := set("s",
		replacePatch("rename", "a.md", "foo", "bar"),
		replacePatch("strip", "a.md", "bar baz", "", "rename"),
	)

	rep := mustApply(t, store, Options{}, s)
	want := map[string]patch.Outcome{"rename": patch.NotFound, "strip": patch.AlreadyApplied}
	if diff := cmp.Diff(want, outcomes(rep)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if rep.Success() {
		t.Error("a removal with nothing left to remove is no evidence the dependency ran")
	}
	if read(t, store, "a.md") != "hello world" || store.Writes("a.md") != 0 {
		t.Error("a.md must stay untouched")
	}
}

// --- Failure handling ---

func TestApply_ValidationBeforeRead(t *testing.T) {
	store := document.NewMemStore(nil)
	s := set("cycle",
		replacePatch("a", "x.md", "1", "2", "b"),
		replacePatch("b", "x.md", "2", "3", "a"),
	)
	_, err := New(store, Options{}).Apply(s)
	if perrors.GetCode(err) != perrors.EDependencyCycle {
		t.Fatalf("err = %v, want cycle", err)
	}
}

func TestApply_MissingDocumentAbortsBeforeCommit(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "x"})
	s := set("s",
		replacePatch("a", "a.md", "x", "y"),
		replacePatch("b", "missing.md", "p", "q"),
	)
	rep, err := New(store, Options{}).Apply(s)
	if rep != nil {
		t.Error("no report expected on read failure")
	}
	if perrors.GetCode(err) != perrors.EDocumentStore || !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if perrors.ExitCode(err) != perrors.ExitFatal {
		t.Errorf("exit code = %d", perrors.ExitCode(err))
	}
	if store.Writes("a.md") != 0 {
		t.Error("nothing may be committed when a read fails")
	}
}

func TestApply_WriteFailureStopsFurtherWrites(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "1", "b.md": "2", "c.md": "3"})
	boom := errors.New("disk full")
	store.FailWrites("b.md", boom)

	s := set("s",
		replacePatch("a", "a.md", "1", "one"),
		replacePatch("b", "b.md", "2", "two"),
		replacePatch("c", "c.md", "3", "three"),
	)
	rep, err := New(store, Options{}).Apply(s)
	if !errors.Is(err, boom) || perrors.GetCode(err) != perrors.EDocumentStore {
		t.Fatalf("err = %v", err)
	}
	if rep == nil {
		t.Fatal("report expected alongside a write failure")
	}

	statuses := map[string]report.Status{}
	for _, d := range rep.Documents {
		statuses[d.Path] = d.Status
	}
	want := map[string]report.Status{
		"a.md": report.StatusCommitted,
		"b.md": report.StatusWriteFailed,
		"c.md": report.StatusAborted,
	}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if read(t, store, "c.md") != "3" {
		t.Error("c.md must not be written after an earlier failure")
	}
	if e, ok := perrors.As(err); !ok || e.Details["committed"] != "a.md" {
		t.Errorf("details = %+v", e)
	}
}

func TestApply_CrossDocumentDependencyBlocks(t *testing.T) {
	store := document.NewMemStore(map[string]string{
		"tasks.md":  "File: old.ts",
		"design.md": "component: Old",
	})
	s := set("s",
		replacePatch("design", "design.md", "component: Gone", "component: New"),
		replacePatch("tasks", "tasks.md", "old.ts", "new.ts", "design"),
	)
	rep := mustApply(t, store, Options{}, s)

	if e, _ := rep.Entry("", "tasks"); e.Outcome != patch.Applied {
		t.Errorf("tasks outcome = %s, want applied in memory", e.Outcome)
	}
	d, _ := rep.Document("tasks.md")
	if d.Status != report.StatusBlocked || cmp.Diff([]string{"design"}, d.BlockedBy) != "" {
		t.Errorf("tasks.md = %+v", d)
	}
	if read(t, store, "tasks.md") != "File: old.ts" {
		t.Error("dependent document must not be committed")
	}
}

// --- Preconditions ---

func TestApply_WhenConditions(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "x y z"})
	s := set("s",
		patch.Patch{ID: "on", Document: "a.md", Anchor: "x", Replacement: "X", When: `vars.mode == "full"`},
		patch.Patch{ID: "off", Document: "a.md", Anchor: "y", Replacement: "Y", When: `vars.mode == "lite"`},
		patch.Patch{ID: "seen", Document: "a.md", Anchor: "z", Replacement: "Z", When: `has("X")`},
	)
	rep := mustApply(t, store, Options{Vars: map[string]string{"mode": "full"}}, s)

	want := map[string]patch.Outcome{"on": patch.Applied, "off": patch.Skipped, "seen": patch.Applied}
	if diff := cmp.Diff(want, outcomes(rep)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if got := read(t, store, "a.md"); got != "X y Z" {
		t.Errorf("content = %q", got)
	}
	if !rep.Success() {
		t.Errorf("skipped patches count as success: %+v", rep.Issues)
	}
}

func TestApply_SetVarsOverrideDefaults(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "x"})
	s := set("s", patch.Patch{ID: "p", Document: "a.md", Anchor: "x", Replacement: "X", When: `vars.mode == "set"`})
	s.Vars = map[string]string{"mode": "set"}

	rep := mustApply(t, store, Options{Vars: map[string]string{"mode": "config"}}, s)
	if e, _ := rep.Entry("", "p"); e.Outcome != patch.Applied {
		t.Errorf("outcome = %s", e.Outcome)
	}
}

func TestApply_WhenRuntimeErrorFails(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "x"})
	s := set("s", patch.Patch{ID: "p", Document: "a.md", Anchor: "x", Replacement: "X", When: `int(vars.count) > 1`})

	rep := mustApply(t, store, Options{Vars: map[string]string{"count": "many"}}, s)
	if e, _ := rep.Entry("", "p"); e.Outcome != patch.Failed {
		t.Fatalf("outcome = %s, want failed", e.Outcome)
	}
	if read(t, store, "a.md") != "x" {
		t.Error("failed precondition must gate the document")
	}
	if perrors.GetCode(rep.Err()) != perrors.EPatchFailed {
		t.Errorf("Err code = %s", perrors.GetCode(rep.Err()))
	}
}

// --- Chaining and dry runs ---

func TestApply_ChainCarriesWorkingCopies(t *testing.T) {
	store := document.NewMemStore(map[string]string{"tasks.md": "- [ ] 1.1 draft"})
	first := set("v1", replacePatch("draft", "tasks.md", "1.1 draft", "1.1 write parser"))
	second := set("v2", replacePatch("refine", "tasks.md", "1.1 write parser", "1.1 write parser (streaming)"))

	rep := mustApply(t, store, Options{}, first, second)
	if got := read(t, store, "tasks.md"); got != "- [ ] 1.1 write parser (streaming)" {
		t.Errorf("content = %q", got)
	}
	if store.Writes("tasks.md") != 1 {
		t.Errorf("a chain writes each document once, got %d", store.Writes("tasks.md"))
	}
	if diff := cmp.Diff([]string{"v1", "v2"}, rep.Sets); diff != "" {
		t.Errorf("sets (-want +got):\n%s", diff)
	}
	if !rep.FullyConsistent {
		t.Errorf("issues = %+v", rep.Issues)
	}
}

func TestApply_ChainRerunIsIdempotent(t *testing.T) {
	store := document.NewMemStore(map[string]string{"tasks.md": "- [ ] 1.1 draft"})
	first := set("v1", replacePatch("draft", "tasks.md", "1.1 draft", "1.1 write parser"))
	second := set("v2", replacePatch("lexer", "tasks.md", "1.1 write parser", "1.1 implement lexer"))

	mustApply(t, store, Options{}, first, second)
	if got := read(t, store, "tasks.md"); got != "- [ ] 1.1 implement lexer" {
		t.Fatalf("content = %q", got)
	}

	rep := mustApply(t, store, Options{}, first, second)
	want := map[string]patch.Outcome{"draft": patch.AlreadyApplied, "lexer": patch.AlreadyApplied}
	if diff := cmp.Diff(want, outcomes(rep)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if !rep.Success() || !rep.FullyConsistent {
		t.Errorf("rerun should succeed: %+v", rep.Issues)
	}
	if store.Writes("tasks.md") != 1 {
		t.Errorf("writes = %d, want 1", store.Writes("tasks.md"))
	}
}

func TestApply_ChainDriftNotMaskedByUnrelatedLaterSet(t *testing.T) {
	store := document.NewMemStore(map[string]string{"tasks.md": "- [ ] 1.1 other\n- [ ] 1.2 lexer"})
	first := set("v1", replacePatch("draft", "tasks.md", "1.1 draft", "1.1 write parser"))
	second := set("v2", replacePatch("lexer", "tasks.md", "1.2 lexer", "1.2 lexer done"))

	rep := mustApply(t, store, Options{}, first, second)
	if e, _ := rep.Entry("v1", "draft"); e.Outcome != patch.NotFound {
		t.Errorf("draft = %s, want not-found", e.Outcome)
	}
	if rep.Success() {
		t.Error("drift must surface when no later patch rewrote the replacement")
	}
}

func TestApply_ChainGatingSpansSets(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "one"})
	rep := mustApply(t, store, Options{},
		set("v1", replacePatch("p", "a.md", "one", "two")),
		set("v2", replacePatch("q", "a.md", "three", "four")),
	)
	d, _ := rep.Document("a.md")
	if d.Status != report.StatusBlocked || cmp.Diff([]string{"v2:q"}, d.BlockedBy) != "" {
		t.Errorf("a.md = %+v", d)
	}
	if read(t, store, "a.md") != "one" {
		t.Error("a later set's failure must block the earlier set's change too")
	}
}

func TestApply_DryRun(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "old"})
	rep := mustApply(t, store, Options{DryRun: true}, set("s", replacePatch("p", "a.md", "old", "new")))

	d, _ := rep.Document("a.md")
	if d.Status != report.StatusPlanned || d.Content != "new" || d.Before != "old" {
		t.Errorf("document = %+v", d)
	}
	if store.Writes("a.md") != 0 || read(t, store, "a.md") != "old" {
		t.Error("dry run must not write")
	}
	if !rep.DryRun || !rep.Checked || !rep.FullyConsistent {
		t.Errorf("report = %+v", rep)
	}
}

func TestApply_Timestamps(t *testing.T) {
	store := document.NewMemStore(map[string]string{"a.md": "x"})
	rep := mustApply(t, store, Options{}, set("s", replacePatch("p", "a.md", "x", "y")))
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !rep.StartedAt.Equal(want) || !rep.FinishedAt.Equal(want) {
		t.Errorf("times = %v / %v", rep.StartedAt, rep.FinishedAt)
	}
}

func TestApply_NoSets(t *testing.T) {
	_, err := New(document.NewMemStore(nil), Options{}).Apply()
	if perrors.GetCode(err) != perrors.EUsage {
		t.Errorf("err = %v", err)
	}
}
