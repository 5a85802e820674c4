package patch

import (
	"os"
	"path/filepath"
	"testing"

	perrors "github.com/HendryAvila/specpatch/internal/errors"
)

const yamlSet = `name: tasks-revisions
version: "1"
vars:
  stage: tasks
patches:
  - id: broker-config
    document: tasks.md
    anchor: "- File: kadi-broker config (location TBD)"
    replacement: "- File: kadi-broker/config/mcp-upstreams.json"
  - id: drop-worktree-task
    document: tasks.md
    kind: delete-block
    anchor: "- [ ] 1.3 Set up git worktree management utilities"
    until: "\n- [ ] "
  - id: phase-count
    document: tasks.md
    anchor: "## Phase 1: Project Setup and Configuration (3 tasks)"
    replacement: "## Phase 1: Project Setup and Configuration (2 tasks)"
    depends_on: [drop-worktree-task]
links:
  - id: broker-path
    documents: [tasks.md, design.md]
    prefix: "- File: kadi-broker/"
    suffix: "\n"
`

const cueSet = `
name: "design-corrections"
patches: [
	{
		id:          "structure"
		document:    "design.md"
		anchor:      "AGENTS/"
		replacement: "SD/"
	},
	{
		id:          "shadow"
		document:    "design.md"
		kind:        "insert-after"
		anchor:      "### Shadow Agents"
		replacement: "\nEach shadow agent pushes to its own remote.\n"
		until:       "\n### "
		depends_on: ["structure"]
	},
]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// --- Format detection ---

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"set.yaml": FormatYAML,
		"set.YML":  FormatYAML,
		"set.json": FormatJSON,
		"set.cue":  FormatCUE,
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		if err != nil || got != want {
			t.Errorf("FormatFromPath(%q) = %q, %v; want %q", path, got, err, want)
		}
	}
	if _, err := FormatFromPath("set.toml"); err == nil {
		t.Error("unsupported extension should fail")
	}
}

// --- YAML ---

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "revisions.yaml", yamlSet)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "tasks-revisions" || s.Version != "1" {
		t.Errorf("name/version = %q/%q", s.Name, s.Version)
	}
	if len(s.Patches) != 3 {
		t.Fatalf("patches = %d, want 3", len(s.Patches))
	}
	if s.Patches[1].Kind != KindDeleteBlock || s.Patches[1].Until != "\n- [ ] " {
		t.Errorf("delete-block patch decoded as %+v", s.Patches[1])
	}
	if s.Patches[2].DependsOn[0] != "drop-worktree-task" {
		t.Errorf("depends_on = %v", s.Patches[2].DependsOn)
	}
	if s.Vars["stage"] != "tasks" {
		t.Errorf("vars = %v", s.Vars)
	}
	if len(s.Links) != 1 || s.Links[0].Suffix != "\n" {
		t.Errorf("links = %+v", s.Links)
	}
	if s.Source != path {
		t.Errorf("Source = %q, want %q", s.Source, path)
	}
}

func TestLoad_YAMLUnknownFieldIsInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "typo.yaml", `patches:
  - id: a
    document: d.md
    anchor: x
    replacment: y
`)
	_, err := Load(path)
	wantCode(t, err, perrors.EInvalidPatchSet)
}

func TestLoad_NameDefaultsToFileName(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bot-files.json",
		`{"patches": [{"id": "a", "document": "d.md", "anchor": "x", "replacement": "y"}]}`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "bot-files" {
		t.Errorf("Name = %q, want bot-files", s.Name)
	}
}

func TestLoad_ValidatesOrdering(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", `patches:
  - {id: b, document: d.md, anchor: "bar baz", replacement: q, depends_on: [a]}
  - {id: a, document: d.md, anchor: foo, replacement: bar}
`)
	_, err := Load(path)
	wantCode(t, err, perrors.EOrderingViolation)
}

func TestLoad_MissingFileIsStoreError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	wantCode(t, err, perrors.EDocumentStore)
}

// --- CUE ---

func TestLoad_CUE(t *testing.T) {
	path := writeFile(t, t.TempDir(), "corrections.cue", cueSet)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "design-corrections" {
		t.Errorf("Name = %q", s.Name)
	}
	if len(s.Patches) != 2 {
		t.Fatalf("patches = %d, want 2", len(s.Patches))
	}
	if s.Patches[1].Kind != KindInsertAfter || s.Patches[1].Until != "\n### " {
		t.Errorf("insert-after patch decoded as %+v", s.Patches[1])
	}
}

func TestLoad_CUESchemaRejectsUnknownKind(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", `patches: [{id: "a", document: "d.md", anchor: "x", kind: "append"}]`)
	_, err := Load(path)
	wantCode(t, err, perrors.EInvalidPatchSet)
}

func TestLoad_CUESchemaRejectsUnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", `patches: [{id: "a", document: "d.md", anchor: "x", replacment: "y"}]`)
	_, err := Load(path)
	wantCode(t, err, perrors.EInvalidPatchSet)
}
