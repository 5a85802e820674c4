package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/goccy/go-yaml"

	perrors "github.com/HendryAvila/specpatch/internal/errors"
)

// Format identifies a patch set file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatFromPath infers the file format from its extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported patch set extension %q: want .yaml, .yml, .json or .cue", filepath.Ext(path))
	}
}

// schemaCUE constrains CUE-authored patch sets. Closed, so a misspelled
// field is an error instead of a silently ignored key.
const schemaCUE = `
#Patch: {
	id:           string & !=""
	document:     string & !=""
	kind?:        "replace" | "delete-block" | "insert-after"
	anchor:       string & !=""
	replacement?: string
	until?:       string
	depends_on?: [...string]
	when?:        string
	description?: string
}
#Link: {
	id:        string & !=""
	documents: [string, string, ...string]
	prefix:    string & !=""
	suffix?:   string
}
name?:    string
version?: string
vars?: [string]: string
patches: [#Patch, ...#Patch]
links?: [...#Link]
`

// Load reads a patch set file and validates it. The format follows the
// file extension.
func Load(path string) (*Set, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.EUsage, fmt.Sprintf("loading %s", path), err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.EDocumentStore, fmt.Sprintf("reading patch set %s", path), err)
	}
	s, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse decodes a patch set without validating it. name is used for error
// messages and as the set's Source.
func Parse(data []byte, format Format, name string) (*Set, error) {
	var s Set
	switch format {
	case FormatYAML, FormatJSON:
		// JSON is a subset of YAML; one decoder serves both.
		if err := yaml.UnmarshalWithOptions(data, &s, yaml.DisallowUnknownField()); err != nil {
			return nil, perrors.Wrap(perrors.EInvalidPatchSet, fmt.Sprintf("parsing %s", name), err)
		}
	case FormatCUE:
		if err := decodeCUE(data, name, &s); err != nil {
			return nil, perrors.Wrap(perrors.EInvalidPatchSet, fmt.Sprintf("parsing %s", name), err)
		}
	default:
		return nil, perrors.Newf(perrors.EUsage, "unknown patch set format %q", format)
	}
	s.Source = name
	if s.Name == "" && name != "" {
		s.Name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	return &s, nil
}

func decodeCUE(data []byte, name string, s *Set) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString("close({" + schemaCUE + "})")
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling patch set schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename(name))
	if err := value.Err(); err != nil {
		return err
	}
	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return unified.Decode(s)
}
