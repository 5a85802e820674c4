package patch

import (
	"encoding/json"
	"fmt"
	"os"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/goccy/go-yaml"

	perrors "github.com/HendryAvila/specpatch/internal/errors"
)

// ApplyOverlay derives a variant of a set by applying RFC 6902 operations
// to its JSON form, e.g. retargeting every patch to another document:
//
//	[{"op": "replace", "path": "/patches/0/document", "value": "v2/tasks.md"}]
//
// The result is re-validated. The input set is not modified.
func ApplyOverlay(s *Set, ops []byte) (*Set, error) {
	decoded, err := jsonpatch.DecodePatch(ops)
	if err != nil {
		return nil, perrors.Wrap(perrors.EInvalidPatchSet, "decoding overlay", err)
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding patch set %s: %w", s.Label(), err)
	}
	patched, err := decoded.Apply(doc)
	if err != nil {
		return nil, perrors.Wrap(perrors.EInvalidPatchSet, fmt.Sprintf("applying overlay to %s", s.Label()), err)
	}
	var out Set
	if err := yaml.UnmarshalWithOptions(patched, &out, yaml.DisallowUnknownField()); err != nil {
		return nil, perrors.Wrap(perrors.EInvalidPatchSet, "decoding overlaid patch set", err)
	}
	out.Source = s.Source
	if err := Validate(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadOverlay reads an overlay file. YAML overlays are converted to JSON.
func LoadOverlay(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.EDocumentStore, fmt.Sprintf("reading overlay %s", path), err)
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.EUsage, fmt.Sprintf("loading overlay %s", path), err)
	}
	switch format {
	case FormatJSON:
		return data, nil
	case FormatYAML:
		out, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, perrors.Wrap(perrors.EInvalidPatchSet, fmt.Sprintf("parsing overlay %s", path), err)
		}
		return out, nil
	default:
		return nil, perrors.Newf(perrors.EUsage, "overlay %s: only .json and .yaml overlays are supported", path)
	}
}
