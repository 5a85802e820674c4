package main

import (
	"encoding/json"
	"io"

	perrors "github.com/HendryAvila/specpatch/internal/errors"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return perrors.Wrap(perrors.EInternal, "encoding JSON", err)
	}
	return nil
}
