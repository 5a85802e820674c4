// Package tools implements the MCP tool handlers for specpatch.
//
// Each tool receives its dependencies via its struct and exposes a
// Definition for registration and a Handle compatible with mcp-go's
// CallToolRequest signature. One file per tool.
package tools

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specpatch/internal/config"
	perrors "github.com/HendryAvila/specpatch/internal/errors"
	"github.com/HendryAvila/specpatch/internal/report"
	"github.com/HendryAvila/specpatch/internal/workspace"
)

// Opener opens the workspace of the current project. Tools call it once
// per request so configuration edits take effect without a restart.
type Opener func() (*workspace.Workspace, error)

// ProjectOpener returns an Opener that discovers the project from the
// working directory.
func ProjectOpener(log *slog.Logger) Opener {
	return func() (*workspace.Workspace, error) {
		root, err := findProjectRoot()
		if err != nil {
			return nil, err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return nil, err
		}
		return workspace.Open(cfg, log), nil
	}
}

// findProjectRoot walks up from the current working directory looking
// for a .specpatch.yaml. If none is found, returns cwd.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	if path, ok := config.Find(dir); ok {
		return filepath.Dir(path), nil
	}
	return dir, nil
}

// parseRefs splits a comma- or newline-separated list of patch set refs.
func parseRefs(input string) []workspace.Ref {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	var args []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			args = append(args, f)
		}
	}
	return workspace.ParseRefs(args)
}

// errorResult renders a coded error the same way the CLI prints it.
func errorResult(err error) *mcp.CallToolResult {
	var buf bytes.Buffer
	perrors.Print(&buf, err)
	return mcp.NewToolResultError(strings.TrimSpace(buf.String()))
}

// reportResult returns the markdown report, flagged as an error when the
// run did not succeed.
func reportResult(rep *report.Report, runErr error) *mcp.CallToolResult {
	text := report.Markdown(rep)
	if runErr != nil {
		var buf bytes.Buffer
		perrors.Print(&buf, runErr)
		text += "\n" + buf.String()
	}
	if runErr != nil || !rep.Success() {
		return mcp.NewToolResultError(text)
	}
	return mcp.NewToolResultText(text)
}

const patchSetsDescription = "Comma-separated patch set files (.yaml, .json or .cue), relative to the project root. " +
	"Append '+overlay.json' to a file to apply RFC 6902 overlays before validation. " +
	"Several sets form a chain applied in order."
