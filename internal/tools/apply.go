package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ApplyTool handles the patch_apply MCP tool.
type ApplyTool struct {
	open Opener
}

// NewApplyTool creates an ApplyTool.
func NewApplyTool(open Opener) *ApplyTool {
	return &ApplyTool{open: open}
}

// Definition returns the MCP tool definition for registration.
func (t *ApplyTool) Definition() mcp.Tool {
	return mcp.NewTool("patch_apply",
		mcp.WithDescription(
			"Apply patch sets to the project's documents. Each document is written at most once, atomically, "+
				"and only if every patch affecting it succeeded; drifted or ambiguous anchors leave it untouched. "+
				"Re-running a successful set is a no-op. The run is recorded in the journal (see patch_history). "+
				"Call patch_plan first when unsure.",
		),
		mcp.WithString("patch_sets",
			mcp.Required(),
			mcp.Description(patchSetsDescription),
		),
	)
}

// Handle processes the patch_apply tool call.
func (t *ApplyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refs := parseRefs(req.GetString("patch_sets", ""))
	if len(refs) == 0 {
		return mcp.NewToolResultError("'patch_sets' is required"), nil
	}

	w, err := t.open()
	if err != nil {
		return errorResult(err), nil
	}
	defer func() { _ = w.Close() }()

	rep, err := w.Apply(refs)
	if rep == nil {
		return errorResult(err), nil
	}
	return reportResult(rep, err), nil
}
