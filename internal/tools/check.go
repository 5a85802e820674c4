package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// CheckTool handles the patch_check MCP tool: the consistency checker on
// the stored documents, with no application step.
type CheckTool struct {
	open Opener
}

// NewCheckTool creates a CheckTool.
func NewCheckTool(open Opener) *CheckTool {
	return &CheckTool{open: open}
}

// Definition returns the MCP tool definition for registration.
func (t *CheckTool) Definition() mcp.Tool {
	return mcp.NewTool("patch_check",
		mcp.WithDescription(
			"Verify that the stored documents reflect the patch sets: every anchor gone, every replacement present, "+
				"and every declared link (a value that must read the same in several documents) consistent. "+
				"Read-only.",
		),
		mcp.WithString("patch_sets",
			mcp.Required(),
			mcp.Description(patchSetsDescription),
		),
	)
}

// Handle processes the patch_check tool call.
func (t *CheckTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refs := parseRefs(req.GetString("patch_sets", ""))
	if len(refs) == 0 {
		return mcp.NewToolResultError("'patch_sets' is required"), nil
	}

	w, err := t.open()
	if err != nil {
		return errorResult(err), nil
	}
	defer func() { _ = w.Close() }()

	rep, err := w.Check(refs)
	if err != nil {
		return errorResult(err), nil
	}
	return reportResult(rep, nil), nil
}
