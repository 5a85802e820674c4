package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// PlanTool handles the patch_plan MCP tool: a dry run that reports what
// apply would do without writing any document.
type PlanTool struct {
	open Opener
}

// NewPlanTool creates a PlanTool.
func NewPlanTool(open Opener) *PlanTool {
	return &PlanTool{open: open}
}

// Definition returns the MCP tool definition for registration.
func (t *PlanTool) Definition() mcp.Tool {
	return mcp.NewTool("patch_plan",
		mcp.WithDescription(
			"Preview a patch run. Applies the patch sets to in-memory copies of the target documents "+
				"and returns every patch outcome (applied, already-applied, skipped, not-found, ambiguous, failed), "+
				"the documents that would be committed or blocked, and a line diff per document. Writes nothing.",
		),
		mcp.WithString("patch_sets",
			mcp.Required(),
			mcp.Description(patchSetsDescription),
		),
	)
}

// Handle processes the patch_plan tool call.
func (t *PlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refs := parseRefs(req.GetString("patch_sets", ""))
	if len(refs) == 0 {
		return mcp.NewToolResultError("'patch_sets' is required"), nil
	}

	w, err := t.open()
	if err != nil {
		return errorResult(err), nil
	}
	defer func() { _ = w.Close() }()

	rep, err := w.Plan(refs)
	if rep == nil {
		return errorResult(err), nil
	}
	return reportResult(rep, err), nil
}
