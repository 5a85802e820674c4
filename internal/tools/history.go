package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specpatch/internal/journal"
)

// HistoryTool handles the patch_history MCP tool.
type HistoryTool struct {
	open Opener
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(open Opener) *HistoryTool {
	return &HistoryTool{open: open}
}

// Definition returns the MCP tool definition for registration.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("patch_history",
		mcp.WithDescription(
			"List recent patch runs from the journal, newest first. "+
				"Pass run_id to see one run's per-patch outcomes, byte ranges and document checksums.",
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to list (default: 10)"),
		),
		mcp.WithString("run_id",
			mcp.Description("Show a single run in detail"),
		),
	)
}

// Handle processes the patch_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	w, err := t.open()
	if err != nil {
		return errorResult(err), nil
	}
	defer func() { _ = w.Close() }()

	if id := strings.TrimSpace(req.GetString("run_id", "")); id != "" {
		d, err := w.Run(id)
		if err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText(journal.FormatRun(d)), nil
	}

	runs, err := w.History(int(req.GetFloat("limit", 10)))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(journal.FormatHistory(runs)), nil
}
