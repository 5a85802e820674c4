// Package server wires the MCP components and creates the server instance.
//
// This is the composition root: it creates the workspace opener and injects
// it into the tools. No patching logic lives here, only wiring.
package server

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/specpatch/internal/prompts"
	"github.com/HendryAvila/specpatch/internal/resources"
	"github.com/HendryAvila/specpatch/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates the MCP server with every patch tool, prompt and resource
// registered. The project is resolved from the working directory on each
// call.
func New(log *slog.Logger) *server.MCPServer {
	return NewWithOpener(tools.ProjectOpener(log))
}

// NewWithOpener creates the server over an explicit workspace opener.
func NewWithOpener(open tools.Opener) *server.MCPServer {
	s := server.NewMCPServer(
		"specpatch",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	// --- Register tools ---

	for _, t := range toolset(open) {
		s.AddTool(t.Definition(), t.Handle)
	}

	// --- Register prompts ---

	reviewPrompt := prompts.NewReviewPrompt()
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	driftPrompt := prompts.NewDriftPrompt()
	s.AddPrompt(driftPrompt.Definition(), driftPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(open)
	s.AddResource(resourceHandler.HistoryResource(), resourceHandler.HandleHistory)
	s.AddResource(resourceHandler.ConfigResource(), resourceHandler.HandleConfig)

	return s
}

func toolset(open tools.Opener) []tool {
	return []tool{
		tools.NewPlanTool(open),
		tools.NewApplyTool(open),
		tools.NewCheckTool(open),
		tools.NewHistoryTool(open),
	}
}

func serverInstructions() string {
	return `You have access to specpatch, a tool that applies anchored text patches to specification documents.

## WHEN TO USE specpatch

Use specpatch when a revision must touch text in existing spec documents
(requirements, design, tasks) and the edit is described by a patch set file:
each patch names a document, an anchor (the exact text expected today) and
its replacement.

## WORKFLOW

1. patch_plan: preview the run. Nothing is written. Read the outcome of
   every patch and the diffs.
2. patch_apply: apply for real. A document is written only when every
   patch affecting it succeeded. Re-running a successful set is a no-op.
3. patch_check: verify the stored documents against the sets at any time.
4. patch_history: list past runs, or inspect one with run_id.

The patch-review and patch-drift prompts walk through steps 1 and 3.

## OUTCOMES

- applied / already-applied / skipped: fine.
- not-found: the document drifted. Neither the anchor nor the replacement
  is present. Do NOT retry blindly; read the document and fix the anchor.
- ambiguous: the anchor occurs more than once. Make it longer so it is
  unique; the report lists the line numbers.
- failed: the patch's when-condition could not be evaluated.

Documents affected by any failing patch are left untouched.`
}
