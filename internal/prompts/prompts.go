// Package prompts implements MCP prompt handlers that guide the host
// through the plan/apply workflow.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the patch-review MCP prompt: preview a run and
// decide whether it is safe to apply.
type ReviewPrompt struct{}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("patch-review",
		mcp.WithPromptDescription(
			"Preview patch sets with patch_plan, explain every outcome and diff, "+
				"and apply only after confirmation.",
		),
		mcp.WithArgument("patch_sets",
			mcp.ArgumentDescription("Comma-separated patch set files"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the patch-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sets := strings.TrimSpace(req.Params.Arguments["patch_sets"])
	if sets == "" {
		return nil, fmt.Errorf("argument 'patch_sets' is required")
	}
	return &mcp.GetPromptResult{
		Description: "Review a patch run",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					fmt.Sprintf("Please run `patch_plan` with patch_sets=%q.\n\n", sets) +
						"Then:\n" +
						"1. Summarize the outcome of every patch\n" +
						"2. Show the diff of each document that would change\n" +
						"3. For not-found or ambiguous patches, read the document and propose a corrected anchor\n" +
						"4. Ask me before calling `patch_apply`",
				),
			},
		},
	}, nil
}

// DriftPrompt handles the patch-drift MCP prompt: repair anchors that no
// longer match their documents.
type DriftPrompt struct{}

// NewDriftPrompt creates a DriftPrompt.
func NewDriftPrompt() *DriftPrompt {
	return &DriftPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *DriftPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("patch-drift",
		mcp.WithPromptDescription(
			"Investigate patches whose anchor and replacement are both missing and propose fixes to the patch set.",
		),
		mcp.WithArgument("patch_sets",
			mcp.ArgumentDescription("Comma-separated patch set files"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the patch-drift prompt request.
func (p *DriftPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sets := strings.TrimSpace(req.Params.Arguments["patch_sets"])
	if sets == "" {
		return nil, fmt.Errorf("argument 'patch_sets' is required")
	}
	return &mcp.GetPromptResult{
		Description: "Repair drifted patches",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					fmt.Sprintf("Please run `patch_check` with patch_sets=%q.\n\n", sets) +
						"For every not-found patch:\n" +
						"1. Open the target document and find the passage the anchor was written for\n" +
						"2. Tell me whether it was edited by hand, moved, or removed\n" +
						"3. Propose the smallest change to the patch set that makes the anchor unique and current\n" +
						"Do not edit the documents directly.",
				),
			},
		},
	}, nil
}
