// Package resources implements MCP resource handlers for specpatch.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (specpatch://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/specpatch/internal/tools"
)

// URIs served by Handler.
const (
	HistoryURI = "specpatch://journal/recent"
	ConfigURI  = "specpatch://project/config"
)

// Handler manages specpatch resource endpoints.
type Handler struct {
	open tools.Opener
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(open tools.Opener) *Handler {
	return &Handler{open: open}
}

// HistoryResource returns the MCP resource definition for recent runs.
func (h *Handler) HistoryResource() mcp.Resource {
	return mcp.NewResource(
		HistoryURI,
		"Recent patch runs",
		mcp.WithResourceDescription("The last journaled patch runs with their outcome counts"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleHistory returns the ten most recent runs as JSON.
func (h *Handler) HandleHistory(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	w, err := h.open()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	defer func() { _ = w.Close() }()

	runs, err := w.History(10)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, runs)
}

// ConfigResource returns the MCP resource definition for the resolved
// project configuration.
func (h *Handler) ConfigResource() mcp.Resource {
	return mcp.NewResource(
		ConfigURI,
		"specpatch configuration",
		mcp.WithResourceDescription("Resolved project configuration: config file, document root, journal location and vars"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleConfig returns the resolved configuration as JSON.
func (h *Handler) HandleConfig(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	w, err := h.open()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	defer func() { _ = w.Close() }()

	cfg := w.Config()
	return jsonResource(req.Params.URI, map[string]any{
		"config":        cfg.Path,
		"document_root": cfg.DocumentRoot(),
		"journal_dir":   cfg.JournalDir(),
		"log_level":     cfg.Log.Level,
		"color":         cfg.Color,
		"vars":          cfg.Vars,
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
