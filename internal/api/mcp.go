package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/radarhq/radar/internal/flow"
	"github.com/radarhq/radar/internal/interpret"
	"github.com/radarhq/radar/internal/radar"
	"github.com/radarhq/radar/internal/storage"
)

const mcpInterpretTimeout = 30 * time.Second

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store       *storage.Store
	Interpreter flow.Interpreter // optional; interpret_topic errors when nil
}

// NewMCPServer creates an MCP server exposing radar management and
// one-shot topic interpretation to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"radar",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("radar: topic monitoring. Create and manage radars, interpret free-text monitoring requests."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_radar",
			mcp.WithDescription("Create a radar tracking a topic on a monitoring cadence."),
			mcp.WithString("topic", mcp.Description("Topic to track"), mcp.Required()),
			mcp.WithString("cadence", mcp.Description("One of: hourly, daily, weekly, monthly"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Optional longer description")),
		),
		mcpCreateRadar(deps),
	)

	s.AddTool(
		mcp.NewTool("list_radars",
			mcp.WithDescription("List existing radars, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListRadars(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_radar",
			mcp.WithDescription("Delete a radar by id."),
			mcp.WithString("id", mcp.Description("Radar id"), mcp.Required()),
		),
		mcpDeleteRadar(deps),
	)

	s.AddTool(
		mcp.NewTool("interpret_topic",
			mcp.WithDescription("Interpret a free-text monitoring request into a structured proposal (topic, cadence, rationale) without creating anything."),
			mcp.WithString("text", mcp.Description("Free-text request, e.g. 'keep me posted on AI chip startups'"), mcp.Required()),
		),
		mcpInterpretTopic(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"radar://radars",
			"Radars",
			mcp.WithResourceDescription("All radars as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRadars(deps),
	)

	return s
}

func mcpCreateRadar(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topic, err := req.RequireString("topic")
		if err != nil {
			return mcpError("topic is required"), nil
		}
		cadence, err := req.RequireString("cadence")
		if err != nil {
			return mcpError("cadence is required"), nil
		}
		if !radar.ValidCadence(cadence) {
			return mcpError(fmt.Sprintf("unknown cadence %q", cadence)), nil
		}

		now := time.Now().UTC()
		created := radar.Radar{
			ID:          uuid.New().String(),
			Topic:       topic,
			Description: req.GetString("description", ""),
			Cadence:     cadence,
			Status:      radar.StatusActive,
			CreatedAt:   now,
			NextCheckAt: now.Add(radar.CadenceInterval(cadence)),
		}
		if err := deps.Store.SaveRadar(created); err != nil {
			return mcpError(fmt.Sprintf("failed to save radar: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created radar %s tracking %q (%s)", created.ID, created.Topic, created.Cadence)), nil
	}
}

func mcpListRadars(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}

		radars, err := deps.Store.ListRadars(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list radars: %v", err)), nil
		}
		if radars == nil {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(radars)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal radars: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeleteRadar(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		err = deps.Store.DeleteRadar(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no radar %s", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to delete radar: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted radar %s", id)), nil
	}
}

func mcpInterpretTopic(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Interpreter == nil {
			return mcpError("interpretation service not configured"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		ctx, cancel := context.WithTimeout(ctx, mcpInterpretTimeout)
		defer cancel()

		final, err := awaitInterpretation(ctx, deps.Interpreter, text)
		if err != nil {
			return mcpError(fmt.Sprintf("interpretation failed: %v", err)), nil
		}

		b, err := json.Marshal(final)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal interpretation: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// awaitInterpretation runs one interpretation call to completion,
// discarding partials.
func awaitInterpretation(ctx context.Context, ip flow.Interpreter, text string) (interpret.Interpretation, error) {
	call, err := ip.Interpret(ctx, text)
	if err != nil {
		return interpret.Interpretation{}, err
	}

	partial := call.Partial()
	for {
		select {
		case <-ctx.Done():
			call.Cancel()
			return interpret.Interpretation{}, ctx.Err()
		case _, ok := <-partial:
			if !ok {
				partial = nil
			}
		case res := <-call.Final():
			return res.Interpretation, res.Err
		}
	}
}

func mcpResourceRadars(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		radars, err := deps.Store.ListRadars(100)
		if err != nil {
			return nil, fmt.Errorf("failed to list radars: %w", err)
		}

		b, err := json.Marshal(radars)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal radars: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
