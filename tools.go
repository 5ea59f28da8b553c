package main

// tools.go — MCP tool registration wiring each tool name to its handler.

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanjit/pieuvre-mcp/internal/pieuvre"
)

// Tool argument types.

type fileArg struct {
	File string `json:"file" jsonschema:"path to the .v file"`
}

type positionArg struct {
	File string `json:"file" jsonschema:"path to the .v file"`
	Line int    `json:"line" jsonschema:"0-indexed line number"`
	Col  int    `json:"col" jsonschema:"0-indexed column number"`
}

type queryArg struct {
	File    string `json:"file" jsonschema:"path to the .v file"`
	Pattern string `json:"pattern" jsonschema:"the command text to run against the current prover state"`
}

// registerTools registers all MCP tools on the server. watcher may be nil.
func registerTools(server *mcp.Server, sm *pieuvre.StateManager, watcher *pieuvre.Watcher) {
	// Documents.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_open",
		Description: "Open a .v file. Must be called before any other operations on the file. Each open file gets its own prover.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		res, out, err := pieuvre.DoOpen(sm, args.File)
		if watcher != nil && !res.IsError {
			if werr := watcher.Add(args.File); werr != nil {
				return pieuvre.ErrResult(werr), nil, nil
			}
		}
		return res, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_close",
		Description: "Close a .v file and stop its prover.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		if watcher != nil {
			watcher.Remove(args.File)
		}
		return pieuvre.DoClose(sm, args.File)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_sync",
		Description: "Re-read a .v file from disk after editing it and re-verify it up to the last checked point. Only changed sentences are re-sent to the prover.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoSync(ctx, sm, args.File)
	})

	// Verification.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_check",
		Description: "Verify every sentence that ends at or before a position. Returns the position indicator, the outcomes of the last sentence, and diagnostics.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args positionArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoCheck(ctx, sm, args.File, args.Line, args.Col)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_check_all",
		Description: "Verify the entire file. Returns the position indicator and all diagnostics.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoCheckAll(ctx, sm, args.File)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_step_forward",
		Description: "Verify one more sentence. Returns the outcomes of that sentence.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoStep(ctx, sm, args.File, true)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_step_backward",
		Description: "Undo the last verified sentence.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoStep(ctx, sm, args.File, false)
	})

	// State.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_status",
		Description: "Report how many sentences are verified out of the total.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoStatus(sm, args.File)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_hover",
		Description: "Show what the prover reported for the identifier at a position in a verified sentence.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args positionArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoHover(sm, args.File, args.Line, args.Col)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_diagnostics",
		Description: "List errors and type mismatches in the verified part of the file, and the rejected sentence if any.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoDiagnostics(sm, args.File)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_query",
		Description: "Run a read-only command against the prover state of a file. Does not change what is verified.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args queryArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoQuery(ctx, sm, args.File, args.Pattern)
	})

	// Recovery.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_restart",
		Description: "Restart the prover for a file. Use when the prover is unresponsive or out of sync. All sentences must be verified again.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoRestart(ctx, sm, args.File)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pieuvre_transcript",
		Description: "Show recent raw prover input and output for a file.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return pieuvre.DoTranscript(sm, args.File)
	})
}
