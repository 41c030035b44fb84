// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/muninnlabs/muninn/internal/engine"
)

// NewRememberTool creates the muninn_remember tool definition
func NewRememberTool() mcp.Tool {
	return mcp.NewTool("muninn_remember",
		mcp.WithDescription("Feed a conversation turn into memory. Turns are buffered; set flush=true at a natural boundary to run extraction over the buffered turns in the background."),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The turn content to remember"),
		),
		mcp.WithString("role",
			mcp.Description("Speaker role: 'user' or 'assistant'. Default: 'user'"),
		),
		mcp.WithBoolean("flush",
			mcp.Description("Flush the buffered turns into the extraction queue"),
		),
	)
}

// RememberHandler handles the muninn_remember tool
func RememberHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := request.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		role := request.GetString("role", "user")
		flush := request.GetBool("flush", false)

		ctx.Engine.ProcessTurn(engine.Turn{Role: role, Content: content})
		if flush {
			ctx.Engine.FlushTurns()
			return mcp.NewToolResultText("Turn buffered and extraction queued."), nil
		}
		return mcp.NewToolResultText("Turn buffered."), nil
	}
}

// NewFlushTool creates the muninn_flush tool definition
func NewFlushTool() mcp.Tool {
	return mcp.NewTool("muninn_flush",
		mcp.WithDescription("Flush buffered access-tracking counts to disk. Call from a shutdown or compaction hook."),
	)
}

// FlushHandler handles the muninn_flush tool
func FlushHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		flushed := ctx.Engine.FlushAccessTracking()
		return mcp.NewToolResultText(fmt.Sprintf("Flushed access tracking for %d records.", flushed)), nil
	}
}

// NewStatusTool creates the muninn_status tool definition
func NewStatusTool() mcp.Tool {
	return mcp.NewTool("muninn_status",
		mcp.WithDescription("Report engine health: index reachability, extraction queue depth, pending access entries, and the store's status version."),
	)
}

// StatusHandler handles the muninn_status tool
func StatusHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := ctx.Engine.CurrentStatus()
		text := fmt.Sprintf(
			"index: %s\nqueue depth: %d\npending access entries: %d\nextractions: %d\nstatus version: %d",
			st.IndexState, st.QueueDepth, st.PendingAccess, st.Extractions, st.StatusVersion,
		)
		return mcp.NewToolResultText(text), nil
	}
}
