// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// NewRecallTool creates the muninn_recall tool definition
func NewRecallTool() mcp.Tool {
	return mcp.NewTool("muninn_recall",
		mcp.WithDescription("Assemble remembered context for the current prompt: relevant memories, known entities, working context, recent summaries, and the top open question. Returns an empty result when nothing relevant is stored."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The user prompt or topic to recall context for"),
		),
		mcp.WithString("session",
			mcp.Description("Opaque session key for diagnostics"),
		),
	)
}

// RecallHandler handles the muninn_recall tool
func RecallHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := request.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		session := request.GetString("session", "")

		result := ctx.Engine.Recall(c, prompt, session)
		if result == "" {
			return mcp.NewToolResultText("No remembered context for this prompt."), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}
