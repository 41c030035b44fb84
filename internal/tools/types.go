// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"github.com/muninnlabs/muninn/internal/engine"
)

// ToolContext carries the shared dependencies for tool handlers
type ToolContext struct {
	Engine *engine.Engine
}

// NewToolContext creates a tool context
func NewToolContext(eng *engine.Engine) *ToolContext {
	return &ToolContext{Engine: eng}
}
