// Package model defines the Planner/Executor/Auditor chat-model interface
// (D2) and the concrete bindings behind it. All three roles share one
// Go interface so a new provider only needs one adapter implementation;
// messages pass through as eino's schema.Message, mirroring how the
// teacher's internal/session/loop.go builds completion requests
// (buildCompletionRequest, convertMessage) without pulling in the rest of
// its multi-provider registry.
package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ToolCallProposal is one tool invocation the Executor wants to make.
type ToolCallProposal struct {
	ID        string
	ToolName  string
	Arguments string // JSON-encoded arguments
}

// Completion is one model turn: either free text (a finished turn, or the
// Planner's/Auditor's whole answer) or a set of proposed tool calls (the
// Executor mid-loop).
type Completion struct {
	Content   string
	ToolCalls []ToolCallProposal
	Done      bool // true when the model signaled end_turn/stop with no further tool calls
}

// Adapter is the uniform interface the orchestrator drives the Planner,
// Executor, and Auditor model roles through. A single concrete adapter
// (AnthropicAdapter) backs all three roles; which model ID each role uses
// is a matter of configuration, not of interface.
type Adapter interface {
	Complete(ctx context.Context, modelID string, params map[string]any, messages []*schema.Message) (*Completion, error)
}

// Role names the three model roles the spec assigns distinct
// configuration (model ID + params) to, even though they share one Adapter
// interface.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleExecutor Role = "executor"
	RoleAuditor  Role = "auditor"
)

// Binding pairs a Role with the model ID and parameters configured for it.
type Binding struct {
	Role    Role
	ModelID string
	Params  map[string]any
}
