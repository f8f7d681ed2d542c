// Package tool provides the two underlying tool implementations the proxy
// mediates: shell_tool and file_content_tool. Dispatch over tool kind is a
// closed sum type per the design notes, rather than dynamic lookup by name.
package tool

import "context"

// Kind identifies one of the two underlying tools the proxy can wrap.
type Kind string

const (
	KindShell Kind = "shell_tool"
	KindFile  Kind = "file_content_tool"
)

// Context carries the information an underlying tool needs beyond its
// input parameters: where it runs and how to name any spill artifacts it
// produces indirectly (the proxy, not the tool, handles spill itself).
type Context struct {
	SessionHash string
	WorkDir     string
}

// Result is the raw output of an underlying tool, before the proxy's
// large-output spill handling or shell-result interpretation (§4.4 steps
// 7-8) is applied.
type Result struct {
	Output   string
	Metadata map[string]any
}

// Tool is the uniform interface the proxy drives for either kind.
type Tool interface {
	Kind() Kind
	Execute(ctx context.Context, input map[string]any, toolCtx *Context) (*Result, error)
}
