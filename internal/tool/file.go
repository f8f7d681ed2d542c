package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileContentTool reads or writes a file relative to the run's working
// directory. A `content` field in the input selects write mode; its absence
// selects read mode.
type FileContentTool struct{}

func NewFileContentTool() *FileContentTool { return &FileContentTool{} }

func (t *FileContentTool) Kind() Kind { return KindFile }

func (t *FileContentTool) Execute(ctx context.Context, input map[string]any, toolCtx *Context) (*Result, error) {
	path, _ := input["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("file_content_tool: missing path")
	}
	resolved := path
	if !filepath.IsAbs(resolved) && toolCtx != nil && toolCtx.WorkDir != "" {
		resolved = filepath.Join(toolCtx.WorkDir, path)
	}

	if content, ok := input["content"].(string); ok {
		before, _ := os.ReadFile(resolved) // absent/unreadable before-state just diffs against empty

		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("file_content_tool: write %s: %w", path, err)
		}

		diff := lineDiff(string(before), content)
		return &Result{
			Output: fmt.Sprintf("Wrote %d bytes to %s\n%s", len(content), path, diff),
			Metadata: map[string]any{
				"path":  path,
				"bytes": len(content),
				"diff":  diff,
			},
		}, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("file_content_tool: read %s: %w", path, err)
	}
	return &Result{
		Output:   string(data),
		Metadata: map[string]any{"path": path, "bytes": len(data)},
	}, nil
}

// lineDiff renders a unified-style line diff between before and after,
// mirroring the teacher's recordDiff/computeDiff line-mode pattern
// (DiffLinesToChars → DiffMain → DiffCharsToLines) so tool_content_tool
// writes carry a human-reviewable change summary rather than the raw
// before/after text.
func lineDiff(before, after string) string {
	if before == after {
		return "(no change)"
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out string
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			out += prefixLines("+", d.Text)
		case diffmatchpatch.DiffDelete:
			out += prefixLines("-", d.Text)
		}
	}
	if out == "" {
		return "(no change)"
	}
	return out
}

func prefixLines(prefix, text string) string {
	var out string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			out += prefix + " " + text[start:i] + "\n"
			start = i + 1
		}
	}
	if start < len(text) {
		out += prefix + " " + text[start:] + "\n"
	}
	return out
}
