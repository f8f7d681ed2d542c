package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileContentTool_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileContentTool()
	toolCtx := &Context{WorkDir: dir}

	_, err := tool.Execute(context.Background(), map[string]any{
		"path":    "notes.txt",
		"content": "hello",
	}, toolCtx)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	res, err := tool.Execute(context.Background(), map[string]any{"path": "notes.txt"}, toolCtx)
	require.NoError(t, err)
	require.Equal(t, "hello", res.Output)
}

func TestFileContentTool_MissingPath(t *testing.T) {
	tool := NewFileContentTool()
	_, err := tool.Execute(context.Background(), map[string]any{}, &Context{})
	require.Error(t, err)
}

func TestFileContentTool_WriteOverExistingFileIncludesDiff(t *testing.T) {
	dir := t.TempDir()
	toolCtx := &Context{WorkDir: dir}
	path := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	tool := NewFileContentTool()
	res, err := tool.Execute(context.Background(), map[string]any{
		"path":    "config.txt",
		"content": "line one\nline three\n",
	}, toolCtx)
	require.NoError(t, err)

	diff, ok := res.Metadata["diff"].(string)
	require.True(t, ok)
	require.Contains(t, diff, "-")
	require.Contains(t, diff, "line two")
	require.Contains(t, diff, "+")
	require.Contains(t, diff, "line three")
	require.NotContains(t, diff, "line one")
}

func TestFileContentTool_WriteNewFileDiffsAgainstEmpty(t *testing.T) {
	dir := t.TempDir()
	toolCtx := &Context{WorkDir: dir}

	tool := NewFileContentTool()
	res, err := tool.Execute(context.Background(), map[string]any{
		"path":    "fresh.txt",
		"content": "brand new content\n",
	}, toolCtx)
	require.NoError(t, err)

	diff, ok := res.Metadata["diff"].(string)
	require.True(t, ok)
	require.Contains(t, diff, "+")
	require.Contains(t, diff, "brand new content")
}

func TestLineDiff_NoChangeReturnsPlaceholder(t *testing.T) {
	require.Equal(t, "(no change)", lineDiff("same\n", "same\n"))
}
