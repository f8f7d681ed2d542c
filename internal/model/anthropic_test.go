package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest_SeparatesSystemFromConversation(t *testing.T) {
	messages := []*schema.Message{
		{Role: schema.System, Content: "You are a careful auditor."},
		{Role: schema.User, Content: "Is 'rm -rf /' safe?"},
	}

	body, err := buildRequest("claude-3-5-sonnet", map[string]any{}, messages)
	require.NoError(t, err)
	require.Len(t, body.System, 1)
	require.Equal(t, "You are a careful auditor.", body.System[0].Text)
	require.Len(t, body.Messages, 1)
}

func TestBuildRequest_RejectsEmptyMessages(t *testing.T) {
	_, err := buildRequest("claude-3-5-sonnet", nil, nil)
	require.Error(t, err)
}

func TestBuildRequest_RejectsSystemOnlyMessages(t *testing.T) {
	messages := []*schema.Message{{Role: schema.System, Content: "only system"}}
	_, err := buildRequest("claude-3-5-sonnet", nil, messages)
	require.Error(t, err)
}

func TestBuildRequest_UsesConfiguredMaxTokens(t *testing.T) {
	messages := []*schema.Message{{Role: schema.User, Content: "hi"}}
	body, err := buildRequest("claude-3-5-sonnet", map[string]any{"max_tokens": float64(8192)}, messages)
	require.NoError(t, err)
	require.EqualValues(t, 8192, body.MaxTokens)
}

func TestBuildRequest_DefaultsMaxTokensWhenUnset(t *testing.T) {
	messages := []*schema.Message{{Role: schema.User, Content: "hi"}}
	body, err := buildRequest("claude-3-5-sonnet", nil, messages)
	require.NoError(t, err)
	require.EqualValues(t, defaultMaxTokens, body.MaxTokens)
}
