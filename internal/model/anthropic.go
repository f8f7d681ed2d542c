package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/schema"
)

// defaultMaxTokens is used when a role's params map does not supply one.
const defaultMaxTokens = 4096

// messagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake (grounded on the anthropic adapter pattern in
// the goa-ai example repo).
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicAdapter is the concrete default Adapter binding: the supervisor
// routes every Planner/Executor/Auditor call through it, whatever the
// configured model ID, and passes that ID to the Messages API unchanged.
type AnthropicAdapter struct {
	client messagesClient
}

// NewAnthropicAdapter builds an adapter from an API key (reads
// ANTHROPIC_API_KEY-compatible defaults via the SDK's own option handling
// when apiKey is empty).
func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := sdk.NewClient(opts...)
	return &AnthropicAdapter{client: &client.Messages}
}

func (a *AnthropicAdapter) Complete(ctx context.Context, modelID string, params map[string]any, messages []*schema.Message) (*Completion, error) {
	body, err := buildRequest(modelID, params, messages)
	if err != nil {
		return nil, err
	}

	msg, err := a.client.New(ctx, *body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateMessage(msg)
}

func buildRequest(modelID string, params map[string]any, messages []*schema.Message) (*sdk.MessageNewParams, error) {
	if len(messages) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}

	var system []sdk.TextBlockParam
	var conversation []sdk.MessageParam
	for _, m := range messages {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case schema.User:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case schema.Assistant:
			blocks := assistantBlocks(m)
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		case schema.Tool:
			isError := false
			conversation = append(conversation, sdk.NewUserMessage(
				sdk.NewToolResultBlock(m.ToolCallID, m.Content, isError),
			))
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}

	maxTokens := defaultMaxTokens
	if v, ok := params["max_tokens"].(float64); ok && v > 0 {
		maxTokens = int(v)
	}

	body := &sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		body.System = system
	}
	if t, ok := params["temperature"].(float64); ok {
		body.Temperature = sdk.Float(t)
	}
	return body, nil
}

func assistantBlocks(m *schema.Message) []sdk.ContentBlockParamUnion {
	var blocks []sdk.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, sdk.NewTextBlock(m.Content))
	}
	for _, tc := range m.ToolCalls {
		var input any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Function.Name))
	}
	return blocks
}

func translateMessage(msg *sdk.Message) (*Completion, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}

	completion := &Completion{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			completion.Content += block.Text
		case "tool_use":
			payload, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: marshaling tool_use input: %w", err)
			}
			completion.ToolCalls = append(completion.ToolCalls, ToolCallProposal{
				ID:        block.ID,
				ToolName:  block.Name,
				Arguments: string(payload),
			})
		}
	}
	completion.Done = len(completion.ToolCalls) == 0
	return completion, nil
}
