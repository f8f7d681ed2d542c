package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/robbiemu/og-supervisor/internal/tool"
)

// maxExecutorSteps bounds one execute_* command's agentic loop, mirroring
// the teacher's MaxSteps ceiling in internal/session/loop.go.
const maxExecutorSteps = 50

// driveExecutor implements §4.5's "driving the executor": build a
// continuation prompt from the session's rendered execution context plus
// the command's directive, then repeatedly call the Executor, routing
// every proposed tool call through the Tool Proxy, until the model signals
// completion with no further tool calls or the step ceiling is reached.
// Retries against transient model failures are handled by the
// model.RetryingAdapter decorator wired in at construction, not here.
func (o *Orchestrator) driveExecutor(ctx context.Context, directive string) (summary, nutshell string, err error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: executorSystemPrompt},
		{Role: schema.User, Content: o.sess.GetExecutionContext() + "\n\nDirective: " + directive},
	}

	for step := 0; step < maxExecutorSteps; step++ {
		completion, err := o.executor.Complete(ctx, o.executorModel.ModelID, o.executorModel.Params, messages)
		if err != nil {
			return "", "", fmt.Errorf("executor: %w", err)
		}

		if len(completion.ToolCalls) == 0 {
			return completion.Content, firstLine(completion.Content), nil
		}

		toolCalls := make([]schema.ToolCall, 0, len(completion.ToolCalls))
		for _, tc := range completion.ToolCalls {
			toolCalls = append(toolCalls, schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.ToolName,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, &schema.Message{
			Role:      schema.Assistant,
			Content:   completion.Content,
			ToolCalls: toolCalls,
		})

		for _, tc := range completion.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				input = map[string]any{}
			}

			result, invokeErr := o.px.Invoke(ctx, tool.Kind(tc.ToolName), input)
			if invokeErr != nil {
				// proxy.Terminated: the run must stop. The caller
				// (driveAndSummarize) recognizes this sentinel and skips
				// emitting a competing final_summary.
				return "", "", invokeErr
			}

			toolOutput := "[the action failed; see the execution context for details]"
			if result != nil {
				toolOutput = result.Output
			}
			messages = append(messages, &schema.Message{
				Role:       schema.Tool,
				Content:    toolOutput,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", "", fmt.Errorf("executor: step limit (%d) reached without completion", maxExecutorSteps)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
