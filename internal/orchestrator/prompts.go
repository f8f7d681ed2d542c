package orchestrator

import (
	"github.com/cloudwego/eino/schema"

	"github.com/robbiemu/og-supervisor/internal/emitter"
	"github.com/robbiemu/og-supervisor/internal/session"
)

const plannerSystemPrompt = "You are a planning assistant. Given a user request, produce an ordered " +
	"sequence of shell command blocks that accomplish it. Separate each block with a line " +
	"containing only [STEP]. Do not explain the plan, only emit the command blocks."

const executorSystemPrompt = "You are the executor for a supervised shell agent. You are given the " +
	"current execution context and a directive. Use the available tools (shell_tool, " +
	"file_content_tool) to carry it out one step at a time. When the directive is fully " +
	"satisfied, reply with a short plain-text summary and make no further tool calls."

const (
	recipeDirective       = "Execute the stored recipe from the beginning, one planned step at a time."
	singleActionDirective = "Execute only the first action of the stored plan."
	fallbackDirective     = "The primary recipe could not be completed as planned. Execute the stored fallback action instead."
)

func plannerMessages(query string) []*schema.Message {
	return []*schema.Message{
		{Role: schema.System, Content: plannerSystemPrompt},
		{Role: schema.User, Content: query},
	}
}

func toRecipeStepViews(steps []session.RecipeStep) []emitter.RecipeStepView {
	views := make([]emitter.RecipeStepView, 0, len(steps))
	for _, s := range steps {
		views = append(views, emitter.RecipeStepView{
			Description:     s.Description,
			ExpectedOutcome: s.ExpectedOutcome,
			Action:          s.Action,
			Tool:            string(s.Tool),
		})
	}
	return views
}

func toRecipeStepView(step *session.RecipeStep) *emitter.RecipeStepView {
	if step == nil {
		return nil
	}
	return &emitter.RecipeStepView{
		Description:     step.Description,
		ExpectedOutcome: step.ExpectedOutcome,
		Action:          step.Action,
		Tool:            string(step.Tool),
	}
}
