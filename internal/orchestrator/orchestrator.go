// Package orchestrator implements the top-level driver (C5, §4.5): the
// initial-plan path for a brand-new session, the resume path for an
// existing one, and the command loop that dispatches execute_recipe /
// execute_single_action / execute_fallback / deny_current_action commands
// against the Executor, routed through the Tool Proxy.
package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/robbiemu/og-supervisor/internal/emitter"
	"github.com/robbiemu/og-supervisor/internal/logging"
	"github.com/robbiemu/og-supervisor/internal/model"
	"github.com/robbiemu/og-supervisor/internal/planparser"
	"github.com/robbiemu/og-supervisor/internal/proxy"
	"github.com/robbiemu/og-supervisor/internal/session"
)

// ExitCode mirrors §7's taxonomy: 0 for normal completion, an unsafe
// verdict, a user denial, or an IPC failure during approval; non-zero for a
// missing query, a planner failure, an unrecoverable executor exception, or
// a malformed/unknown command on the command stream.
type ExitCode int

const (
	ExitNormal           ExitCode = 0
	ExitConfigError      ExitCode = 1
	ExitPlannerFailure   ExitCode = 1
	ExitExecutorFailure  ExitCode = 1
	ExitCommandStreamBad ExitCode = 1
)

// Orchestrator wires one session's Planner/Executor adapters, the Tool
// Proxy, and the event emitter to the command stream.
type Orchestrator struct {
	sess *session.Session
	em   *emitter.Emitter
	px   *proxy.Proxy

	planner       model.Adapter
	plannerModel  model.Binding
	executor      model.Adapter
	executorModel model.Binding

	cmds *bufio.Scanner
}

// New builds an Orchestrator. planner and executor may be the same
// concrete Adapter (e.g. two Bindings against one AnthropicAdapter) or
// different ones; the proxy already owns its own auditor caller.
func New(
	sess *session.Session,
	em *emitter.Emitter,
	px *proxy.Proxy,
	planner model.Adapter,
	plannerModel model.Binding,
	executor model.Adapter,
	executorModel model.Binding,
	cmds *bufio.Scanner,
) *Orchestrator {
	return &Orchestrator{
		sess:          sess,
		em:            em,
		px:            px,
		planner:       planner,
		plannerModel:  plannerModel,
		executor:      executor,
		executorModel: executorModel,
		cmds:          cmds,
	}
}

// RunNewSession implements §4.5(a), the initial-plan path. query is
// required; an empty query is a configuration error.
func (o *Orchestrator) RunNewSession(ctx context.Context, query string) ExitCode {
	if query == "" {
		_ = o.em.Error("a query is required to start a new session", "orchestrator.RunNewSession")
		return ExitConfigError
	}
	o.sess.SetOriginalQuery(query)

	planText, err := o.runPlanner(ctx, query)
	if err != nil {
		_ = o.em.Error(err.Error(), "orchestrator.RunNewSession")
		_ = o.em.Unsafe("Agent could not form a clear initial plan", err.Error())
		return ExitPlannerFailure
	}

	steps, fallback := planparser.Parse(planText)
	if len(steps) == 0 {
		_ = o.em.Error("planner produced no usable steps", "orchestrator.RunNewSession")
		_ = o.em.Unsafe("Agent could not form a clear initial plan", "the parsed plan was empty")
		return ExitPlannerFailure
	}

	firstAction, err := firstSubcommand(steps[0])
	if err != nil {
		_ = o.em.Error(err.Error(), "orchestrator.RunNewSession")
		_ = o.em.Unsafe("Agent could not form a clear initial plan", err.Error())
		return ExitPlannerFailure
	}

	verdict := o.px.AuditFirstAction(ctx, firstAction)
	if !verdict.Safe {
		_ = o.em.Unsafe(verdict.Reason, verdict.Explanation)
		return ExitNormal
	}

	o.sess.SetPlan(steps, fallback)
	_ = o.em.Plan(query, toRecipeStepViews(steps), toRecipeStepView(fallback))

	return o.CommandLoop(ctx)
}

// RunResumedSession implements §4.5(b): the session already has persisted
// state, so the initial-plan path is skipped entirely.
func (o *Orchestrator) RunResumedSession(ctx context.Context) ExitCode {
	return o.CommandLoop(ctx)
}

func (o *Orchestrator) runPlanner(ctx context.Context, query string) (string, error) {
	messages := plannerMessages(query)
	completion, err := o.planner.Complete(ctx, o.plannerModel.ModelID, o.plannerModel.Params, messages)
	if err != nil {
		return "", fmt.Errorf("planner: %w", err)
	}
	return completion.Content, nil
}

func firstSubcommand(step session.RecipeStep) (string, error) {
	if step.Tool != session.ToolShell {
		return step.Action, nil
	}
	lines := strings.Split(strings.TrimSpace(step.Action), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", errors.New("first recipe step has no action text")
	}
	return strings.TrimSpace(lines[0]), nil
}

// CommandLoop implements §4.5's command dispatch table, reading one JSON
// command per line until EOF or a terminating command/error.
func (o *Orchestrator) CommandLoop(ctx context.Context) ExitCode {
	for o.cmds.Scan() {
		line := o.cmds.Bytes()

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &envelope); err != nil {
			_ = o.em.Error(fmt.Sprintf("malformed command: %v", err), "orchestrator.CommandLoop")
			_ = o.em.DenyCurrentAction("Malformed command could not be parsed")
			return ExitCommandStreamBad
		}

		switch envelope.Type {
		case "execute_recipe":
			o.sess.SetRecipePreapproved(true)
			o.sess.SetSingleStepPlanStatus(false)
			o.sess.SetDeviationOccurred(false)
			o.sess.ResetCursor()
			if code, done := o.driveAndSummarize(ctx, recipeDirective); done {
				return code
			}

		case "execute_single_action":
			o.sess.SetRecipePreapproved(false)
			o.sess.SetSingleStepPlanStatus(true)
			o.sess.SetDeviationOccurred(false)
			o.sess.ResetCursor()
			if code, done := o.driveAndSummarize(ctx, singleActionDirective); done {
				return code
			}

		case "execute_fallback":
			o.sess.SetRecipePreapproved(false)
			o.sess.SetSingleStepPlanStatus(false)
			o.sess.SetDeviationOccurred(true)
			if code, done := o.driveAndSummarize(ctx, fallbackDirective); done {
				return code
			}

		case "user_approval_response":
			// Approval replies are consumed directly by the proxy's
			// ApprovalReader mid-invocation; seeing one here means it
			// arrived out of band. Pass through and keep reading.
			continue

		case "deny_current_action":
			_ = o.em.FinalSummary("Run cancelled by front-end", "Cancelled", emitter.SummaryCancelled, "")
			return ExitNormal

		default:
			_ = o.em.Error(fmt.Sprintf("unknown command type %q", envelope.Type), "orchestrator.CommandLoop")
			return ExitCommandStreamBad
		}
	}

	if err := o.cmds.Err(); err != nil {
		_ = o.em.Error(err.Error(), "orchestrator.CommandLoop")
		return ExitCommandStreamBad
	}
	return ExitNormal
}

// driveAndSummarize runs the executor to completion for one directive and
// emits the resulting final_summary. The bool return indicates whether the
// command loop must stop (true) or may keep reading further commands.
func (o *Orchestrator) driveAndSummarize(ctx context.Context, directive string) (ExitCode, bool) {
	summary, nutshell, err := o.driveExecutor(ctx, directive)
	switch {
	case errors.Is(err, proxy.Terminated):
		// The proxy already emitted the deterministic terminating event
		// (unsafe, cancelled result, or IPC-failure error) plus
		// deny_current_action, and for a user denial the cancelled
		// final_summary; nothing further to summarize.
		return ExitNormal, true
	case err != nil:
		logging.Error().Err(err).Msg("executor run failed")
		_ = o.em.Error(err.Error(), "orchestrator.driveExecutor")
		_ = o.em.FinalSummary("The run could not complete", "Failed", emitter.SummaryCancelled, err.Error())
		return ExitExecutorFailure, true
	default:
		_ = o.em.FinalSummary(summary, nutshell, emitter.SummarySuccess, "")
		return ExitNormal, false
	}
}

