// Package proxy implements the Tool Proxy / Mediator (C3, §4.4): the
// per-invocation audit gate, plan-match test, auto-approval test,
// user-approval gate, execution, large-output spill handling, and
// shell-result interpretation that sits between the Executor model and the
// two underlying tools.
package proxy

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/robbiemu/og-supervisor/internal/auditor"
	"github.com/robbiemu/og-supervisor/internal/config"
	"github.com/robbiemu/og-supervisor/internal/emitter"
	"github.com/robbiemu/og-supervisor/internal/model"
	"github.com/robbiemu/og-supervisor/internal/session"
	"github.com/robbiemu/og-supervisor/internal/tool"
)

// ApprovalReader is the blocking stdin-read gate (§4.4 step 5, §5
// "awaiting a line from standard input"). The default implementation reads
// one NDJSON line from the command stream; tests substitute a canned
// sequence of replies.
type ApprovalReader interface {
	ReadApproval() (approved bool, err error)
}

type stdinApprovalReader struct {
	scanner *bufio.Scanner
}

// NewStdinApprovalReader reads approval replies from r, one JSON object
// per line, taking its "approved" field (r is the same scanner the
// orchestrator reads commands from, so a full user_approval_response line
// works as-is; any other field, "type" included, is ignored).
func NewStdinApprovalReader(r *bufio.Scanner) ApprovalReader {
	return &stdinApprovalReader{scanner: r}
}

func (a *stdinApprovalReader) ReadApproval() (bool, error) {
	if !a.scanner.Scan() {
		if err := a.scanner.Err(); err != nil {
			return false, fmt.Errorf("proxy: reading approval: %w", err)
		}
		return false, fmt.Errorf("proxy: EOF waiting for approval")
	}
	var reply struct {
		Approved bool `json:"approved"`
	}
	if err := json.Unmarshal(a.scanner.Bytes(), &reply); err != nil {
		return false, fmt.Errorf("proxy: malformed approval reply: %w", err)
	}
	return reply.Approved, nil
}

// AuditorCaller wraps the model role used for the audit gate: one
// completion call per invocation, translated into a verdict via package
// auditor's markdown/JSON grammar.
type AuditorCaller struct {
	Adapter model.Adapter
	ModelID string
	Params  map[string]any
}

func (a *AuditorCaller) audit(ctx context.Context, actionStr, executionContext string) session.AuditVerdict {
	prompt := buildAuditPrompt(actionStr, executionContext)
	messages := []*schema.Message{
		{Role: schema.System, Content: auditorSystemPrompt},
		{Role: schema.User, Content: prompt},
	}
	completion, err := a.Adapter.Complete(ctx, a.ModelID, a.Params, messages)
	if err != nil {
		return auditor.FailureVerdict(err)
	}
	return auditor.ParseMarkdownResponse(completion.Content)
}

const auditorSystemPrompt = "You are a safety auditor. Given a proposed action and the current " +
	"execution context, decide whether the action is safe to run. Reply either as JSON " +
	"{\"safe\": bool, \"reason\": str, \"explanation\": str} or as a markdown stanza:\n" +
	"# SAFE: <true|false>\n# REASON: <...>\n# EXPLANATION: <...>"

func buildAuditPrompt(actionStr, executionContext string) string {
	var b strings.Builder
	b.WriteString("Proposed action:\n")
	b.WriteString(actionStr)
	b.WriteString("\n\nExecution context:\n")
	b.WriteString(executionContext)
	return b.String()
}

// Proxy is the per-session Tool Proxy. One Proxy instance mediates every
// tool call the Executor attempts during a run.
type Proxy struct {
	tools           map[tool.Kind]tool.Tool
	sess            *session.Session
	em              *emitter.Emitter
	auditorCaller   *AuditorCaller
	approvals       ApprovalReader
	paths           *config.Paths
	outputThreshold int
	workDir         string

	turnMu      sync.Mutex
	turnEntropy *ulid.MonotonicEntropy
}

// New builds a Proxy wired to the session's recipe/audit state, the event
// emitter, the configured auditor model, and the approval-reply source.
func New(
	sess *session.Session,
	em *emitter.Emitter,
	auditorCaller *AuditorCaller,
	approvals ApprovalReader,
	paths *config.Paths,
	outputThreshold int,
	workDir string,
) *Proxy {
	return &Proxy{
		tools: map[tool.Kind]tool.Tool{
			tool.KindShell: tool.NewShellTool(),
			tool.KindFile:  tool.NewFileContentTool(),
		},
		sess:            sess,
		em:              em,
		auditorCaller:   auditorCaller,
		approvals:       approvals,
		paths:           paths,
		outputThreshold: outputThreshold,
		workDir:         workDir,
		turnEntropy:     ulid.Monotonic(rand.Reader, 0),
	}
}

// nextTurnIndex produces a unique, lexicographically increasing turn
// identifier for spill-file naming (§6 "Persisted state": spill files live
// under `<turn_index>_<tool_name>.txt`), via D3 ID generation's ULID
// monotonic source rather than a bare counter — the same uniqueness the
// teacher's part/message IDs rely on (ulid.Make in internal/session/loop.go).
func (p *Proxy) nextTurnIndex() string {
	p.turnMu.Lock()
	defer p.turnMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), p.turnEntropy)
	return id.String()
}

// AuditFirstAction runs the audit gate against a bare action string outside
// of a full Invoke call, for the initial-plan path's "audit the first
// action of the plan only" step (§4.5a step 4) — there is no tool
// invocation yet to mediate, only a safety judgment to make before storing
// the plan at all.
func (p *Proxy) AuditFirstAction(ctx context.Context, actionStr string) session.AuditVerdict {
	return p.auditorCaller.audit(ctx, actionStr, p.sess.GetExecutionContext())
}

// Terminated is returned by Invoke when the run must stop: an unsafe
// verdict, a user denial, or an IPC failure during the approval gate. The
// terminating events are already on the wire (for a user denial they end
// with a cancelled final_summary); the caller (package orchestrator) only
// needs to know to stop driving the executor loop.
var Terminated = fmt.Errorf("proxy: run terminated")

// Invoke runs the full §4.4 per-invocation algorithm for one proposed tool
// call. A nil result with a nil error (and Terminated not wrapped) means
// the underlying tool itself failed (step 6): the failure is already
// recorded in executed_actions and reflected in the session's rendered
// execution context, so the caller can simply continue its loop.
func (p *Proxy) Invoke(ctx context.Context, toolName tool.Kind, input map[string]any) (*tool.Result, error) {
	actionStr := deriveActionStr(input)

	// Step 2: audit gate.
	verdict := p.auditorCaller.audit(ctx, actionStr, p.sess.GetExecutionContext())
	if !verdict.Safe {
		if !p.sess.DeviationOccurred() {
			p.sess.SetDeviationOccurred(true)
		}
		_ = p.em.Unsafe(verdict.Reason, verdict.Explanation)
		_ = p.em.DenyCurrentAction("Action rejected by auditor")
		return nil, Terminated
	}

	// Step 3: plan-match test.
	planned, description := p.planMatch(toolName, actionStr)

	// Step 4: auto-approval test. Auto-approval requires both planned and
	// no deviation so far — once a deviation has occurred, every later
	// action requires individual approval even if it happens to match the
	// still-pending expected step (the cursor does not advance on a
	// deviation, so a later on-plan call would otherwise slip back through
	// auto-approval).
	requireApproval := true
	if planned && !p.sess.DeviationOccurred() {
		if p.sess.RecipePreapproved() {
			requireApproval = false
		} else if p.sess.IsSingleStepPlan() {
			stepIdx, subIdx := p.sess.Cursor()
			requireApproval = !(stepIdx == 0 && subIdx == 0)
		}
	}

	// Step 5: user-approval gate.
	if requireApproval {
		_ = p.em.RequestApproval(description, actionStr, string(toolName))
		approved, err := p.approvals.ReadApproval()
		if err != nil {
			_ = p.em.Error(err.Error(), "proxy.Invoke")
			_ = p.em.DenyCurrentAction("Approval could not be read")
			return nil, Terminated
		}
		if !approved {
			_ = p.em.Result(emitter.ResultCancelled, "User denied the proposed action", "")
			_ = p.em.DenyCurrentAction("User denied the proposed action")
			_ = p.em.FinalSummary("Run cancelled: the user denied the proposed action", "Cancelled", emitter.SummaryCancelled, "User denied the proposed action")
			return nil, Terminated
		}
		if !planned {
			p.sess.SetDeviationOccurred(true)
		}
	}

	// Step 6: execute.
	t, ok := p.tools[toolName]
	if !ok {
		err := fmt.Errorf("proxy: unknown tool %q", toolName)
		p.recordFailure(toolName, actionStr, err)
		return nil, nil
	}

	turn := p.nextTurnIndex()
	result, err := t.Execute(ctx, input, &tool.Context{WorkDir: p.workDir})
	if err != nil {
		p.recordFailure(toolName, actionStr, err)
		return nil, nil
	}

	// Step 8: shell-result interpretation runs on the original output —
	// exit-status framing lives in the part of the output that would
	// otherwise be replaced by the spill pointer.
	status, interpretMessage := interpretResult(toolName, result.Output)

	// Step 7: large-output spill handling.
	result.Output = p.spillIfLarge(toolName, turn, result.Output)

	// Step 9: persist.
	p.sess.AppendExecuted(string(toolName), actionStr, result.Output)
	if planned {
		lineCount := 1
		if step := p.sess.GetExpectedRecipeStep(); step != nil {
			lineCount = len(strings.Split(strings.TrimSpace(step.Action), "\n"))
		}
		p.sess.AdvanceCursor(lineCount)
	}

	// Step 10: emit result.
	_ = p.em.Result(status, interpretMessage, result.Output)
	return result, nil
}

func (p *Proxy) recordFailure(toolName tool.Kind, actionStr string, err error) {
	_ = p.em.Error(err.Error(), "proxy.Invoke")
	p.sess.AppendExecuted(string(toolName), actionStr, "ERROR: "+err.Error())
	if !p.sess.DeviationOccurred() {
		p.sess.SetDeviationOccurred(true)
	}
	_ = p.em.Result(emitter.ResultFailure, err.Error(), "")
}

// planMatch implements §4.4 step 3. Returns whether the invocation matches
// the next expected recipe step/subcommand exactly, and a human
// description for the approval prompt.
func (p *Proxy) planMatch(toolName tool.Kind, actionStr string) (planned bool, description string) {
	step := p.sess.GetExpectedRecipeStep()
	if step == nil {
		if !p.sess.DeviationOccurred() {
			p.sess.SetDeviationOccurred(true)
		}
		return false, fmt.Sprintf("Unplanned %s action", toolName)
	}
	if step.Tool != session.ToolName(toolName) {
		if !p.sess.DeviationOccurred() {
			p.sess.SetDeviationOccurred(true)
		}
		return false, fmt.Sprintf("Unplanned %s action (recipe expected %s)", toolName, step.Tool)
	}

	expectedSubcmd, ok := p.sess.GetExpectedSubcommand()
	if !ok {
		if !p.sess.DeviationOccurred() {
			p.sess.SetDeviationOccurred(true)
		}
		return false, step.Description
	}
	trimmedAction := strings.TrimSpace(actionStr)
	trimmedExpected := strings.TrimSpace(expectedSubcmd)
	if trimmedAction != trimmedExpected {
		if !p.sess.DeviationOccurred() {
			p.sess.SetDeviationOccurred(true)
		}
		// Strict equality is the actual decision (Open Question: no fuzzy
		// plan-match). The edit distance is read-only diagnostics for a
		// human operator watching the debug_log stream.
		_ = p.em.DebugLog(
			fmt.Sprintf("plan-match deviation: edit distance %d from expected subcommand",
				levenshtein.ComputeDistance(trimmedAction, trimmedExpected)),
			"proxy.planMatch",
		)
		return false, step.Description
	}
	return true, step.Description
}

// spillIfLarge implements §4.4 step 7: results over the configured
// threshold are written to a per-session, per-turn file under
// /tmp/og/<session_hash>/, and replaced in-memory with a pointer sentinel.
// A write failure falls back to the original output (never silently drops
// data).
func (p *Proxy) spillIfLarge(toolName tool.Kind, turn string, output string) string {
	if output == "" || len(output) <= p.outputThreshold {
		return output
	}

	dir := p.paths.SpillDir(p.sess.Hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return output
	}
	name := fmt.Sprintf("%s_%s.txt", turn, toolName)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return output
	}

	return fmt.Sprintf(
		"Output exceeded %d bytes and was written to %s. Use grep or cat on that file to inspect it.",
		p.outputThreshold, path,
	)
}

// deriveActionStr implements §4.4 step 1.
func deriveActionStr(input map[string]any) string {
	if command, ok := input["command"].(string); ok && command != "" {
		return command
	}
	if path, ok := input["path"].(string); ok && path != "" {
		return path
	}
	for _, key := range sortedKeys(input) {
		if s, ok := input[key].(string); ok && s != "" {
			return s
		}
	}
	return "an unknown action"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
