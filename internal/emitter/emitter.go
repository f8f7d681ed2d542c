// Package emitter implements the NDJSON event channel (§4.1) the
// orchestrator, proxy, and auditor write to: one JSON record per line, a
// single-writer discipline so records are never interleaved, and
// verbosity-based filtering of the categorized log event types. This is the
// product's wire protocol to the front-end, kept deliberately separate from
// the operational trail in package logging.
package emitter

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Level mirrors the original agent's ordinal LogLevel (DEBUG < INFO < WARN <
// NONE), grounded on _examples/original_source/agent/log_levels.py.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelNone
)

// ParseLevel maps a verbosity flag value to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "none":
		return LevelNone, nil
	default:
		return 0, fmt.Errorf("emitter: invalid verbosity %q", s)
	}
}

// categorizedLevels maps the three filterable event types to their
// severity, grounded exactly on emitter.py's log_type_map. Every other
// event type (error, unsafe, plan, request_approval, result,
// final_summary, deny_current_action) is unconditionally emitted.
var categorizedLevels = map[string]Level{
	"debug_log": LevelDebug,
	"info_log":  LevelInfo,
	"warn_log":  LevelWarn,
}

// Emitter writes typed records to an output stream under a single mutex, so
// concurrent emissions (e.g. a warn_log interleaved with a result) never
// interleave their bytes on the wire.
type Emitter struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

// New wraps w (normally os.Stdout) with the configured verbosity level.
func New(w io.Writer, level Level) *Emitter {
	return &Emitter{w: w, level: level}
}

// Emit writes one NDJSON record: {"type": msgType, ...data fields}.
// Categorized log types below the configured level are silently dropped;
// every other type is always written. Each record goes out in a single
// Write call; if the writer also has a Flush() error method (as
// *bufio.Writer does), it is flushed after every record.
func (e *Emitter) Emit(msgType string, data map[string]any) error {
	if sev, ok := categorizedLevels[msgType]; ok && sev < e.level {
		return nil
	}

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["type"] = msgType

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("emitter: marshaling %s event: %w", msgType, err)
	}
	encoded = append(encoded, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(encoded)
	if err != nil {
		return fmt.Errorf("emitter: writing %s event: %w", msgType, err)
	}
	if f, ok := e.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

type flusher interface {
	Flush() error
}

// DebugLog, InfoLog, and WarnLog are convenience wrappers for the
// categorized-log event shape {message, location}.
func (e *Emitter) DebugLog(message, location string) error {
	return e.Emit("debug_log", map[string]any{"message": message, "location": location})
}

func (e *Emitter) InfoLog(message, location string) error {
	return e.Emit("info_log", map[string]any{"message": message, "location": location})
}

func (e *Emitter) WarnLog(message, location string) error {
	return e.Emit("warn_log", map[string]any{"message": message, "location": location})
}

// Error emits the {message, location?} error event, always unfiltered.
func (e *Emitter) Error(message, location string) error {
	data := map[string]any{"message": message}
	if location != "" {
		data["location"] = location
	}
	return e.Emit("error", data)
}

// Unsafe emits the auditor-rejection event {reason, explanation}.
func (e *Emitter) Unsafe(reason, explanation string) error {
	return e.Emit("unsafe", map[string]any{"reason": reason, "explanation": explanation})
}

// RequestApproval emits the user-approval-gate prompt event.
func (e *Emitter) RequestApproval(description, action, tool string) error {
	return e.Emit("request_approval", map[string]any{
		"description": description,
		"action":      action,
		"tool":        tool,
	})
}

// Result status values (§4 event table).
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultCancelled = "cancelled"
)

// Result emits one tool-invocation outcome.
func (e *Emitter) Result(status, interpretMessage, output string) error {
	data := map[string]any{
		"status":            status,
		"interpret_message": interpretMessage,
	}
	if output != "" {
		data["output"] = output
	}
	return e.Emit("result", data)
}

// FinalSummary status values.
const (
	SummarySuccess   = "success"
	SummaryCancelled = "cancelled"
)

// FinalSummary emits the run-terminating summary event.
func (e *Emitter) FinalSummary(summary, nutshell, status, reason string) error {
	data := map[string]any{
		"summary":  summary,
		"nutshell": nutshell,
		"status":   status,
	}
	if reason != "" {
		data["reason"] = reason
	}
	return e.Emit("final_summary", data)
}

// DenyCurrentAction emits the user-denial acknowledgement event.
func (e *Emitter) DenyCurrentAction(message string) error {
	return e.Emit("deny_current_action", map[string]any{"message": message})
}

// RecipeStepView is the wire shape of one plan event's recipe_steps entry.
type RecipeStepView struct {
	Description     string `json:"description"`
	ExpectedOutcome string `json:"expected_outcome"`
	Action          string `json:"action"`
	Tool            string `json:"tool"`
}

// Plan emits the initial-plan event: the planner's request echoed back,
// the parsed recipe steps, and an optional fallback action.
func (e *Emitter) Plan(request string, steps []RecipeStepView, fallback *RecipeStepView) error {
	data := map[string]any{
		"request":      request,
		"recipe_steps": steps,
	}
	if fallback != nil {
		data["fallback_action"] = fallback
	}
	return e.Emit("plan", data)
}
