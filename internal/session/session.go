package session

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Persister is the dependency a Session uses to make itself durable. The
// concrete implementation (package session, store.go) writes the compact
// multi-session archive and, when enabled, the one-file-per-session JSON form.
type Persister interface {
	Save(hash string, state State) error
}

// Session is the in-memory handle every other component shares (§3
// Ownership): its mutators internally persist via the injected Persister,
// so callers never need to remember to save.
type Session struct {
	mu    sync.Mutex
	Hash  string
	state State
	store Persister
}

// New wraps an already-resolved State (as produced by Store.Open) in a live,
// self-persisting Session handle.
func New(hash string, state State, store Persister) *Session {
	return &Session{Hash: hash, state: state, store: store}
}

func (s *Session) save() {
	if s.store == nil {
		return
	}
	// Mutators call save after releasing s.mu, so persistence (which may be
	// slow: disk I/O) runs without the lock held; Save takes a value copy.
	_ = s.store.Save(s.Hash, s.state)
}

// Snapshot returns a copy of the current state, e.g. for P4 round-trip tests.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// --- Getters -----------------------------------------------------------

func (s *Session) OriginalQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.OriginalQuery
}

func (s *Session) IsSingleStepPlan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsSingleStepPlan
}

func (s *Session) RecipePreapproved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RecipePreapproved
}

func (s *Session) DeviationOccurred() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeviationOccurred
}

func (s *Session) Cursor() (stepIdx, subcmdIdx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.StepIdx, s.state.SubcmdIdx
}

func (s *Session) CurrentRecipe() []RecipeStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentRecipe
}

func (s *Session) FallbackAction() *RecipeStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FallbackAction
}

// GetExpectedRecipeStep returns the currently expected recipe step, or nil
// if the cursor has moved past the end of the recipe.
func (s *Session) GetExpectedRecipeStep() *RecipeStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.StepIdx < len(s.state.CurrentRecipe) {
		step := s.state.CurrentRecipe[s.state.StepIdx]
		return &step
	}
	return nil
}

// GetExpectedSubcommand returns the expected subcommand string for the
// current step/subcommand cursor, only for shell_tool steps.
func (s *Session) GetExpectedSubcommand() (string, bool) {
	step := s.GetExpectedRecipeStep()
	if step == nil || step.Tool != ToolShell {
		return "", false
	}
	s.mu.Lock()
	subIdx := s.state.SubcmdIdx
	s.mu.Unlock()
	lines := strings.Split(strings.TrimSpace(step.Action), "\n")
	if subIdx < len(lines) {
		return strings.TrimSpace(lines[subIdx]), true
	}
	return "", false
}

// --- Mutators ------------------------------------------------------------

func (s *Session) AppendHistory(role, content string) {
	s.mu.Lock()
	s.state.ConversationHistory = append(s.state.ConversationHistory, HistoryEntry{Role: role, Content: content})
	s.mu.Unlock()
	s.save()
}

// AppendExecuted records one executed_actions entry. It does not itself
// advance the progress cursor: the proxy decides whether an entry was a
// planned invocation and calls AdvanceCursor itself (§4.4 step 9).
func (s *Session) AppendExecuted(tool, action, result string) {
	s.mu.Lock()
	s.state.ExecutedActions = append(s.state.ExecutedActions, ExecutedAction{
		Tool:      tool,
		Action:    action,
		Result:    result,
		Timestamp: strconv.FormatInt(time.Now().UnixNano(), 10),
	})
	s.mu.Unlock()
	s.save()
}

// SetPlan stores a new recipe and fallback, resetting all approval/progress
// state (P6: idempotent — calling this twice with the same args is
// equivalent to calling it once).
func (s *Session) SetPlan(steps []RecipeStep, fallback *RecipeStep) {
	s.mu.Lock()
	s.state.CurrentRecipe = steps
	s.state.FallbackAction = fallback
	s.state.IsSingleStepPlan = len(steps) == 1 && fallback == nil
	s.state.RecipePreapproved = false
	s.state.StepIdx = 0
	s.state.SubcmdIdx = 0
	s.state.DeviationOccurred = false
	s.mu.Unlock()
	s.save()
}

func (s *Session) SetOriginalQuery(query string) {
	s.mu.Lock()
	s.state.OriginalQuery = query
	s.mu.Unlock()
	s.save()
}

func (s *Session) SetRecipePreapproved(v bool) {
	s.mu.Lock()
	s.state.RecipePreapproved = v
	s.mu.Unlock()
	s.save()
}

func (s *Session) SetSingleStepPlanStatus(v bool) {
	s.mu.Lock()
	s.state.IsSingleStepPlan = v
	s.mu.Unlock()
	s.save()
}

// SetDeviationOccurred sets the deviation flag. It is a thin setter (same as
// the source) and does not refuse false: the proxy only ever sets it to
// true, while the orchestrator's execute_recipe and execute_single_action
// handlers clear it when a new run starts (as SetPlan does).
func (s *Session) SetDeviationOccurred(v bool) {
	s.mu.Lock()
	s.state.DeviationOccurred = v
	s.mu.Unlock()
	s.save()
}

// IncrementStep advances to the next recipe step and resets the subcommand
// cursor (P1: subcmd_idx resets to 0 exactly when step_idx increments).
func (s *Session) IncrementStep() {
	s.mu.Lock()
	s.state.StepIdx++
	s.state.SubcmdIdx = 0
	s.mu.Unlock()
	s.save()
}

func (s *Session) IncrementSubcmd() {
	s.mu.Lock()
	s.state.SubcmdIdx++
	s.mu.Unlock()
	s.save()
}

// AdvanceCursor implements §4.4 step 9's composite advance: increment
// subcmd_idx; if that moved past lineCount (the current step's line count),
// also increment step_idx, which resets subcmd_idx to 0. Called only for
// planned invocations.
func (s *Session) AdvanceCursor(lineCount int) {
	s.mu.Lock()
	s.state.SubcmdIdx++
	if s.state.SubcmdIdx >= lineCount {
		s.state.StepIdx++
		s.state.SubcmdIdx = 0
	}
	s.mu.Unlock()
	s.save()
}

// ResetCursor sets the progress cursor back to (0, 0), used by the
// orchestrator's execute_recipe and execute_single_action command handlers
// (§4.5); the execute_fallback handler leaves the cursor where it is.
func (s *Session) ResetCursor() {
	s.mu.Lock()
	s.state.StepIdx = 0
	s.state.SubcmdIdx = 0
	s.mu.Unlock()
	s.save()
}
