// Package session implements the session state machine (§3 entities, §4.2
// Session Store) of the supervisor: progress cursor, approval flags,
// conversation/execution history, and the dual on-disk persistence forms.
package session

// ToolName is the RecipeStep.tool enum.
type ToolName string

const (
	ToolShell ToolName = "shell_tool"
	ToolFile  ToolName = "file_content_tool"
)

// RecipeStep is one planned command block.
type RecipeStep struct {
	Description     string   `json:"description"`
	ExpectedOutcome string   `json:"expected_outcome"`
	Action          string   `json:"action"`
	Tool            ToolName `json:"tool"`
}

// HistoryEntry is one append-only conversation_history record.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExecutedAction is one append-only executed_actions record.
type ExecutedAction struct {
	Tool      string `json:"tool"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// AuditVerdict is the auditor's binary safety decision.
type AuditVerdict struct {
	Safe        bool   `json:"safe"`
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
}

// State is the full serializable contents of a session (§3 Entities →
// Session). An empty OriginalQuery is treated as "absent" throughout,
// mirroring the original implementation's Optional[str] semantics.
type State struct {
	ConversationHistory []HistoryEntry   `json:"conversation_history"`
	CurrentRecipe       []RecipeStep     `json:"current_recipe,omitempty"`
	FallbackAction      *RecipeStep      `json:"fallback_action,omitempty"`
	ExecutedActions     []ExecutedAction `json:"executed_actions"`
	OriginalQuery       string           `json:"original_query,omitempty"`

	IsSingleStepPlan  bool `json:"is_single_step_plan"`
	RecipePreapproved bool `json:"recipe_preapproved"`
	StepIdx           int  `json:"next_expected_recipe_step_idx"`
	SubcmdIdx         int  `json:"next_expected_subcommand_idx"`
	DeviationOccurred bool `json:"deviation_occurred"`
}

func blankState() State {
	return State{
		ConversationHistory: []HistoryEntry{},
		ExecutedActions:     []ExecutedAction{},
	}
}
