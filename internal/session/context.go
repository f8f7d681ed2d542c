package session

import (
	"fmt"
	"strconv"
	"strings"
)

const resultTruncateLen = 200

// GetExecutionContext renders the human-language context handed to the
// auditor (and, via continuation prompts, to the executor): the original
// query, completed actions with truncated results, then either the
// annotated initial recipe or a deviation note (§4.2 Context rendering).
func (s *Session) GetExecutionContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return renderContext(&s.state)
}

func renderContext(st *State) string {
	var parts []string

	if st.OriginalQuery != "" {
		parts = append(parts, "Original Request: "+st.OriginalQuery)
	}

	if len(st.ExecutedActions) > 0 {
		if st.OriginalQuery != "" {
			parts = append(parts, "")
		}
		parts = append(parts, "Actions completed so far:")
		for i, action := range st.ExecutedActions {
			parts = append(parts, fmt.Sprintf("  %d. %s: %s", i+1, action.Tool, action.Action))
			if action.Result != "" {
				result := action.Result
				if len(result) > resultTruncateLen {
					result = result[:resultTruncateLen] + "…"
				}
				parts = append(parts, "     Result: "+result)
			}
		}
	}

	switch {
	case len(st.CurrentRecipe) > 0 && !st.DeviationOccurred:
		parts = append(parts, "\nInitial recipe/plan provided to user:")
		for i, step := range st.CurrentRecipe {
			n := i + 1
			prefix := "  "
			if n <= st.StepIdx {
				prefix = "  ✅"
			}

			if n == st.StepIdx+1 && step.Tool == ToolShell {
				plannedCommands := strings.Split(strings.TrimSpace(step.Action), "\n")
				stepStatus := "  ▶️"
				if st.SubcmdIdx > 0 {
					stepStatus = "  " + strconv.Itoa(st.SubcmdIdx) + "/" + strconv.Itoa(len(plannedCommands)) + " "
				}
				parts = append(parts, fmt.Sprintf("%s %d. %s:", stepStatus, n, orDefault(step.Description, "No description")))
				for subIdx, cmdLine := range plannedCommands {
					subPrefix := "    "
					if subIdx < st.SubcmdIdx {
						subPrefix = "    ✅"
					}
					parts = append(parts, subPrefix+" "+cmdLine)
				}
				parts = append(parts, fmt.Sprintf(" (%s)", orDefault(string(step.Tool), "N/A")))
			} else {
				parts = append(parts, fmt.Sprintf("%s %d. %s: %s (%s)",
					prefix, n, orDefault(step.Description, "No description"),
					orDefault(step.Action, "N/A"), orDefault(string(step.Tool), "N/A")))
			}
		}
		if st.FallbackAction != nil {
			parts = append(parts, fmt.Sprintf("\nInitial fallback action provided to user: %s (%s)",
				orDefault(st.FallbackAction.Action, "N/A"), orDefault(string(st.FallbackAction.Tool), "N/A")))
		}
	case st.DeviationOccurred:
		parts = append(parts, "\nNote: Agent deviated from the initial pre-approved recipe. All future actions require individual approval.")
	}

	if len(parts) == 0 {
		return "No prior actions or initial recipe available"
	}
	return strings.Join(parts, "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
