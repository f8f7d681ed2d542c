// Package planparser splits a planner model's free-form plan text into
// ordered command blocks (§4.3), grounded on
// _examples/original_source/agent/orchestrator/plan_parser.py. The original
// splits strictly on "\n[STEP]\n" (or at the very start/end of the string);
// the spec is more lenient — it also accepts the token on its own line with
// surrounding whitespace — so the delimiter regex here is looser than the
// original's.
package planparser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robbiemu/og-supervisor/internal/session"
)

// delimiterPattern matches a line that contains only the token [STEP],
// possibly surrounded by whitespace, at the start, end, or middle of the
// plan text. (?mi): multiline (so ^/$ anchor per line) and case-insensitive.
var delimiterPattern = regexp.MustCompile(`(?mi)^[ \t]*\[STEP\][ \t]*$`)

// Parse implements the §4.3 algorithm: normalize line endings, split on the
// delimiter, trim and discard empty segments, and wrap each remaining
// segment in a RecipeStep. The fallback return is always nil: the current
// planner prompt format never produces one (kept as a return value for
// forward compatibility, per the spec).
func Parse(planText string) ([]session.RecipeStep, *session.RecipeStep) {
	normalized := strings.ReplaceAll(planText, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)

	rawSegments := delimiterPattern.Split(normalized, -1)

	var steps []session.RecipeStep
	n := 0
	for _, raw := range rawSegments {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		n++
		steps = append(steps, session.RecipeStep{
			Description:     fmt.Sprintf("Execute command block %d", n),
			ExpectedOutcome: fmt.Sprintf("Command block %d executed successfully", n),
			Action:          trimmed,
			Tool:            session.ToolShell,
		})
	}

	return steps, nil
}
