// Package auditor parses the auditor model's free-form response into a
// binary safety verdict (§6), grounded on
// _examples/original_source/agent/agents/auditor/agent.py. The Go auditor
// model always returns a string (there is no smolagents direct-dict tool
// call path), so the ported grammar starts at the original's string stage:
// fenced/bare JSON object extraction, a single-quote-to-double-quote
// normalization fallback, then a markdown `# SAFE:`/`# REASON:`/
// `# EXPLANATION:` stanza. The original's final ast.literal_eval
// Python-dict-literal fallback has no Go equivalent and is deliberately not
// ported (a string that is valid as a Python dict literal but not as JSON
// falls through to the markdown parser here instead).
package auditor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/robbiemu/og-supervisor/internal/session"
)

var (
	fencedJSONPattern = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*\})\s*` + "```" + `|(\{.*\})`)
	safeLinePattern   = regexp.MustCompile(`(?mi)^\s*#+\s*SAFE:\s*(true|false)`)
	reasonLinePattern = regexp.MustCompile(`(?mi)^\s*#+\s*REASON:\s*(.*)`)
	explLinePattern   = regexp.MustCompile(`(?msi)^\s*#+\s*EXPLANATION:\s*(.*)`)
)

// findVerdictInJSON recursively searches decoded JSON (maps/slices) for an
// object carrying (case-insensitively) SAFE, REASON, and EXPLANATION keys,
// mirroring _find_audit_verdict_in_json's recursive dict/list walk.
func findVerdictInJSON(data any) (*session.AuditVerdict, bool) {
	switch v := data.(type) {
	case map[string]any:
		upper := make(map[string]any, len(v))
		for k, val := range v {
			upper[strings.ToUpper(k)] = val
		}
		if safe, ok1 := upper["SAFE"]; ok1 {
			if reason, ok2 := upper["REASON"]; ok2 {
				if expl, ok3 := upper["EXPLANATION"]; ok3 {
					return &session.AuditVerdict{
						Safe:        asBoolish(safe),
						Reason:      asStringish(reason),
						Explanation: asStringish(expl),
					}, true
				}
			}
		}
		for _, val := range v {
			if found, ok := findVerdictInJSON(val); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range v {
			if found, ok := findVerdictInJSON(item); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func asBoolish(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return strings.EqualFold(fmt.Sprint(t), "true")
	}
}

func asStringish(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// parseJSONVerdict implements the string-input stages of
// _parse_json_verdict: fenced/bare JSON-object extraction, then a full-text
// parse with single quotes normalized to double quotes.
func parseJSONVerdict(text string) (*session.AuditVerdict, bool) {
	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		candidate := match[1]
		if candidate == "" {
			candidate = match[2]
		}
		if candidate != "" {
			var decoded any
			if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
				if verdict, ok := findVerdictInJSON(decoded); ok {
					return verdict, true
				}
			}
		}
	}

	var decoded any
	normalized := strings.ReplaceAll(text, "'", "\"")
	if err := json.Unmarshal([]byte(normalized), &decoded); err == nil {
		if verdict, ok := findVerdictInJSON(decoded); ok {
			return verdict, true
		}
	}

	return nil, false
}

// ParseMarkdownResponse implements parse_audit_markdown_response: prefer a
// JSON verdict, then fall back to the `# SAFE:`/`# REASON:`/`# EXPLANATION:`
// markdown stanza. An unrecognized shape defaults to safe=false with the
// original's exact placeholder reason/explanation text.
func ParseMarkdownResponse(auditorOutput string) session.AuditVerdict {
	if verdict, ok := parseJSONVerdict(auditorOutput); ok {
		return *verdict
	}

	safe := false
	reason := "N/A"
	explanation := "N/A"

	if m := safeLinePattern.FindStringSubmatch(auditorOutput); m != nil {
		safe = strings.EqualFold(m[1], "true")
	}
	if m := reasonLinePattern.FindStringSubmatch(auditorOutput); m != nil {
		reason = strings.TrimSpace(m[1])
	}
	if m := explLinePattern.FindStringSubmatch(auditorOutput); m != nil {
		explanation = strings.TrimSpace(m[1])
	}

	if !safe && reason == "N/A" {
		reason = "Unable to determine safety from auditor response."
	}
	if !safe && explanation == "N/A" {
		explanation = fmt.Sprintf("Auditor response format was unexpected: '%s'.", auditorOutput)
	}

	return session.AuditVerdict{Safe: safe, Reason: reason, Explanation: explanation}
}

// FailureVerdict is the verdict the proxy's auditor call uses when the
// auditor model call itself errors out (the original's audit_request
// except-clause).
func FailureVerdict(err error) session.AuditVerdict {
	return session.AuditVerdict{
		Safe:        false,
		Reason:      "Audit evaluation failed",
		Explanation: fmt.Sprintf("Internal audit error: %v", err),
	}
}
