package proxy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robbiemu/og-supervisor/internal/emitter"
	"github.com/robbiemu/og-supervisor/internal/tool"
)

var exitStatusPattern = regexp.MustCompile(`--- Command exited with status: (-?\d+) ---`)

// interpretResult implements §4.4 step 8: for the shell tool, parse the
// --- STDOUT --- / --- STDERR --- / exit-status framing tool.ShellTool
// produces to derive a status and a human-readable interpret_message. Any
// other tool (file_content_tool) is always treated as success, since it
// either returns content or errors out at step 6.
func interpretResult(toolName tool.Kind, output string) (status, interpretMessage string) {
	if toolName != tool.KindShell {
		return emitter.ResultSuccess, "Action completed"
	}

	if output == tool.NoOutputSentinel {
		return emitter.ResultSuccess, "Command executed with no output"
	}

	match := exitStatusPattern.FindStringSubmatch(output)
	if match == nil {
		return emitter.ResultSuccess, "Command completed"
	}

	exitCode, err := strconv.Atoi(match[1])
	if err != nil || exitCode != 0 {
		return emitter.ResultFailure, fmt.Sprintf("Command exited with status %s", match[1])
	}
	return emitter.ResultSuccess, summarizeStdout(output)
}

func summarizeStdout(output string) string {
	const stdoutMarker = "--- STDOUT ---"
	const stderrMarker = "--- STDERR ---"

	stdoutStart := strings.Index(output, stdoutMarker)
	stderrStart := strings.Index(output, stderrMarker)
	if stdoutStart == -1 || stderrStart == -1 || stderrStart <= stdoutStart {
		return "Command completed successfully"
	}

	stdout := strings.TrimSpace(output[stdoutStart+len(stdoutMarker) : stderrStart])
	if stdout == "" {
		return "Command completed successfully with no stdout"
	}
	return "Command completed successfully"
}
