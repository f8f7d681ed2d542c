package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	shsyntax "mvdan.cc/sh/v3/syntax"
)

const (
	DefaultShellTimeout = 120 * time.Second
	MaxShellTimeout     = 10 * time.Minute
	SigkillGrace        = 200 * time.Millisecond

	// NoOutputSentinel is the exact body produced for a command that ran
	// to completion with nothing on either stream; the proxy's shell-result
	// parser (§4.4 step 8) special-cases it as a successful no-output run.
	NoOutputSentinel = "[Command executed with no output]"
)

// ShellTool runs a command line under a timeout, in its own process group so
// the whole subprocess tree can be reaped on timeout, and reports stdout,
// stderr and exit status in the section framing the proxy's shell-result
// parser expects.
type ShellTool struct {
	shell string
}

// NewShellTool constructs a ShellTool that runs commands with bash found on
// PATH, falling back to /bin/sh (cmd.exe on Windows).
func NewShellTool() *ShellTool {
	return &ShellTool{shell: detectShell()}
}

func detectShell() string {
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	if path, err := exec.LookPath("bash"); err == nil {
		return path
	}
	return "/bin/sh"
}

func (t *ShellTool) Kind() Kind { return KindShell }

// validateShellSyntax rejects input that mvdan.cc/sh cannot parse as a shell command
// line, surfacing the parse error as a normal tool-execution failure rather
// than silently handing garbage to exec.Cmd.
func validateShellSyntax(command string) error {
	parser := shsyntax.NewParser(shsyntax.Variant(shsyntax.LangBash))
	_, err := parser.Parse(strings.NewReader(command), "")
	return err
}

func (t *ShellTool) Execute(ctx context.Context, input map[string]any, toolCtx *Context) (*Result, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("shell_tool: missing command")
	}
	if err := validateShellSyntax(command); err != nil {
		return nil, fmt.Errorf("shell_tool: invalid command syntax: %w", err)
	}

	timeout := DefaultShellTimeout
	if ms, ok := input["timeout"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > MaxShellTimeout {
			timeout = MaxShellTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, t.shell, "/c", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, t.shell, "-c", command)
	}
	if toolCtx != nil && toolCtx.WorkDir != "" {
		cmd.Dir = toolCtx.WorkDir
	}
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return nil, fmt.Errorf("shell_tool: command timed out after %v", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}

	body := fmt.Sprintf("--- STDOUT ---\n%s\n--- STDERR ---\n%s\n--- Command exited with status: %d ---",
		stdout.String(), stderr.String(), exitCode)
	if stdout.Len() == 0 && stderr.Len() == 0 && exitCode == 0 {
		body = NoOutputSentinel
	}

	return &Result{
		Output: body,
		Metadata: map[string]any{
			"exit":    exitCode,
			"command": command,
		},
	}, nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if runtime.GOOS == "windows" {
		_ = exec.Command("taskkill", "/pid", fmt.Sprint(pid), "/f", "/t").Run()
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(SigkillGrace)
	if cmd.ProcessState == nil {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}
