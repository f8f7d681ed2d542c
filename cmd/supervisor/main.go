// Command supervisor is the CLI entry point (A1): it parses the flag
// surface of §6 into a config.Config, wires the Session Store, event
// Emitter, model adapters, Tool Proxy, and Orchestrator, then drives one
// session run to completion.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/robbiemu/og-supervisor/internal/config"
	"github.com/robbiemu/og-supervisor/internal/emitter"
	"github.com/robbiemu/og-supervisor/internal/logging"
	"github.com/robbiemu/og-supervisor/internal/model"
	"github.com/robbiemu/og-supervisor/internal/orchestrator"
	"github.com/robbiemu/og-supervisor/internal/proxy"
	"github.com/robbiemu/og-supervisor/internal/session"
)

var flags struct {
	query           string
	sessionHash     string
	workDir         string
	executorModel   string
	executorParams  string
	plannerModel    string
	plannerParams   string
	auditorModel    string
	auditorParams   string
	verbosity       string
	summaryMode     bool
	outputThreshold int
	jsonLogsEnabled bool
	cacheDirectory  string
}

// exitCode is set by run and read by main after root.Execute returns, since
// cobra's RunE contract wants an error, not a process exit code, and this
// tool's §7 exit taxonomy distinguishes "unsafe/denial" (0) from
// "unrecoverable" (non-zero) even when both paths complete without a Go
// error.
var exitCode int

func main() {
	root := &cobra.Command{
		Use:           "supervisor",
		Short:         "Runs one supervised agent session over stdin/stdout NDJSON streams",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          run,
	}

	root.Flags().StringVar(&flags.query, "query", "", "initial user request (required for new sessions)")
	root.Flags().StringVar(&flags.sessionHash, "session-hash", "", "session identifier; a fresh one is generated if omitted")
	root.Flags().StringVar(&flags.workDir, "workdir", "", "working directory tool calls run in (required)")
	root.Flags().StringVar(&flags.executorModel, "executor-model", "", "executor model id")
	root.Flags().StringVar(&flags.executorParams, "executor-params", "", "executor model params, as a JSON object")
	root.Flags().StringVar(&flags.plannerModel, "planner-model", "", "planner model id")
	root.Flags().StringVar(&flags.plannerParams, "planner-params", "", "planner model params, as a JSON object")
	root.Flags().StringVar(&flags.auditorModel, "auditor-model", "", "auditor model id")
	root.Flags().StringVar(&flags.auditorParams, "auditor-params", "", "auditor model params, as a JSON object")
	root.Flags().StringVar(&flags.verbosity, "verbosity", "info", "debug|info|warn|none")
	root.Flags().BoolVar(&flags.summaryMode, "summary-mode", false, "stored in the run configuration; does not change what is emitted or logged")
	root.Flags().IntVar(&flags.outputThreshold, "output-threshold-bytes", 16768, "tool output byte threshold before spilling to a file")
	root.Flags().BoolVar(&flags.jsonLogsEnabled, "json-logs-enabled", false, "use zerolog's JSON console writer instead of pretty output")
	root.Flags().StringVar(&flags.cacheDirectory, "cache-directory", "", "directory holding optional supervisor.jsonc defaults")

	if err := root.Execute(); err != nil {
		logging.Error().Err(err).Msg("supervisor exited with error")
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.Query = flags.query
	cfg.WorkDir = flags.workDir
	cfg.CacheDirectory = flags.cacheDirectory

	if err := config.LoadDefaults(cfg, flags.cacheDirectory); err != nil {
		return fmt.Errorf("loading cache-directory defaults: %w", err)
	}

	verbosity, err := config.ParseVerbosity(flags.verbosity)
	if err != nil {
		return err
	}
	cfg.Verbosity = verbosity
	cfg.SummaryMode = flags.summaryMode
	cfg.OutputThreshold = flags.outputThreshold
	cfg.JSONLogsEnabled = flags.jsonLogsEnabled

	if flags.workDir == "" {
		return fmt.Errorf("--workdir is required")
	}
	if err := os.Chdir(flags.workDir); err != nil {
		return fmt.Errorf("changing to --workdir: %w", err)
	}

	sessionHash := flags.sessionHash
	if sessionHash == "" {
		sessionHash = uuid.NewString()
	}

	executorParams, err := config.ParseModelParams(flags.executorParams)
	if err != nil {
		return fmt.Errorf("--executor-params: %w", err)
	}
	plannerParams, err := config.ParseModelParams(flags.plannerParams)
	if err != nil {
		return fmt.Errorf("--planner-params: %w", err)
	}
	auditorParams, err := config.ParseModelParams(flags.auditorParams)
	if err != nil {
		return fmt.Errorf("--auditor-params: %w", err)
	}
	cfg.Executor = config.ModelConfig{ID: flags.executorModel, Params: executorParams}
	cfg.Planner = config.ModelConfig{ID: flags.plannerModel, Params: plannerParams}
	cfg.Auditor = config.ModelConfig{ID: flags.auditorModel, Params: auditorParams}

	logLevel := logging.InfoLevel
	if verbosity == config.VerbosityDebug {
		logLevel = logging.DebugLevel
	}
	logging.Init(logging.Config{
		Level:      logLevel,
		Output:     os.Stderr,
		Pretty:     !flags.jsonLogsEnabled,
		LogToFile:  false,
	})

	emitLevel, err := emitter.ParseLevel(string(verbosity))
	if err != nil {
		return err
	}
	em := emitter.New(os.Stdout, emitLevel)

	paths := config.GetPaths()
	// --json-logs-enabled doubles as the session store's "write the
	// human-readable per-session JSON form too" toggle (§4.2's "optional
	// and controlled by configuration"), alongside selecting zerolog's
	// JSON console writer above: both are "give me JSON on disk/stderr
	// instead of just the compact archive/pretty console".
	store, err := session.NewStore(paths, cfg.JSONLogsEnabled)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	isNew := !store.Exists(sessionHash)
	sess, err := store.Open(sessionHash)
	if err != nil {
		return fmt.Errorf("opening session %s: %w", sessionHash, err)
	}

	anthropicAdapter := model.NewAnthropicAdapter(os.Getenv("ANTHROPIC_API_KEY"))
	retryingAdapter := model.WithRetry(anthropicAdapter)

	auditorCaller := &proxy.AuditorCaller{
		Adapter: retryingAdapter,
		ModelID: cfg.Auditor.ID,
		Params:  cfg.Auditor.Params,
	}

	stdin := bufio.NewScanner(os.Stdin)
	stdin.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	approvals := proxy.NewStdinApprovalReader(stdin)

	px := proxy.New(sess, em, auditorCaller, approvals, paths, cfg.OutputThreshold, flags.workDir)

	orch := orchestrator.New(
		sess, em, px,
		retryingAdapter, model.Binding{Role: model.RolePlanner, ModelID: cfg.Planner.ID, Params: cfg.Planner.Params},
		retryingAdapter, model.Binding{Role: model.RoleExecutor, ModelID: cfg.Executor.ID, Params: cfg.Executor.Params},
		stdin,
	)

	ctx := context.Background()
	var code orchestrator.ExitCode
	if isNew {
		code = orch.RunNewSession(ctx, cfg.Query)
	} else {
		code = orch.RunResumedSession(ctx)
	}

	exitCode = int(code)
	return nil
}
