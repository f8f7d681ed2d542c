package e2e_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/robbiemu/og-supervisor/citest/testutil"
	"github.com/robbiemu/og-supervisor/internal/config"
	"github.com/robbiemu/og-supervisor/internal/emitter"
	"github.com/robbiemu/og-supervisor/internal/model"
	"github.com/robbiemu/og-supervisor/internal/orchestrator"
	"github.com/robbiemu/og-supervisor/internal/proxy"
	"github.com/robbiemu/og-supervisor/internal/session"
)

// tempDir creates a scratch directory for one spec and registers its
// cleanup, so each It() gets its own workdir without leaking between specs.
func tempDir() *testutil.TempDir {
	d, err := testutil.NewTempDir()
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(d.Cleanup)
	return d
}

// harness wires one orchestrator run with scripted planner/executor/auditor
// replies and a scripted approval front end, capturing every emitted NDJSON
// event for assertions.
type harness struct {
	workDir string
	events  *bytes.Buffer
	sess    *session.Session
	orch    *orchestrator.Orchestrator
}

type harnessConfig struct {
	workDir         string
	plannerReply    string
	executorReplies []*model.Completion
	auditorReply    string
	approvals       proxy.ApprovalReader
	cmds            string
	sessionHash     string
	persister       *testutil.MemPersister
	priorState      session.State
}

func newHarness(cfg harnessConfig) *harness {
	if cfg.persister == nil {
		cfg.persister = testutil.NewMemPersister()
	}
	if cfg.sessionHash == "" {
		cfg.sessionHash = "e2e-session"
	}
	if cfg.auditorReply == "" {
		cfg.auditorReply = testutil.SafeVerdictText
	}
	if cfg.approvals == nil {
		cfg.approvals = testutil.StubApprovals{}
	}

	sess := session.New(cfg.sessionHash, cfg.priorState, cfg.persister)

	var buf bytes.Buffer
	em := emitter.New(&buf, emitter.LevelDebug)

	auditorCaller := &proxy.AuditorCaller{
		Adapter: testutil.NewScriptedAdapter(&model.Completion{Content: cfg.auditorReply, Done: true}),
		ModelID: "fake-auditor",
	}
	paths := &config.Paths{Tmp: cfg.workDir}
	px := proxy.New(sess, em, auditorCaller, cfg.approvals, paths, 1<<20, cfg.workDir)

	planner := testutil.NewScriptedAdapter(&model.Completion{Content: cfg.plannerReply, Done: true})
	executor := testutil.NewScriptedAdapter(cfg.executorReplies...)

	cmds := bufio.NewScanner(strings.NewReader(cfg.cmds))

	orch := orchestrator.New(
		sess, em, px,
		planner, model.Binding{Role: model.RolePlanner, ModelID: "fake-planner"},
		executor, model.Binding{Role: model.RoleExecutor, ModelID: "fake-executor"},
		cmds,
	)

	return &harness{workDir: cfg.workDir, events: &buf, sess: sess, orch: orch}
}

func (h *harness) eventsOfType(want string) []map[string]any {
	var out []map[string]any
	for _, rec := range h.allEvents() {
		if t, _ := rec["type"].(string); t == want {
			out = append(out, rec)
		}
	}
	return out
}

func (h *harness) eventTypes() []string {
	var types []string
	for _, rec := range h.allEvents() {
		if t, ok := rec["type"].(string); ok {
			types = append(types, t)
		}
	}
	return types
}

func (h *harness) allEvents() []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(h.events.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}
