package e2e_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/robbiemu/og-supervisor/citest/testutil"
	"github.com/robbiemu/og-supervisor/internal/emitter"
	"github.com/robbiemu/og-supervisor/internal/model"
	"github.com/robbiemu/og-supervisor/internal/orchestrator"
	"github.com/robbiemu/og-supervisor/internal/session"
)

var _ = Describe("Scenario 1: safe single-line plan, user approves recipe", func() {
	It("emits plan, then a no-approval success result, then a success final_summary", func() {
		h := newHarness(harnessConfig{
			workDir:      tempDir().Path,
			plannerReply: "find . -name '*.py' | wc -l",
			executorReplies: []*model.Completion{
				{ToolCalls: []model.ToolCallProposal{{ID: "c1", ToolName: "shell_tool", Arguments: `{"command":"find . -name '*.py' | wc -l"}`}}},
				{Content: "Counted 0 python files.", Done: true},
			},
			cmds: `{"type":"execute_recipe"}` + "\n",
		})

		code := h.orch.RunNewSession(context.Background(), "count python files")

		Expect(code).To(Equal(orchestrator.ExitNormal))
		Expect(h.eventTypes()).To(ContainElement("plan"))
		Expect(h.eventsOfType("request_approval")).To(BeEmpty())
		results := h.eventsOfType("result")
		Expect(results).To(HaveLen(1))
		Expect(results[0]["status"]).To(Equal(emitter.ResultSuccess))
		finals := h.eventsOfType("final_summary")
		Expect(finals).To(HaveLen(1))
		Expect(finals[0]["status"]).To(Equal(emitter.SummarySuccess))
	})
})

var _ = Describe("Scenario 2: unsafe query", func() {
	It("emits unsafe and exits without a final_summary, having never stored the plan", func() {
		h := newHarness(harnessConfig{
			workDir:      tempDir().Path,
			plannerReply: "rm -rf /",
			auditorReply: testutil.UnsafeVerdictText,
		})

		code := h.orch.RunNewSession(context.Background(), "delete everything")

		Expect(code).To(Equal(orchestrator.ExitNormal))
		Expect(h.eventTypes()).To(ContainElement("unsafe"))
		Expect(h.eventTypes()).NotTo(ContainElement("final_summary"))
		Expect(h.sess.CurrentRecipe()).To(BeEmpty())
	})
})

var _ = Describe("Scenario 3: multi-line pre-approved recipe, executor deviates", func() {
	It("auto-approves the first subcommand then requests approval for the deviating second", func() {
		approvals := testutil.NewScriptedApprovals().Approve()
		h := newHarness(harnessConfig{
			workDir:      tempDir().Path,
			plannerReply: "cd /tmp\nls",
			executorReplies: []*model.Completion{
				{ToolCalls: []model.ToolCallProposal{{ID: "c1", ToolName: "shell_tool", Arguments: `{"command":"cd /tmp"}`}}},
				{ToolCalls: []model.ToolCallProposal{{ID: "c2", ToolName: "shell_tool", Arguments: `{"command":"pwd"}`}}},
				{Content: "Printed the working directory.", Done: true},
			},
			approvals: approvals,
			cmds:      `{"type":"execute_recipe"}` + "\n",
		})

		code := h.orch.RunNewSession(context.Background(), "look around /tmp")

		Expect(code).To(Equal(orchestrator.ExitNormal))
		Expect(h.eventsOfType("request_approval")).To(HaveLen(1))
		Expect(h.sess.DeviationOccurred()).To(BeTrue())
		finals := h.eventsOfType("final_summary")
		Expect(finals).To(HaveLen(1))
		Expect(finals[0]["status"]).To(Equal(emitter.SummarySuccess))
	})
})

var _ = Describe("Scenario 4: single-step plan, second tool call required", func() {
	It("auto-approves the first call then requests approval for the unplanned second", func() {
		approvals := testutil.NewScriptedApprovals().Approve()
		h := newHarness(harnessConfig{
			workDir:      tempDir().Path,
			plannerReply: "ls",
			executorReplies: []*model.Completion{
				{ToolCalls: []model.ToolCallProposal{{ID: "c1", ToolName: "shell_tool", Arguments: `{"command":"ls"}`}}},
				{ToolCalls: []model.ToolCallProposal{{ID: "c2", ToolName: "file_content_tool", Arguments: `{"path":"README.md"}`}}},
				{Content: "Read the README.", Done: true},
			},
			approvals: approvals,
			cmds:      `{"type":"execute_single_action"}` + "\n",
		})

		code := h.orch.RunNewSession(context.Background(), "list the directory")

		Expect(code).To(Equal(orchestrator.ExitNormal))
		Expect(h.eventsOfType("request_approval")).To(HaveLen(1))
	})
})

var _ = Describe("Scenario 5: user denies mid-stream", func() {
	It("emits a cancelled result then a cancelled final_summary and terminates the run", func() {
		approvals := testutil.NewScriptedApprovals().Deny()
		h := newHarness(harnessConfig{
			workDir:      tempDir().Path,
			plannerReply: "cd /tmp\nls",
			executorReplies: []*model.Completion{
				{ToolCalls: []model.ToolCallProposal{{ID: "c1", ToolName: "shell_tool", Arguments: `{"command":"cd /tmp"}`}}},
				{ToolCalls: []model.ToolCallProposal{{ID: "c2", ToolName: "shell_tool", Arguments: `{"command":"pwd"}`}}},
			},
			approvals: approvals,
			cmds:      `{"type":"execute_recipe"}` + "\n",
		})

		code := h.orch.RunNewSession(context.Background(), "look around /tmp")

		Expect(code).To(Equal(orchestrator.ExitNormal))
		results := h.eventsOfType("result")
		Expect(len(results)).To(BeNumerically(">=", 1))
		last := results[len(results)-1]
		Expect(last["status"]).To(Equal(emitter.ResultCancelled))
		finals := h.eventsOfType("final_summary")
		Expect(finals).To(HaveLen(1))
		Expect(finals[0]["status"]).To(Equal(emitter.SummaryCancelled))
	})
})

var _ = Describe("Scenario 6: resume", func() {
	It("resumes the cursor at the persisted position and auto-approves only the remaining steps", func() {
		priorState := session.State{
			ConversationHistory: []session.HistoryEntry{},
			ExecutedActions: []session.ExecutedAction{
				{Tool: "shell_tool", Action: "step one", Result: "ok", Timestamp: "2026-07-30T00:00:00Z"},
			},
			CurrentRecipe: []session.RecipeStep{
				{Description: "first", Action: "echo one", Tool: session.ToolShell},
				{Description: "second", Action: "echo two", Tool: session.ToolShell},
				{Description: "third", Action: "echo three", Tool: session.ToolShell},
			},
			RecipePreapproved: true,
			StepIdx:           1,
			SubcmdIdx:         0,
		}

		h := newHarness(harnessConfig{
			workDir: tempDir().Path,
			executorReplies: []*model.Completion{
				{ToolCalls: []model.ToolCallProposal{{ID: "c1", ToolName: "shell_tool", Arguments: `{"command":"echo two"}`}}},
				{ToolCalls: []model.ToolCallProposal{{ID: "c2", ToolName: "shell_tool", Arguments: `{"command":"echo three"}`}}},
				{Content: "Finished the remaining steps.", Done: true},
			},
			cmds:       `{"type":"execute_recipe"}` + "\n",
			priorState: priorState,
		})

		stepIdx, subcmdIdx := h.sess.Cursor()
		Expect(stepIdx).To(Equal(1))
		Expect(subcmdIdx).To(Equal(0))

		code := h.orch.RunResumedSession(context.Background())

		Expect(code).To(Equal(orchestrator.ExitNormal))
		Expect(h.eventsOfType("request_approval")).To(BeEmpty())
		finals := h.eventsOfType("final_summary")
		Expect(finals).To(HaveLen(1))
		Expect(finals[0]["status"]).To(Equal(emitter.SummarySuccess))
	})
})

var _ = Describe("boundary: approval reply is not valid JSON", func() {
	It("treats the malformed reply as an IPC failure and terminates the run deterministically", func() {
		badApprovals := testutil.NewScriptedApprovals().Fail(errors.New("not valid json"))
		h := newHarness(harnessConfig{
			workDir:      tempDir().Path,
			plannerReply: "cd /tmp\nls",
			executorReplies: []*model.Completion{
				{ToolCalls: []model.ToolCallProposal{{ID: "c1", ToolName: "shell_tool", Arguments: `{"command":"cd /tmp"}`}}},
				{ToolCalls: []model.ToolCallProposal{{ID: "c2", ToolName: "shell_tool", Arguments: `{"command":"pwd"}`}}},
			},
			approvals: badApprovals,
			cmds:      `{"type":"execute_recipe"}` + "\n",
		})

		code := h.orch.RunNewSession(context.Background(), "look around /tmp")

		Expect(code).To(Equal(orchestrator.ExitNormal))
		Expect(h.eventTypes()).To(ContainElement("error"))
	})
})
