// Package testutil provides black-box test doubles for the e2e suite:
// an in-memory session persister, a scripted model adapter standing in for
// planner/executor/auditor calls, and a scripted approval reader standing
// in for the front-end's user_approval_response replies. Nothing here talks
// to a real model provider or touches disk beyond the scratch directory a
// scenario creates with NewTempDir.
package testutil

import (
	"context"
	"errors"
	"os"

	"github.com/cloudwego/eino/schema"

	"github.com/robbiemu/og-supervisor/internal/model"
	"github.com/robbiemu/og-supervisor/internal/session"
)

// TempDir is a scratch directory for one scenario's shell/file tool calls.
type TempDir struct {
	Path string
}

// NewTempDir creates a fresh scratch directory under the OS temp root.
func NewTempDir() (*TempDir, error) {
	path, err := os.MkdirTemp("", "og-supervisor-e2e-*")
	if err != nil {
		return nil, err
	}
	return &TempDir{Path: path}, nil
}

// Cleanup removes the scratch directory and everything under it.
func (d *TempDir) Cleanup() {
	os.RemoveAll(d.Path)
}

// MemPersister discards nothing; it keeps every Save in memory, keyed by
// session hash, so a test can assert on what would have been written to
// disk without touching the filesystem.
type MemPersister struct {
	Saved map[string]session.State
}

func NewMemPersister() *MemPersister {
	return &MemPersister{Saved: map[string]session.State{}}
}

func (m *MemPersister) Save(hash string, state session.State) error {
	m.Saved[hash] = state
	return nil
}

// ScriptedAdapter replies with one canned Completion per call, in the order
// given; once exhausted it keeps returning the last one, so a step-bounded
// loop that keeps polling "are we done" converges rather than panicking on
// an out-of-range index.
type ScriptedAdapter struct {
	Replies []*model.Completion
	Calls   int
}

func NewScriptedAdapter(replies ...*model.Completion) *ScriptedAdapter {
	return &ScriptedAdapter{Replies: replies}
}

func (s *ScriptedAdapter) Complete(ctx context.Context, modelID string, params map[string]any, messages []*schema.Message) (*model.Completion, error) {
	if len(s.Replies) == 0 {
		return nil, errors.New("testutil.ScriptedAdapter: no replies configured")
	}
	idx := s.Calls
	if idx >= len(s.Replies) {
		idx = len(s.Replies) - 1
	}
	s.Calls++
	return s.Replies[idx], nil
}

// SafeVerdictText is a canned auditor reply classifying any action as safe.
const SafeVerdictText = "# SAFE: true\n# REASON: looks routine\n# EXPLANATION: no destructive side effects"

// UnsafeVerdictText is a canned auditor reply classifying any action as unsafe.
const UnsafeVerdictText = "# SAFE: false\n# REASON: destructive\n# EXPLANATION: this would delete data outside the workdir"

// ScriptedApprovals replies with one canned (approved, err) pair per call to
// ReadApproval, in order; a call past the end of the script is a test bug
// and returns an error rather than silently repeating.
type ScriptedApprovals struct {
	replies []approvalReply
	calls   int
}

type approvalReply struct {
	approved bool
	err      error
}

func NewScriptedApprovals() *ScriptedApprovals { return &ScriptedApprovals{} }

func (s *ScriptedApprovals) Approve() *ScriptedApprovals {
	s.replies = append(s.replies, approvalReply{approved: true})
	return s
}

func (s *ScriptedApprovals) Deny() *ScriptedApprovals {
	s.replies = append(s.replies, approvalReply{approved: false})
	return s
}

func (s *ScriptedApprovals) Fail(err error) *ScriptedApprovals {
	s.replies = append(s.replies, approvalReply{err: err})
	return s
}

func (s *ScriptedApprovals) ReadApproval() (bool, error) {
	if s.calls >= len(s.replies) {
		return false, errors.New("testutil.ScriptedApprovals: script exhausted")
	}
	r := s.replies[s.calls]
	s.calls++
	return r.approved, r.err
}

// StubApprovals always approves; it is the right default for scenarios
// where every tool call is expected to be auto-approved and the gate is
// never meant to be exercised.
type StubApprovals struct{}

func (StubApprovals) ReadApproval() (bool, error) { return true, nil }
