package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArchive_LoadArchive_MissingFileIsEmpty(t *testing.T) {
	a, err := LoadArchive(filepath.Join(t.TempDir(), "agent_states.ogarc"))
	require.NoError(t, err)
	require.False(t, a.Has("nope"))
}

func TestArchive_SaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_states.ogarc")
	a, err := LoadArchive(path)
	require.NoError(t, err)

	fallback := RecipeStep{Description: "fallback", Action: "echo rollback", Tool: ToolShell}
	state := State{
		ConversationHistory: []HistoryEntry{{Role: "user", Content: "install curl"}},
		CurrentRecipe: []RecipeStep{
			{Description: "install", Action: "apt-get install -y curl", Tool: ToolShell},
		},
		FallbackAction: &fallback,
		ExecutedActions: []ExecutedAction{
			{Tool: "shell_tool", Action: "apt-get update", Result: "ok", Timestamp: "1"},
		},
		OriginalQuery:     "install curl",
		IsSingleStepPlan:  true,
		RecipePreapproved: true,
		StepIdx:           1,
		SubcmdIdx:         0,
		DeviationOccurred: false,
	}

	require.NoError(t, a.Save("hash1", state))
	require.True(t, a.Has("hash1"))

	loaded, ok := a.Load("hash1")
	require.True(t, ok)
	require.Equal(t, state.OriginalQuery, loaded.OriginalQuery)
	require.Equal(t, state.IsSingleStepPlan, loaded.IsSingleStepPlan)
	require.Equal(t, state.RecipePreapproved, loaded.RecipePreapproved)
	require.Equal(t, state.StepIdx, loaded.StepIdx)
	require.Equal(t, state.ConversationHistory, loaded.ConversationHistory)
	require.Equal(t, state.CurrentRecipe, loaded.CurrentRecipe)
	require.Equal(t, state.ExecutedActions, loaded.ExecutedActions)
	require.Equal(t, *state.FallbackAction, *loaded.FallbackAction)
}

func TestArchive_SurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_states.ogarc")
	a, err := LoadArchive(path)
	require.NoError(t, err)

	state := blankState()
	state.OriginalQuery = "deploy app"
	require.NoError(t, a.Save("hash2", state))

	reloaded, err := LoadArchive(path)
	require.NoError(t, err)
	loaded, ok := reloaded.Load("hash2")
	require.True(t, ok)
	require.Equal(t, "deploy app", loaded.OriginalQuery)
}

func TestArchive_MultipleSessionsCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_states.ogarc")
	a, err := LoadArchive(path)
	require.NoError(t, err)

	s1 := blankState()
	s1.OriginalQuery = "first"
	s2 := blankState()
	s2.OriginalQuery = "second"

	require.NoError(t, a.Save("h1", s1))
	require.NoError(t, a.Save("h2", s2))

	l1, _ := a.Load("h1")
	l2, _ := a.Load("h2")
	require.Equal(t, "first", l1.OriginalQuery)
	require.Equal(t, "second", l2.OriginalQuery)
}
