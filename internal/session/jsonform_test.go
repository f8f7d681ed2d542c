package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONForm_ReadMissingFileIsErrJSONFormNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.json")
	require.False(t, jsonFormExists(path))
	_, err := readJSONForm(path)
	require.ErrorIs(t, err, ErrJSONFormNotFound)
}

func TestJSONForm_WriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash1.json")
	state := State{
		ConversationHistory: []HistoryEntry{{Role: "user", Content: "install curl"}},
		CurrentRecipe: []RecipeStep{
			{Description: "install", Action: "apt-get install -y curl", Tool: ToolShell},
		},
		ExecutedActions:  []ExecutedAction{},
		OriginalQuery:    "install curl",
		IsSingleStepPlan: true,
		StepIdx:          1,
	}

	require.NoError(t, writeJSONForm(path, state))
	require.True(t, jsonFormExists(path))

	got, err := readJSONForm(path)
	require.NoError(t, err)
	require.Equal(t, state, got)
}

func TestJSONForm_WriteTwiceOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash1.json")

	require.NoError(t, writeJSONForm(path, State{OriginalQuery: "first"}))
	require.NoError(t, writeJSONForm(path, State{OriginalQuery: "second"}))

	got, err := readJSONForm(path)
	require.NoError(t, err)
	require.Equal(t, "second", got.OriginalQuery)

	entries, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, entries, "no leftover .tmp file after a successful rename")
}
