package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrJSONFormNotFound is returned by readJSONForm when no per-session JSON
// file exists yet for a session_hash.
var ErrJSONFormNotFound = errors.New("session: json form not found")

// readJSONForm reads the optional human-readable per-session JSON form.
// There is no per-path locking here, unlike a server that might have many
// writers racing the same file: §5 states a session_hash is uniquely owned
// by one orchestrator process for the run's duration, so the only
// concurrency this file ever sees is this same process's own sequential
// writes, matching the archive's atomic-rewrite-on-mutate approach in
// archive.go.
func readJSONForm(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrJSONFormNotFound
		}
		return State{}, fmt.Errorf("reading session json %s: %w", path, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parsing session json %s: %w", path, err)
	}
	return state, nil
}

// writeJSONForm writes the per-session JSON form via the same write-temp,
// then rename pattern archive.go's writeAtomic uses.
func writeJSONForm(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session json: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp session json: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming session json into place: %w", err)
	}
	return nil
}

func jsonFormExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
