package session

import (
	"errors"

	"github.com/robbiemu/og-supervisor/internal/config"
)

// Store implements the persistence policy of §4.2: on restore the compact
// multi-session archive is consulted first, then the single-session JSON
// form, then a blank session; on every mutation both forms are rewritten
// (the JSON form only when JSONEnabled, matching "optional and controlled by
// configuration"). Both forms use the same single-writer, atomic
// write-temp-then-rename discipline (§5: one orchestrator process owns a
// session_hash for the run's duration, so no cross-process locking is
// required for either form).
type Store struct {
	paths       *config.Paths
	archive     *Archive
	jsonEnabled bool
}

// NewStore creates the data directory at paths.Data if needed and loads the
// archive file (a missing file starts an empty archive; it is first written
// on the first Save).
func NewStore(paths *config.Paths, jsonEnabled bool) (*Store, error) {
	if err := paths.EnsureDataDir(); err != nil {
		return nil, err
	}
	archive, err := LoadArchive(paths.ArchivePath())
	if err != nil {
		return nil, err
	}
	return &Store{
		paths:       paths,
		archive:     archive,
		jsonEnabled: jsonEnabled,
	}, nil
}

// Exists reports whether a session_hash has any persisted state, archive
// form checked first per the restore policy.
func (st *Store) Exists(hash string) bool {
	if st.archive.Has(hash) {
		return true
	}
	return jsonFormExists(st.paths.SessionJSONPath(hash))
}

// Open restores a session, or returns a blank one if none is found in
// either storage form.
func (st *Store) Open(hash string) (*Session, error) {
	if state, ok := st.archive.Load(hash); ok {
		return New(hash, state, st), nil
	}

	state, err := readJSONForm(st.paths.SessionJSONPath(hash))
	if err != nil {
		if errors.Is(err, ErrJSONFormNotFound) {
			return New(hash, blankState(), st), nil
		}
		return nil, err
	}
	return New(hash, state, st), nil
}

// Save persists state in both configured forms, archive always, JSON only
// when enabled (§4.2 persistence policy).
func (st *Store) Save(hash string, state State) error {
	if err := st.archive.Save(hash, state); err != nil {
		return err
	}
	if st.jsonEnabled {
		return writeJSONForm(st.paths.SessionJSONPath(hash), state)
	}
	return nil
}
