package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/atelier-lab/archmentor/pkg/models"
)

// Store holds the live sessions for this process. Sessions are per-participant
// and per-process; there is no persistent multi-user database behind this.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewStore creates an empty session store
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "session_store"),
	}
}

// Create starts a new session for a participant under the given arm
func (st *Store) Create(participantID string, arm models.Arm) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := newSession(participantID, arm)
	st.sessions[s.id] = s
	st.logger.Info("Session created",
		"session_id", s.id,
		"participant_id", participantID,
		"arm", arm)
	return s
}

// Get returns the session with the given id
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", id)
	}
	return s, nil
}

// Reset destroys the session's state and replaces it with a fresh session for
// the same participant and arm. The new session id is returned; any in-flight
// work against the old session observes it as terminal.
func (st *Store) Reset(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	old, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", id)
	}
	old.Close()
	delete(st.sessions, id)

	fresh := newSession(old.participantID, old.arm)
	st.sessions[fresh.id] = fresh
	st.logger.Info("Session reset",
		"old_session_id", id,
		"new_session_id", fresh.id)
	return fresh, nil
}

// All returns the live sessions (used at shutdown to flush summaries)
func (st *Store) All() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}
