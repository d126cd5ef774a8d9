package session

import (
	"time"

	"github.com/atelier-lab/archmentor/pkg/models"
)

// Snapshot is the serializable state of a session, written to disk so a
// process restart does not lose a participant's run. Caches, memoized views,
// and in-game sub-state are deliberately excluded: they are reproducible or
// turn-scoped, and a restored session starts its next turn clean.
type Snapshot struct {
	ID             string                          `json:"id"`
	ParticipantID  string                          `json:"participant_id"`
	Arm            models.Arm                      `json:"arm"`
	CreatedAt      time.Time                       `json:"created_at"`
	SavedAt        time.Time                       `json:"saved_at"`
	Closed         bool                            `json:"closed"`
	CurrentPhase   models.Phase                    `json:"current_phase"`
	Turns          []Turn                          `json:"turns"`
	Progress       map[models.Phase]*PhaseProgress `json:"progress"`
	FiredTasks     []models.TaskType               `json:"fired_tasks"`
	BuildingType   string                          `json:"building_type,omitempty"`
	GamesPlayed    int                             `json:"games_played"`
	LastGameTurn   int                             `json:"last_game_user_turn"`
	UserTurns      int                             `json:"user_turns"`
	AskedQuestions []string                        `json:"asked_questions,omitempty"`
}

// Snapshot captures the session's durable state. The caller holds the session
// via Begin/End.
func (s *Session) Snapshot() *Snapshot {
	progress := make(map[models.Phase]*PhaseProgress, len(s.progress))
	for p, prog := range s.progress {
		cp := *prog
		cp.CompletedSteps = append([]string(nil), prog.CompletedSteps...)
		cp.Scores = append([]float64(nil), prog.Scores...)
		progress[p] = &cp
	}

	asked := make([]string, 0, len(s.askedQuestions))
	for q := range s.askedQuestions {
		asked = append(asked, q)
	}

	return &Snapshot{
		ID:             s.id,
		ParticipantID:  s.participantID,
		Arm:            s.arm,
		CreatedAt:      s.createdAt,
		SavedAt:        time.Now(),
		Closed:         s.closed,
		CurrentPhase:   s.currentPhase,
		Turns:          s.Turns(),
		Progress:       progress,
		FiredTasks:     s.TasksFired(),
		BuildingType:   s.buildingType,
		GamesPlayed:    s.gamesPlayed,
		LastGameTurn:   s.lastGameUserTurn,
		UserTurns:      s.userTurnCount,
		AskedQuestions: asked,
	}
}

// Restore rebuilds a live session from a snapshot and registers it in the
// store under its original id. An already-registered id is left untouched.
func (st *Store) Restore(snap *Snapshot) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.sessions[snap.ID]; ok {
		return existing
	}

	s := newSession(snap.ParticipantID, snap.Arm)
	s.id = snap.ID
	s.createdAt = snap.CreatedAt
	s.closed = snap.Closed
	s.currentPhase = snap.CurrentPhase
	s.turns = append([]Turn(nil), snap.Turns...)
	s.buildingType = snap.BuildingType
	s.gamesPlayed = snap.GamesPlayed
	s.lastGameUserTurn = snap.LastGameTurn
	s.userTurnCount = snap.UserTurns

	for p, prog := range snap.Progress {
		cp := *prog
		s.progress[p] = &cp
	}
	for _, tt := range snap.FiredTasks {
		s.firedTasks[tt] = true
		s.tasksFired = append(s.tasksFired, tt)
	}
	for _, q := range snap.AskedQuestions {
		s.askedQuestions[q] = true
	}

	st.sessions[s.id] = s
	st.logger.Info("Session restored",
		"session_id", s.id,
		"participant_id", s.participantID,
		"phase", s.currentPhase,
		"turns", len(s.turns))
	return s
}
