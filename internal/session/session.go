package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-lab/archmentor/pkg/models"
)

// ErrTerminal is returned when a turn is appended to a closed session
var ErrTerminal = errors.New("session is terminal")

// Role identifies the author of a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// GamificationMeta records whether and how a game replaced an assistant
// turn's prose
type GamificationMeta struct {
	Applied       bool                 `json:"applied"`
	ChallengeType models.ChallengeType `json:"challenge_type,omitempty"`
	Payload       any                  `json:"payload,omitempty"`
}

// Turn is an immutable record appended per role action
type Turn struct {
	Index        int                     `json:"index"`
	Role         Role                    `json:"role"`
	Text         string                  `json:"text"`
	EnhancedText string                  `json:"enhanced_text,omitempty"` // server-side only; never rendered
	Timestamp    time.Time               `json:"timestamp"`
	RoutingMeta  *models.RoutingDecision `json:"routing_meta,omitempty"`
	Gamification *GamificationMeta       `json:"gamification_meta,omitempty"`
	ImageRef     string                  `json:"image_ref,omitempty"`
}

// PhaseProgress tracks curriculum progress within one phase
type PhaseProgress struct {
	CompletionPercent     float64   `json:"completion_percent"`
	CompletedSteps        []string  `json:"completed_steps"`
	Completed             bool      `json:"completed"`
	Scores                []float64 `json:"scores"`
	OutstandingQuestionID string    `json:"outstanding_question_id,omitempty"`
}

// AverageScore returns the mean of the recorded answer scores
func (p *PhaseProgress) AverageScore() float64 {
	if len(p.Scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range p.Scores {
		sum += s
	}
	return sum / float64(len(p.Scores))
}

// transitionKey deduplicates phase-transition side effects. The turn index is
// part of the key so a UI rerun of the same turn stays a no-op while a
// legitimate later transition is not masked.
type transitionKey struct {
	prev      models.Phase
	next      models.Phase
	turnIndex int
}

// gameKey scopes per-game interaction sub-state
type gameKey struct {
	challengeType models.ChallengeType
	contentHash   string
}

// pendingImage tracks the most recently uploaded image and how many turns
// its vision analysis has been bundled into
type pendingImage struct {
	ref         string
	analysis    string
	bundlesUsed int
}

// Session owns everything for one participant run. All methods require the
// caller to hold the session via Begin/End: the turn pipeline is cooperative
// and processes one turn to completion at a time.
type Session struct {
	mu sync.Mutex

	id            string
	participantID string
	arm           models.Arm
	createdAt     time.Time
	closed        bool

	turns        []Turn
	currentPhase models.Phase
	progress     map[models.Phase]*PhaseProgress

	cache                map[string]any
	processedTransitions map[transitionKey]bool
	taskQueue            []models.Task
	firedTasks           map[models.TaskType]bool
	pending              *pendingImage
	gameState            map[gameKey]map[string]any
	memoizedViews        map[int]*models.AssistantTurnView
	askedQuestions       map[string]bool

	buildingType     string
	userTurnCount    int
	lastGameUserTurn int
	gamesPlayed      int
	tasksFired       []models.TaskType
}

func newSession(participantID string, arm models.Arm) *Session {
	s := &Session{
		id:                   uuid.NewString(),
		participantID:        participantID,
		arm:                  arm,
		createdAt:            time.Now(),
		currentPhase:         models.PhaseIdeation,
		progress:             make(map[models.Phase]*PhaseProgress),
		cache:                make(map[string]any),
		processedTransitions: make(map[transitionKey]bool),
		firedTasks:           make(map[models.TaskType]bool),
		gameState:            make(map[gameKey]map[string]any),
		memoizedViews:        make(map[int]*models.AssistantTurnView),
		askedQuestions:       make(map[string]bool),
		lastGameUserTurn:     -1,
	}
	for _, p := range []models.Phase{models.PhaseIdeation, models.PhaseVisualization, models.PhaseMaterialization} {
		s.progress[p] = &PhaseProgress{}
	}
	return s
}

// Begin acquires exclusive access for one turn of processing
func (s *Session) Begin() { s.mu.Lock() }

// End releases exclusive access
func (s *Session) End() { s.mu.Unlock() }

// ID returns the stable session id
func (s *Session) ID() string { return s.id }

// ParticipantID returns the participant this session belongs to
func (s *Session) ParticipantID() string { return s.participantID }

// Arm returns the test-condition tag
func (s *Session) Arm() models.Arm { return s.arm }

// CreatedAt returns the session start time
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// CurrentPhase returns the current curriculum phase
func (s *Session) CurrentPhase() models.Phase { return s.currentPhase }

// Progress returns the progress record for a phase
func (s *Session) Progress(phase models.Phase) *PhaseProgress {
	p, ok := s.progress[phase]
	if !ok {
		p = &PhaseProgress{}
		s.progress[phase] = p
	}
	return p
}

// AdvancePhase moves the session to next. Regression is ignored: the phase
// order is fixed and advancement is one-way.
func (s *Session) AdvancePhase(next models.Phase) {
	if phaseRank(next) <= phaseRank(s.currentPhase) {
		return
	}
	s.currentPhase = next
}

func phaseRank(p models.Phase) int {
	switch p {
	case models.PhaseIdeation:
		return 0
	case models.PhaseVisualization:
		return 1
	case models.PhaseMaterialization:
		return 2
	case models.PhaseComplete:
		return 3
	}
	return -1
}

// AppendUserTurn appends a user turn and returns its index
func (s *Session) AppendUserTurn(text, enhancedText, imageRef string) (int, error) {
	if s.closed {
		return 0, ErrTerminal
	}
	idx := len(s.turns)
	s.turns = append(s.turns, Turn{
		Index:        idx,
		Role:         RoleUser,
		Text:         text,
		EnhancedText: enhancedText,
		Timestamp:    time.Now(),
		ImageRef:     imageRef,
	})
	s.userTurnCount++
	return idx, nil
}

// AppendAssistantTurn appends an assistant turn with its metadata
func (s *Session) AppendAssistantTurn(text string, routing *models.RoutingDecision, gamification *GamificationMeta) (int, error) {
	if s.closed {
		return 0, ErrTerminal
	}
	idx := len(s.turns)
	s.turns = append(s.turns, Turn{
		Index:        idx,
		Role:         RoleAssistant,
		Text:         text,
		Timestamp:    time.Now(),
		RoutingMeta:  routing,
		Gamification: gamification,
	})
	if gamification != nil && gamification.Applied {
		s.gamesPlayed++
		s.lastGameUserTurn = s.userTurnCount
	}
	return idx, nil
}

// NextTurnIndex returns the index the next appended turn will receive
func (s *Session) NextTurnIndex() int { return len(s.turns) }

// Turns returns the full ordered transcript
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// RecentContext returns the last k turns in order
func (s *Session) RecentContext(k int) []Turn {
	if k <= 0 || len(s.turns) == 0 {
		return nil
	}
	start := len(s.turns) - k
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// LastAssistantText returns the text of the most recent assistant turn
func (s *Session) LastAssistantText() string {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant {
			return s.turns[i].Text
		}
	}
	return ""
}

// UserTurnCount returns the number of user turns appended so far
func (s *Session) UserTurnCount() int { return s.userTurnCount }

// MarkTransition records a phase transition side-effect key. It returns true
// the first time the key is seen; repeats return false so side effects run
// exactly once per transition per turn.
func (s *Session) MarkTransition(prev, next models.Phase, turnIndex int) bool {
	key := transitionKey{prev: prev, next: next, turnIndex: turnIndex}
	if s.processedTransitions[key] {
		return false
	}
	s.processedTransitions[key] = true
	return true
}

// EnqueueTask appends a fired task to the queue and records its type
func (s *Session) EnqueueTask(task models.Task) {
	s.taskQueue = append(s.taskQueue, task)
	s.firedTasks[task.Type] = true
	s.tasksFired = append(s.tasksFired, task.Type)
}

// TaskFired reports whether a task type has already fired in this session
func (s *Session) TaskFired(t models.TaskType) bool { return s.firedTasks[t] }

// TasksFired returns the ordered task types fired so far
func (s *Session) TasksFired() []models.TaskType {
	out := make([]models.TaskType, len(s.tasksFired))
	copy(out, s.tasksFired)
	return out
}

// CacheGet looks up a content-generator cache entry
func (s *Session) CacheGet(key string) (any, bool) {
	v, ok := s.cache[key]
	return v, ok
}

// CachePut stores a content-generator cache entry
func (s *Session) CachePut(key string, value any) { s.cache[key] = value }

// GameState returns the mutable interaction sub-state for one challenge,
// creating it on first access
func (s *Session) GameState(challengeType models.ChallengeType, contentHash string) map[string]any {
	key := gameKey{challengeType: challengeType, contentHash: contentHash}
	st, ok := s.gameState[key]
	if !ok {
		st = make(map[string]any)
		s.gameState[key] = st
	}
	return st
}

// GamesPlayed returns how many gamified turns have occurred
func (s *Session) GamesPlayed() int { return s.gamesPlayed }

// UserTurnsSinceLastGame returns the number of user turns since the last
// gamified reply, or -1 if no game has run yet
func (s *Session) UserTurnsSinceLastGame() int {
	if s.lastGameUserTurn < 0 {
		return -1
	}
	return s.userTurnCount - s.lastGameUserTurn
}

// SetPendingImage registers a newly uploaded image and its vision analysis
func (s *Session) SetPendingImage(ref, analysis string) {
	s.pending = &pendingImage{ref: ref, analysis: analysis}
}

// ConsumeImageBundle returns the stored vision analysis if the re-bundling
// budget allows another use, incrementing the counter. Returns "" once the
// cap is reached.
func (s *Session) ConsumeImageBundle(maxBundles int) string {
	if s.pending == nil || s.pending.bundlesUsed >= maxBundles {
		return ""
	}
	s.pending.bundlesUsed++
	return s.pending.analysis
}

// MemoizedView returns the assistant view already produced for a user turn
// index, if any. UI reruns replay the same turn and must observe identical
// output with no additional side effects.
func (s *Session) MemoizedView(userTurnIndex int) (*models.AssistantTurnView, bool) {
	v, ok := s.memoizedViews[userTurnIndex]
	return v, ok
}

// MemoizeView records the assistant view produced for a user turn index
func (s *Session) MemoizeView(userTurnIndex int, view *models.AssistantTurnView) {
	s.memoizedViews[userTurnIndex] = view
}

// QuestionAsked reports whether the Socratic agent already asked this exact
// question text in this session
func (s *Session) QuestionAsked(text string) bool { return s.askedQuestions[text] }

// MarkQuestionAsked records a question text so it is never repeated
func (s *Session) MarkQuestionAsked(text string) { s.askedQuestions[text] = true }

// SetBuildingType records the inferred project building type
func (s *Session) SetBuildingType(bt string) {
	if bt != "" && bt != "unknown" {
		s.buildingType = bt
	}
}

// BuildingType returns the inferred project building type, if known
func (s *Session) BuildingType() string { return s.buildingType }

// Close marks the session terminal; further appends fail with ErrTerminal
func (s *Session) Close() { s.closed = true }

// Closed reports whether the session is terminal
func (s *Session) Closed() bool { return s.closed }

// Summary builds the session summary written on reset or shutdown
func (s *Session) Summary() models.SessionSummary {
	phaseScores := make(map[models.Phase][]float64, len(s.progress))
	for phase, prog := range s.progress {
		if len(prog.Scores) > 0 {
			scores := make([]float64, len(prog.Scores))
			copy(scores, prog.Scores)
			phaseScores[phase] = scores
		}
	}
	return models.SessionSummary{
		SessionID:     s.id,
		ParticipantID: s.participantID,
		Arm:           s.arm,
		StartedAt:     s.createdAt,
		EndedAt:       time.Now(),
		TurnCount:     len(s.turns),
		FinalPhase:    s.currentPhase,
		PhaseScores:   phaseScores,
		TasksFired:    s.TasksFired(),
		GamesPlayed:   s.gamesPlayed,
	}
}
