package models

import "time"

// Phase represents a stage of the design curriculum
type Phase string

const (
	// PhaseIdeation is the opening phase: concept, program, and site thinking
	PhaseIdeation Phase = "ideation"
	// PhaseVisualization covers 2D representation and environmental context
	PhaseVisualization Phase = "visualization"
	// PhaseMaterialization covers 3D, realization, and knowledge transfer
	PhaseMaterialization Phase = "materialization"
	// PhaseComplete marks a finished session
	PhaseComplete Phase = "complete"
)

// Next returns the phase that follows p in the curriculum.
// Advancement is one-way; PhaseComplete is terminal.
func (p Phase) Next() Phase {
	switch p {
	case PhaseIdeation:
		return PhaseVisualization
	case PhaseVisualization:
		return PhaseMaterialization
	case PhaseMaterialization:
		return PhaseComplete
	}
	return PhaseComplete
}

// Arm identifies the experimental condition for a participant
type Arm string

const (
	// ArmMentor runs the full pipeline with automatic phase advancement
	ArmMentor Arm = "mentor"
	// ArmGeneric collapses routing to direct answers with manual advancement
	ArmGeneric Arm = "generic"
	// ArmControl serves only pre-authored prompts, never the LLM
	ArmControl Arm = "control"
)

// RoutingPath labels the orchestrator's pipeline decision
type RoutingPath string

const (
	RouteKnowledgeOnly    RoutingPath = "knowledge_only"
	RouteSocraticFocus    RoutingPath = "socratic_focus"
	RouteBalancedGuidance RoutingPath = "balanced_guidance"
	RouteDirectAnswer     RoutingPath = "direct_answer"
)

// ThreadType is the meta-classifier's label for a (last assistant, user) pair
type ThreadType string

const (
	ThreadExampleRequest       ThreadType = "EXAMPLE_REQUEST"
	ThreadAnswerContinuation   ThreadType = "ANSWER_CONTINUATION"
	ThreadTopicContinuation    ThreadType = "TOPIC_CONTINUATION"
	ThreadSocraticContinuation ThreadType = "SOCRATIC_CONTINUATION"
	ThreadNewTopic             ThreadType = "NEW_TOPIC"
)

// RoutingDecision is the orchestrator's per-turn output
type RoutingDecision struct {
	Path       RoutingPath `json:"path"`
	Agents     []string    `json:"agents"`
	Reason     string      `json:"reason"`
	Confidence float64     `json:"confidence"`
	ThreadType ThreadType  `json:"thread_type"`
}

// TaskType identifies a one-shot pedagogical activity
type TaskType string

const (
	TaskArchitecturalConcept      TaskType = "architectural_concept"
	TaskSpatialProgram            TaskType = "spatial_program"
	TaskVisualConceptualization   TaskType = "visual_conceptualization"
	TaskVisualAnalysis2D          TaskType = "visual_analysis_2d"
	TaskEnvironmentalContextual   TaskType = "environmental_contextual"
	TaskSpatialAnalysis3D         TaskType = "spatial_analysis_3d"
	TaskRealizationImplementation TaskType = "realization_implementation"
	TaskDesignEvolution           TaskType = "design_evolution"
	TaskKnowledgeTransfer         TaskType = "knowledge_transfer"
)

// Task is a pedagogical activity bound to an assistant turn
type Task struct {
	ID             string   `json:"id"`
	Type           TaskType `json:"task_type"`
	Phase          Phase    `json:"phase"`
	Framing        string   `json:"framing"`
	RenderingHints string   `json:"rendering_hints"`
	Displayed      bool     `json:"displayed"`
	BoundTurnIndex int      `json:"bound_turn_index"`
}

// DimensionScore is a single rubric dimension's grade with the grader's reasoning
type DimensionScore struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// GradeResult is the outcome of grading one answered question
type GradeResult struct {
	QuestionID string                    `json:"question_id"`
	Step       string                    `json:"step"`
	Dimensions map[string]DimensionScore `json:"dimensions"`
	Overall    float64                   `json:"overall"`
	Passed     bool                      `json:"passed"`
	Heuristic  bool                      `json:"heuristic"` // true when the LLM grader was unavailable
}

// PhaseTransition records an observed advancement between phases
type PhaseTransition struct {
	Previous Phase `json:"previous_phase"`
	New      Phase `json:"new_phase"`
}

// Example is a curated precedent returned by the knowledge search
type Example struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	URL     string   `json:"url"`
	Tags    []string `json:"tags"`
}

// GeneratedImage describes an image produced on a phase transition
type GeneratedImage struct {
	URL       string `json:"url"`
	Phase     Phase  `json:"phase"`
	Style     string `json:"style"`
	Prompt    string `json:"prompt"`
	LocalPath string `json:"local_path,omitempty"`
}

// GamificationView is the interactive portion of an assistant turn, if any
type GamificationView struct {
	ChallengeType ChallengeType `json:"challenge_type"`
	Payload       any           `json:"payload"`
}

// AssistantTurnView is what the chat layer renders for one assistant turn
type AssistantTurnView struct {
	TurnIndex       int               `json:"turn_index"`
	Text            string            `json:"text"`
	Gamification    *GamificationView `json:"gamification,omitempty"`
	GeneratedImage  *GeneratedImage   `json:"generated_image,omitempty"`
	Task            *Task             `json:"task,omitempty"`
	PhaseTransition *PhaseTransition  `json:"phase_transition,omitempty"`
}

// PhaseStatus summarizes curriculum progress for the UI
type PhaseStatus struct {
	CurrentPhase      Phase   `json:"current_phase"`
	CompletionPercent float64 `json:"completion_percent"`
	CompletedPhases   []Phase `json:"completed_phases"`
	TotalPhases       int     `json:"total_phases"`
}

// SessionSummary is written to session_summary_<id>.json on reset or shutdown
type SessionSummary struct {
	SessionID     string              `json:"session_id"`
	ParticipantID string              `json:"participant_id"`
	Arm           Arm                 `json:"arm"`
	StartedAt     time.Time           `json:"started_at"`
	EndedAt       time.Time           `json:"ended_at"`
	TurnCount     int                 `json:"turn_count"`
	FinalPhase    Phase               `json:"final_phase"`
	PhaseScores   map[Phase][]float64 `json:"phase_scores"`
	TasksFired    []TaskType          `json:"tasks_fired"`
	GamesPlayed   int                 `json:"games_played"`
}
