package phase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/internal/util"
	"github.com/atelier-lab/archmentor/pkg/models"
)

const (
	// MinAnswerTokens is the minimum length of a substantive answer to an
	// outstanding question; shorter utterances are not graded.
	MinAnswerTokens = 8

	// completionBase is the share of completion_percent earned by steps;
	// the remainder is the score bonus.
	completionBase  = 90.0
	completionBonus = 10.0
)

// metaRefusals are utterances that look long enough to grade but decline to
// engage; grading them would punish honesty.
var metaRefusals = []string{
	"i don't know",
	"i dont know",
	"no idea",
	"you tell me",
	"just give me the answer",
	"skip this",
	"i give up",
}

// Result is the outcome of processing one user message through the engine
type Result struct {
	CurrentPhase     models.Phase            `json:"current_phase"`
	QuestionAnswered bool                    `json:"question_answered"`
	Grade            *models.GradeResult     `json:"grade,omitempty"`
	PhaseComplete    bool                    `json:"phase_complete"`
	SessionComplete  bool                    `json:"session_complete"`
	PhaseTransition  *models.PhaseTransition `json:"phase_transition,omitempty"`
	NewPhase         models.Phase            `json:"new_phase,omitempty"`
	Nudge            string                  `json:"nudge,omitempty"`
}

// Engine drives the three-phase curriculum: it owns grading, completion
// accounting, and phase advancement.
type Engine struct {
	cfg    *config.Config
	grader *Grader
	logger *slog.Logger

	// lastProcessed memoizes results by (session, user turn index) so
	// re-processing the same turn is a no-op.
	lastProcessed map[string]processedTurn
}

type processedTurn struct {
	turnIndex int
	result    *Result
}

// NewEngine creates the phase progression engine
func NewEngine(cfg *config.Config, grader *Grader, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:           cfg,
		grader:        grader,
		logger:        logger.With("component", "phase_engine"),
		lastProcessed: make(map[string]processedTurn),
	}
}

// ProcessUserMessage grades the utterance against the outstanding question,
// updates completion, and advances the phase when its steps are exhausted.
// autoAdvance is false for arms restricted to manual advancement. Calling it
// twice for the same turn index returns the memoized result unchanged.
func (e *Engine) ProcessUserMessage(ctx context.Context, sess *session.Session, turnIndex int, text string, autoAdvance bool) *Result {
	if prev, ok := e.lastProcessed[sess.ID()]; ok && prev.turnIndex == turnIndex {
		return prev.result
	}

	currentPhase := sess.CurrentPhase()
	result := &Result{CurrentPhase: currentPhase}

	if currentPhase == models.PhaseComplete {
		result.SessionComplete = true
		e.memoize(sess.ID(), turnIndex, result)
		return result
	}

	prog := sess.Progress(currentPhase)

	if prog.OutstandingQuestionID != "" && IsSubstantiveAnswer(text) {
		if q, ok := QuestionByID(prog.OutstandingQuestionID); ok {
			grade := e.grader.Grade(ctx, q, text)
			result.QuestionAnswered = true
			result.Grade = grade

			prog.Scores = append(prog.Scores, grade.Overall)
			prog.OutstandingQuestionID = ""

			if grade.Passed {
				e.markStepCompleted(prog, q.Step)
			} else {
				result.Nudge = nudgeFor(q, grade)
			}
			e.recomputeCompletion(currentPhase, prog)

			e.logger.Info("Answer graded",
				"session_id", sess.ID(),
				"question_id", q.ID,
				"score", grade.Overall,
				"passed", grade.Passed,
				"heuristic", grade.Heuristic,
				"completion", prog.CompletionPercent)
		}
	}

	if len(prog.CompletedSteps) >= StepCount(currentPhase) && !prog.Completed {
		prog.Completed = true
		prog.CompletionPercent = 100
		result.PhaseComplete = true

		if autoAdvance {
			next := currentPhase.Next()
			sess.AdvancePhase(next)
			result.PhaseTransition = &models.PhaseTransition{Previous: currentPhase, New: next}
			result.NewPhase = next
			result.SessionComplete = next == models.PhaseComplete
			e.logger.Info("Phase advanced",
				"session_id", sess.ID(),
				"previous", currentPhase,
				"new", next)
		}
	}

	e.memoize(sess.ID(), turnIndex, result)
	return result
}

// AdvancePhaseManually bypasses grading for the generic and control arms.
// The reason is logged separately to preserve research validity.
func (e *Engine) AdvancePhaseManually(sess *session.Session, reason string) (*models.PhaseTransition, error) {
	current := sess.CurrentPhase()
	if current == models.PhaseComplete {
		return nil, fmt.Errorf("session already complete")
	}

	prog := sess.Progress(current)
	prog.Completed = true
	prog.CompletionPercent = 100

	next := current.Next()
	sess.AdvancePhase(next)

	e.logger.Info("Manual phase advancement",
		"session_id", sess.ID(),
		"previous", current,
		"new", next,
		"reason", reason)

	return &models.PhaseTransition{Previous: current, New: next}, nil
}

// ContextualQuestion returns the next unanswered question for the session's
// current phase, or nil when the phase is exhausted. The caller marks the
// question outstanding once it is actually asked.
func (e *Engine) ContextualQuestion(sess *session.Session) *Question {
	currentPhase := sess.CurrentPhase()
	if currentPhase == models.PhaseComplete {
		return nil
	}
	prog := sess.Progress(currentPhase)

	answered := make(map[string]bool)
	for _, step := range prog.CompletedSteps {
		answered[step] = true
	}

	for _, q := range QuestionsForPhase(currentPhase) {
		if answered[q.Step] {
			continue
		}
		if prog.OutstandingQuestionID == q.ID {
			continue
		}
		question := q
		return &question
	}
	return nil
}

// MarkOutstanding records that a question has been asked and awaits an answer
func (e *Engine) MarkOutstanding(sess *session.Session, questionID string) {
	sess.Progress(sess.CurrentPhase()).OutstandingQuestionID = questionID
}

// OutstandingQuestion returns the question currently awaiting an answer
func (e *Engine) OutstandingQuestion(sess *session.Session) *Question {
	id := sess.Progress(sess.CurrentPhase()).OutstandingQuestionID
	if id == "" {
		return nil
	}
	if q, ok := QuestionByID(id); ok {
		return &q
	}
	return nil
}

// UpdateChecklistFromInteraction opportunistically marks curriculum steps
// whose keywords appear substantively in the exchange. It never supersedes
// grading: no score is recorded and completion only moves by the step base.
func (e *Engine) UpdateChecklistFromInteraction(sess *session.Session, userText, assistantText string) []string {
	currentPhase := sess.CurrentPhase()
	if currentPhase == models.PhaseComplete {
		return nil
	}
	prog := sess.Progress(currentPhase)
	combined := strings.ToLower(userText + " " + assistantText)

	var delta []string
	for _, q := range QuestionsForPhase(currentPhase) {
		if containsStep(prog.CompletedSteps, q.Step) {
			continue
		}
		hits := 0
		for _, kw := range q.Keywords {
			if strings.Contains(combined, kw) {
				hits++
			}
		}
		// Three distinct keyword hits is strong evidence the step was
		// genuinely discussed, not mentioned in passing.
		if hits >= 3 {
			e.markStepCompleted(prog, q.Step)
			delta = append(delta, q.Step)
		}
	}
	if len(delta) > 0 {
		e.recomputeCompletion(currentPhase, prog)
	}
	return delta
}

// Status summarizes curriculum progress for the UI
func (e *Engine) Status(sess *session.Session) models.PhaseStatus {
	var completed []models.Phase
	for _, p := range []models.Phase{models.PhaseIdeation, models.PhaseVisualization, models.PhaseMaterialization} {
		if sess.Progress(p).Completed {
			completed = append(completed, p)
		}
	}
	current := sess.CurrentPhase()
	percent := 100.0
	if current != models.PhaseComplete {
		percent = sess.Progress(current).CompletionPercent
	}
	return models.PhaseStatus{
		CurrentPhase:      current,
		CompletionPercent: percent,
		CompletedPhases:   completed,
		TotalPhases:       3,
	}
}

func (e *Engine) markStepCompleted(prog *session.PhaseProgress, step string) {
	if containsStep(prog.CompletedSteps, step) {
		return
	}
	prog.CompletedSteps = append(prog.CompletedSteps, step)
}

// recomputeCompletion derives completion_percent from completed steps plus a
// bonus for a strong score average. The result never decreases within a
// phase.
func (e *Engine) recomputeCompletion(p models.Phase, prog *session.PhaseProgress) {
	total := StepCount(p)
	if total == 0 {
		return
	}
	percent := float64(len(prog.CompletedSteps)) / float64(total) * completionBase
	if len(prog.Scores) > 0 && prog.AverageScore() >= e.cfg.Grading.BonusThreshold {
		percent += completionBonus
	}
	if percent > 100 {
		percent = 100
	}
	if percent > prog.CompletionPercent {
		prog.CompletionPercent = percent
	}
}

func (e *Engine) memoize(sessionID string, turnIndex int, result *Result) {
	e.lastProcessed[sessionID] = processedTurn{turnIndex: turnIndex, result: result}
}

// IsSubstantiveAnswer reports whether an utterance is long enough to grade
// and is not a meta-refusal
func IsSubstantiveAnswer(text string) bool {
	if util.TokenCount(text) < MinAnswerTokens {
		return false
	}
	lower := strings.ToLower(text)
	for _, refusal := range metaRefusals {
		if strings.Contains(lower, refusal) {
			return false
		}
	}
	return true
}

func nudgeFor(q Question, grade *models.GradeResult) string {
	return fmt.Sprintf(
		"You're on the right track with %s, but there's more depth to find here (%.1f/5). Try revisiting: %s",
		strings.ReplaceAll(q.Step, "_", " "), grade.Overall, q.Text)
}

func containsStep(steps []string, step string) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}
