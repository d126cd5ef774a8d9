package phase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// fixedGrader returns the same JSON grade for every call
type fixedGrader struct {
	response string
	err      error
	calls    int
}

func (f *fixedGrader) Complete(_ context.Context, _ config.ModelConfig, _ []api.Message, _ bool) (string, error) {
	f.calls++
	return f.response, f.err
}

func gradeJSON(score float64) string {
	return fmt.Sprintf(`{"clarity": {"score": %.1f, "reasoning": "ok"}, "depth": {"score": %.1f, "reasoning": "ok"}, "specificity": {"score": %.1f, "reasoning": "ok"}}`, score, score, score)
}

func testEngine(t *testing.T, completer api.Completer) (*Engine, *session.Session) {
	t.Helper()
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := NewEngine(cfg, NewGrader(cfg, completer, logger), logger)
	sess := session.NewStore(logger).Create("p1", models.ArmMentor)
	return eng, sess
}

func longAnswer(theme string) string {
	return strings.Repeat(theme+" ", 30)
}

func TestPassingAnswerCompletesStep(t *testing.T) {
	eng, sess := testEngine(t, &fixedGrader{response: gradeJSON(4.0)})

	eng.MarkOutstanding(sess, "idea-concept")
	res := eng.ProcessUserMessage(context.Background(), sess, 0, longAnswer("concept idea"), true)

	if !res.QuestionAnswered {
		t.Fatal("answer should have been graded")
	}
	if res.Grade == nil || !res.Grade.Passed {
		t.Fatalf("grade = %+v, want passed", res.Grade)
	}
	prog := sess.Progress(models.PhaseIdeation)
	if len(prog.CompletedSteps) != 1 || prog.CompletedSteps[0] != "design_concept" {
		t.Errorf("CompletedSteps = %v", prog.CompletedSteps)
	}
	if prog.CompletionPercent <= 0 {
		t.Errorf("completion should move, got %.1f", prog.CompletionPercent)
	}
	if res.Nudge != "" {
		t.Errorf("unexpected nudge: %q", res.Nudge)
	}
}

func TestFailingAnswerNudges(t *testing.T) {
	eng, sess := testEngine(t, &fixedGrader{response: gradeJSON(1.5)})

	eng.MarkOutstanding(sess, "idea-concept")
	res := eng.ProcessUserMessage(context.Background(), sess, 0, longAnswer("word"), true)

	if !res.QuestionAnswered {
		t.Fatal("answer should have been graded")
	}
	if res.Grade.Passed {
		t.Error("score 1.5 should not pass")
	}
	if res.Nudge == "" {
		t.Error("failing answer should produce a nudge")
	}
	if len(sess.Progress(models.PhaseIdeation).CompletedSteps) != 0 {
		t.Error("failing answer must not complete the step")
	}
}

func TestShortAnswerNotGraded(t *testing.T) {
	grader := &fixedGrader{response: gradeJSON(5.0)}
	eng, sess := testEngine(t, grader)

	eng.MarkOutstanding(sess, "idea-concept")
	res := eng.ProcessUserMessage(context.Background(), sess, 0, "yes sure", true)

	if res.QuestionAnswered {
		t.Error("a two-word reply should not be graded")
	}
	if grader.calls != 0 {
		t.Errorf("grader called %d times", grader.calls)
	}
}

func TestMetaRefusalNotGraded(t *testing.T) {
	grader := &fixedGrader{response: gradeJSON(5.0)}
	eng, sess := testEngine(t, grader)

	eng.MarkOutstanding(sess, "idea-concept")
	res := eng.ProcessUserMessage(context.Background(), sess, 0,
		"honestly I don't know, can you just tell me what the answer should be here", true)

	if res.QuestionAnswered {
		t.Error("a refusal should not be graded")
	}
	if grader.calls != 0 {
		t.Errorf("grader called %d times", grader.calls)
	}
}

func TestCompletionIsMonotone(t *testing.T) {
	eng, sess := testEngine(t, &fixedGrader{response: gradeJSON(4.5)})
	prog := sess.Progress(models.PhaseIdeation)

	last := 0.0
	turn := 0
	for _, id := range []string{"idea-concept", "idea-site", "idea-program"} {
		eng.MarkOutstanding(sess, id)
		eng.ProcessUserMessage(context.Background(), sess, turn, longAnswer("site program concept"), false)
		turn += 2
		if prog.CompletionPercent < last {
			t.Fatalf("completion decreased: %.1f -> %.1f", last, prog.CompletionPercent)
		}
		last = prog.CompletionPercent
	}
	// Three of four steps at a high average: 3/4*90 + 10.
	if want := 77.5; prog.CompletionPercent != want {
		t.Errorf("CompletionPercent = %.1f, want %.1f", prog.CompletionPercent, want)
	}
}

func TestPhaseAdvancesWhenStepsExhausted(t *testing.T) {
	eng, sess := testEngine(t, &fixedGrader{response: gradeJSON(4.0)})

	turn := 0
	var last *Result
	for _, id := range []string{"idea-concept", "idea-site", "idea-program", "idea-users"} {
		eng.MarkOutstanding(sess, id)
		last = eng.ProcessUserMessage(context.Background(), sess, turn, longAnswer("site users program concept"), true)
		turn += 2
	}

	if !last.PhaseComplete {
		t.Fatal("fourth pass should complete the phase")
	}
	if last.PhaseTransition == nil || last.PhaseTransition.New != models.PhaseVisualization {
		t.Fatalf("transition = %+v", last.PhaseTransition)
	}
	if sess.CurrentPhase() != models.PhaseVisualization {
		t.Errorf("phase = %s", sess.CurrentPhase())
	}
	if sess.Progress(models.PhaseIdeation).CompletionPercent != 100 {
		t.Error("completed phase should report 100")
	}
}

func TestNoAutoAdvanceHoldsPhase(t *testing.T) {
	eng, sess := testEngine(t, &fixedGrader{response: gradeJSON(4.0)})

	turn := 0
	var last *Result
	for _, id := range []string{"idea-concept", "idea-site", "idea-program", "idea-users"} {
		eng.MarkOutstanding(sess, id)
		last = eng.ProcessUserMessage(context.Background(), sess, turn, longAnswer("site users program concept"), false)
		turn += 2
	}

	if !last.PhaseComplete {
		t.Fatal("phase should be marked complete")
	}
	if last.PhaseTransition != nil {
		t.Error("no transition without auto advance")
	}
	if sess.CurrentPhase() != models.PhaseIdeation {
		t.Errorf("phase = %s, want ideation", sess.CurrentPhase())
	}
}

func TestProcessingIsIdempotentPerTurn(t *testing.T) {
	grader := &fixedGrader{response: gradeJSON(4.0)}
	eng, sess := testEngine(t, grader)

	eng.MarkOutstanding(sess, "idea-concept")
	first := eng.ProcessUserMessage(context.Background(), sess, 0, longAnswer("concept idea"), true)
	callsAfterFirst := grader.calls
	second := eng.ProcessUserMessage(context.Background(), sess, 0, longAnswer("concept idea"), true)

	if first != second {
		t.Error("replaying a turn should return the memoized result")
	}
	if grader.calls != callsAfterFirst {
		t.Error("replaying a turn should not re-grade")
	}
	if got := len(sess.Progress(models.PhaseIdeation).Scores); got != 1 {
		t.Errorf("scores recorded %d times", got)
	}
}

func TestHeuristicFallbackOnGraderError(t *testing.T) {
	eng, sess := testEngine(t, &fixedGrader{err: fmt.Errorf("upstream down")})

	eng.MarkOutstanding(sess, "idea-concept")
	answer := longAnswer("the driving concept is a courtyard parti shaped by the site")
	res := eng.ProcessUserMessage(context.Background(), sess, 0, answer, true)

	if !res.QuestionAnswered {
		t.Fatal("heuristic fallback should still grade")
	}
	if !res.Grade.Heuristic {
		t.Error("grade should be flagged heuristic")
	}
	if res.Grade.Overall < 0 || res.Grade.Overall > 5 {
		t.Errorf("score out of range: %.1f", res.Grade.Overall)
	}
}

func TestManualAdvancement(t *testing.T) {
	eng, sess := testEngine(t, nil)

	tr, err := eng.AdvancePhaseManually(sess, "participant request")
	if err != nil {
		t.Fatalf("AdvancePhaseManually: %v", err)
	}
	if tr.Previous != models.PhaseIdeation || tr.New != models.PhaseVisualization {
		t.Errorf("transition = %+v", tr)
	}

	eng.AdvancePhaseManually(sess, "participant request")
	eng.AdvancePhaseManually(sess, "participant request")
	if sess.CurrentPhase() != models.PhaseComplete {
		t.Fatalf("phase = %s", sess.CurrentPhase())
	}
	if _, err := eng.AdvancePhaseManually(sess, "again"); err == nil {
		t.Error("advancing a complete session should fail")
	}
}

func TestContextualQuestionSkipsCompletedAndOutstanding(t *testing.T) {
	eng, sess := testEngine(t, nil)

	q := eng.ContextualQuestion(sess)
	if q == nil || q.ID != "idea-concept" {
		t.Fatalf("first question = %+v", q)
	}
	eng.MarkOutstanding(sess, q.ID)

	q2 := eng.ContextualQuestion(sess)
	if q2 == nil || q2.ID == "idea-concept" {
		t.Fatalf("outstanding question offered again: %+v", q2)
	}

	prog := sess.Progress(models.PhaseIdeation)
	prog.CompletedSteps = []string{"design_concept", "site_context", "spatial_program", "user_experience"}
	if q3 := eng.ContextualQuestion(sess); q3 != nil {
		t.Errorf("exhausted phase returned %+v", q3)
	}
}

func TestChecklistUpdateFromKeywords(t *testing.T) {
	eng, sess := testEngine(t, nil)

	user := "The site slopes toward the river; orientation and access from the north edge drive the layout, and the climate pushes deep overhangs."
	delta := eng.UpdateChecklistFromInteraction(sess, user, "Good observations about the context.")

	if len(delta) != 1 || delta[0] != "site_context" {
		t.Fatalf("delta = %v", delta)
	}
	prog := sess.Progress(models.PhaseIdeation)
	if len(prog.Scores) != 0 {
		t.Error("checklist updates must not record scores")
	}

	// A passing mention of one keyword is not enough.
	delta = eng.UpdateChecklistFromInteraction(sess, "nice concept", "thanks")
	if len(delta) != 0 {
		t.Errorf("single keyword marked a step: %v", delta)
	}
}

func TestStatusSummarizesProgress(t *testing.T) {
	eng, sess := testEngine(t, nil)

	st := eng.Status(sess)
	if st.CurrentPhase != models.PhaseIdeation || st.CompletionPercent != 0 || st.TotalPhases != 3 {
		t.Errorf("status = %+v", st)
	}

	eng.AdvancePhaseManually(sess, "test")
	st = eng.Status(sess)
	if len(st.CompletedPhases) != 1 || st.CompletedPhases[0] != models.PhaseIdeation {
		t.Errorf("completed phases = %v", st.CompletedPhases)
	}
}
