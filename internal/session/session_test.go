package session

import (
	"io"
	"log/slog"
	"testing"

	"github.com/atelier-lab/archmentor/pkg/models"
)

func testStore() *Store {
	return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTurnIndicesDenseAndMonotonic(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)

	for i := 0; i < 5; i++ {
		userIdx, err := s.AppendUserTurn("message", "", "")
		if err != nil {
			t.Fatalf("AppendUserTurn: %v", err)
		}
		asstIdx, err := s.AppendAssistantTurn("reply", nil, nil)
		if err != nil {
			t.Fatalf("AppendAssistantTurn: %v", err)
		}
		if asstIdx != userIdx+1 {
			t.Errorf("indices not dense: user=%d assistant=%d", userIdx, asstIdx)
		}
	}

	turns := s.Turns()
	for i, turn := range turns {
		if turn.Index != i {
			t.Errorf("turn %d has index %d", i, turn.Index)
		}
	}
}

func TestAppendToTerminalSession(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)
	s.Close()

	if _, err := s.AppendUserTurn("hello", "", ""); err != ErrTerminal {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
	if _, err := s.AppendAssistantTurn("hi", nil, nil); err != ErrTerminal {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
}

func TestPhaseNeverRegresses(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)

	s.AdvancePhase(models.PhaseVisualization)
	if s.CurrentPhase() != models.PhaseVisualization {
		t.Fatalf("phase = %s", s.CurrentPhase())
	}

	s.AdvancePhase(models.PhaseIdeation)
	if s.CurrentPhase() != models.PhaseVisualization {
		t.Errorf("phase regressed to %s", s.CurrentPhase())
	}

	s.AdvancePhase(models.PhaseMaterialization)
	s.AdvancePhase(models.PhaseComplete)
	if s.CurrentPhase() != models.PhaseComplete {
		t.Errorf("phase = %s", s.CurrentPhase())
	}
}

func TestMarkTransitionExactlyOnce(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)

	if !s.MarkTransition(models.PhaseIdeation, models.PhaseVisualization, 4) {
		t.Error("first mark should return true")
	}
	if s.MarkTransition(models.PhaseIdeation, models.PhaseVisualization, 4) {
		t.Error("repeat mark should return false")
	}
	// A later transition with a different key is independent.
	if !s.MarkTransition(models.PhaseVisualization, models.PhaseMaterialization, 9) {
		t.Error("distinct transition should return true")
	}
}

func TestRecentContextOrdering(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)
	_, _ = s.AppendUserTurn("one", "", "")
	_, _ = s.AppendAssistantTurn("two", nil, nil)
	_, _ = s.AppendUserTurn("three", "", "")

	recent := s.RecentContext(2)
	if len(recent) != 2 {
		t.Fatalf("len = %d", len(recent))
	}
	if recent[0].Text != "two" || recent[1].Text != "three" {
		t.Errorf("ordering wrong: %q, %q", recent[0].Text, recent[1].Text)
	}

	all := s.RecentContext(50)
	if len(all) != 3 {
		t.Errorf("oversized k should return all turns, got %d", len(all))
	}
}

func TestImageBundleCap(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)
	s.SetPendingImage("img-1", "a two-story warehouse facade")

	if got := s.ConsumeImageBundle(2); got == "" {
		t.Error("first bundle should succeed")
	}
	if got := s.ConsumeImageBundle(2); got == "" {
		t.Error("second bundle should succeed")
	}
	if got := s.ConsumeImageBundle(2); got != "" {
		t.Errorf("third bundle should be refused, got %q", got)
	}
}

func TestTaskFiredOncePerType(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)

	if s.TaskFired(models.TaskArchitecturalConcept) {
		t.Error("task should not be marked before enqueue")
	}
	s.EnqueueTask(models.Task{Type: models.TaskArchitecturalConcept})
	if !s.TaskFired(models.TaskArchitecturalConcept) {
		t.Error("task should be marked after enqueue")
	}
}

func TestGameCadenceTracking(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)

	if s.UserTurnsSinceLastGame() != -1 {
		t.Errorf("expected -1 before any game, got %d", s.UserTurnsSinceLastGame())
	}

	_, _ = s.AppendUserTurn("u1", "", "")
	_, _ = s.AppendAssistantTurn("game", nil, &GamificationMeta{Applied: true, ChallengeType: models.ChallengeConstraint})

	_, _ = s.AppendUserTurn("u2", "", "")
	_, _ = s.AppendUserTurn("u3", "", "")

	if got := s.UserTurnsSinceLastGame(); got != 2 {
		t.Errorf("UserTurnsSinceLastGame = %d, want 2", got)
	}
	if s.GamesPlayed() != 1 {
		t.Errorf("GamesPlayed = %d", s.GamesPlayed())
	}
}

func TestStoreResetRegeneratesID(t *testing.T) {
	store := testStore()
	s := store.Create("p1", models.ArmControl)
	oldID := s.ID()

	fresh, err := store.Reset(oldID)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if fresh.ID() == oldID {
		t.Error("reset should regenerate the session id")
	}
	if fresh.Arm() != models.ArmControl || fresh.ParticipantID() != "p1" {
		t.Error("reset should preserve participant and arm")
	}
	if !s.Closed() {
		t.Error("old session should be terminal after reset")
	}
	if _, err := store.Get(oldID); err == nil {
		t.Error("old id should no longer resolve")
	}
}

func TestMemoizedViewRoundTrip(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)

	if _, ok := s.MemoizedView(0); ok {
		t.Error("no view should exist yet")
	}
	view := &models.AssistantTurnView{TurnIndex: 1, Text: "reply"}
	s.MemoizeView(0, view)
	got, ok := s.MemoizedView(0)
	if !ok || got != view {
		t.Error("memoized view not returned")
	}
}

func TestQuestionDeduplication(t *testing.T) {
	s := testStore().Create("p1", models.ArmMentor)
	q := "What is the big idea behind your design?"

	if s.QuestionAsked(q) {
		t.Error("question should not be marked initially")
	}
	s.MarkQuestionAsked(q)
	if !s.QuestionAsked(q) {
		t.Error("question should be marked after asking")
	}
}
