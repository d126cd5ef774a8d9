package tasks

import (
	"io"
	"log/slog"
	"testing"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

func testManager(t *testing.T) (*Manager, *session.Session) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(config.Default(), logger),
		session.NewStore(logger).Create("p1", models.ArmMentor)
}

func TestBootstrapFiresArchitecturalConcept(t *testing.T) {
	m, sess := testManager(t)

	// A fresh session's first turn counts as entering ideation.
	task := m.CheckTriggers(sess, Input{
		Phase:        models.PhaseIdeation,
		PhaseEntered: true,
		Arm:          models.ArmMentor,
	})
	if task == nil || task.Type != models.TaskArchitecturalConcept {
		t.Fatalf("task = %+v, want architectural_concept at bootstrap", task)
	}
}

func TestFullIdeationRunReachesBothTasks(t *testing.T) {
	m, sess := testManager(t)

	steps := []struct {
		before, after float64
		entered       bool
	}{
		{0, 0, true},
		{0, 22.5, false},
		{22.5, 45, false},
		{45, 67.5, false},
		{67.5, 100, false},
	}
	fired := map[models.TaskType]bool{}
	for _, step := range steps {
		task := m.CheckTriggers(sess, Input{
			Phase:            models.PhaseIdeation,
			CompletionBefore: step.before,
			CompletionAfter:  step.after,
			PhaseEntered:     step.entered,
			Arm:              models.ArmMentor,
		})
		if task != nil {
			fired[task.Type] = true
		}
	}
	if !fired[models.TaskArchitecturalConcept] {
		t.Error("architectural_concept never fired over a full ideation run")
	}
	if !fired[models.TaskSpatialProgram] {
		t.Error("spatial_program never fired over a full ideation run")
	}
}

func TestLowBandFiresOnPhaseEntry(t *testing.T) {
	m, sess := testManager(t)

	task := m.CheckTriggers(sess, Input{
		Phase:            models.PhaseVisualization,
		CompletionBefore: 0,
		CompletionAfter:  0,
		PhaseEntered:     true,
		Arm:              models.ArmMentor,
	})
	if task == nil || task.Type != models.TaskVisualAnalysis2D {
		t.Fatalf("task = %+v, want visual_analysis_2d on phase entry", task)
	}
	if task.BoundTurnIndex != sess.NextTurnIndex()+1 {
		t.Errorf("BoundTurnIndex = %d", task.BoundTurnIndex)
	}
}

func TestBandCrossingFiresExactlyAtEdge(t *testing.T) {
	m, sess := testManager(t)

	// 25 -> 29.9 stays inside [0,30): nothing new.
	if task := m.CheckTriggers(sess, Input{
		Phase: models.PhaseIdeation, CompletionBefore: 25, CompletionAfter: 29.9, Arm: models.ArmMentor,
	}); task != nil {
		t.Errorf("movement within a band fired %s", task.Type)
	}

	// 29.9 -> 30 crosses into [30, inf).
	task := m.CheckTriggers(sess, Input{
		Phase: models.PhaseIdeation, CompletionBefore: 29.9, CompletionAfter: 30, Arm: models.ArmMentor,
	})
	if task == nil || task.Type != models.TaskSpatialProgram {
		t.Fatalf("task = %+v, want spatial_program at the 30 edge", task)
	}

	// Moving further within the band must not re-fire.
	if task := m.CheckTriggers(sess, Input{
		Phase: models.PhaseIdeation, CompletionBefore: 30, CompletionAfter: 55, Arm: models.ArmMentor,
	}); task != nil {
		t.Errorf("re-crossing within a band fired %s", task.Type)
	}
}

func TestMaterializationBandLadder(t *testing.T) {
	m, sess := testManager(t)

	steps := []struct {
		before, after float64
		want          models.TaskType
	}{
		{0, 0, models.TaskSpatialAnalysis3D},    // phase entry
		{45, 52, models.TaskRealizationImplementation},
		{52, 56, models.TaskDesignEvolution},
		{56, 70, models.TaskKnowledgeTransfer},
	}
	for i, step := range steps {
		task := m.CheckTriggers(sess, Input{
			Phase:            models.PhaseMaterialization,
			CompletionBefore: step.before,
			CompletionAfter:  step.after,
			PhaseEntered:     i == 0,
			Arm:              models.ArmMentor,
		})
		if task == nil || task.Type != step.want {
			t.Fatalf("step %d: task = %+v, want %s", i, task, step.want)
		}
	}
}

func TestTaskFiresOncePerSession(t *testing.T) {
	m, sess := testManager(t)

	in := Input{
		Phase: models.PhaseIdeation, CompletionBefore: 10, CompletionAfter: 35, Arm: models.ArmMentor,
	}
	first := m.CheckTriggers(sess, in)
	if first == nil {
		t.Fatal("first crossing should fire")
	}
	if second := m.CheckTriggers(sess, in); second != nil {
		t.Errorf("same crossing fired again: %s", second.Type)
	}
}

func TestAtMostOneTaskPerTurn(t *testing.T) {
	m, sess := testManager(t)

	// A jump that enters the phase and lands past 65 touches every band,
	// but only one task may fire on a single turn.
	task := m.CheckTriggers(sess, Input{
		Phase:            models.PhaseMaterialization,
		CompletionBefore: 0,
		CompletionAfter:  70,
		PhaseEntered:     true,
		Arm:              models.ArmMentor,
	})
	if task == nil {
		t.Fatal("a task should fire")
	}
	if fired := sess.TasksFired(); len(fired) != 1 {
		t.Errorf("fired %d tasks in one turn: %v", len(fired), fired)
	}
}

func TestImageUploadTriggersVisualConceptualization(t *testing.T) {
	m, sess := testManager(t)

	task := m.CheckTriggers(sess, Input{
		Phase:            models.PhaseVisualization,
		CompletionBefore: 10,
		CompletionAfter:  10,
		ImageUploaded:    true,
		ImageAnalysis:    "a strong diagonal section cut with a double-height void",
		Arm:              models.ArmMentor,
	})
	if task == nil || task.Type != models.TaskVisualConceptualization {
		t.Fatalf("task = %+v, want visual_conceptualization", task)
	}
	if task.Framing == "" {
		t.Error("image task should carry framing")
	}
}

func TestFramingVariesByArm(t *testing.T) {
	mentor := framingFor(models.TaskArchitecturalConcept, models.ArmMentor, "")
	generic := framingFor(models.TaskArchitecturalConcept, models.ArmGeneric, "")
	control := framingFor(models.TaskArchitecturalConcept, models.ArmControl, "")

	if mentor == generic || generic == control || mentor == control {
		t.Error("arms should receive distinct framings")
	}
	if len(control) >= len(mentor) {
		t.Error("control framing should be the minimal prompt")
	}
}
