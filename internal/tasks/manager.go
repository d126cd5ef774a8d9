package tasks

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// trigger binds a task type to its firing predicate. Threshold triggers fire
// when completion crosses into the band; event triggers fire on their event.
type trigger struct {
	taskType models.TaskType
	phase    models.Phase
	low      float64 // band is [low, high)
	high     float64 // <= 0 means unbounded above
	onImage  bool    // fires on image upload instead of a band crossing
	arms     []models.Arm
}

func (tr trigger) inBand(completion float64) bool {
	if completion < tr.low {
		return false
	}
	if tr.high > 0 && completion >= tr.high {
		return false
	}
	return true
}

func (tr trigger) matchesArm(arm models.Arm) bool {
	if len(tr.arms) == 0 {
		return true
	}
	for _, a := range tr.arms {
		if a == arm {
			return true
		}
	}
	return false
}

// triggers is the static predicate table. Low-bound tasks are additionally
// reachable through phase entry so they can fire at 0% of a fresh phase.
var triggers = []trigger{
	{taskType: models.TaskArchitecturalConcept, phase: models.PhaseIdeation, low: 0, high: 30},
	{taskType: models.TaskSpatialProgram, phase: models.PhaseIdeation, low: 30},
	{taskType: models.TaskVisualAnalysis2D, phase: models.PhaseVisualization, low: 0, high: 40},
	{taskType: models.TaskEnvironmentalContextual, phase: models.PhaseVisualization, low: 40},
	{taskType: models.TaskSpatialAnalysis3D, phase: models.PhaseMaterialization, low: 0, high: 50},
	{taskType: models.TaskRealizationImplementation, phase: models.PhaseMaterialization, low: 50, high: 55},
	{taskType: models.TaskDesignEvolution, phase: models.PhaseMaterialization, low: 55, high: 65},
	{taskType: models.TaskKnowledgeTransfer, phase: models.PhaseMaterialization, low: 65},
	{taskType: models.TaskVisualConceptualization, phase: models.PhaseVisualization, onImage: true},
}

// Input carries one turn's worth of trigger context
type Input struct {
	Phase            models.Phase
	CompletionBefore float64
	CompletionAfter  float64
	PhaseEntered     bool // this turn transitioned into Phase
	ImageUploaded    bool
	ImageAnalysis    string
	Arm              models.Arm
}

// Manager surfaces one-shot pedagogical tasks at completion thresholds.
// It only mutates the session task queue; rendering belongs to the UI.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewManager creates the task trigger manager
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.With("component", "task_manager"),
	}
}

// CheckTriggers evaluates the trigger table for one user turn and enqueues at
// most one new task, bound to the upcoming assistant turn. Returns the task
// if one fired.
func (m *Manager) CheckTriggers(sess *session.Session, in Input) *models.Task {
	for _, tr := range triggers {
		if tr.phase != in.Phase {
			continue
		}
		if sess.TaskFired(tr.taskType) {
			continue
		}
		if !tr.matchesArm(in.Arm) {
			continue
		}
		if !m.fires(tr, in) {
			continue
		}

		task := models.Task{
			ID:             uuid.NewString(),
			Type:           tr.taskType,
			Phase:          tr.phase,
			Framing:        framingFor(tr.taskType, in.Arm, in.ImageAnalysis),
			RenderingHints: renderingHints[tr.taskType],
			BoundTurnIndex: sess.NextTurnIndex() + 1,
		}
		sess.EnqueueTask(task)
		m.logger.Info("Task fired",
			"session_id", sess.ID(),
			"task_type", tr.taskType,
			"phase", in.Phase,
			"completion_before", in.CompletionBefore,
			"completion_after", in.CompletionAfter,
			"bound_turn_index", task.BoundTurnIndex)
		return &task
	}
	return nil
}

func (m *Manager) fires(tr trigger, in Input) bool {
	if tr.onImage {
		return in.ImageUploaded
	}
	if in.PhaseEntered && m.cfg.Tasks.FireOnPhaseEntry() && tr.inBand(in.CompletionAfter) {
		return true
	}
	return tr.inBand(in.CompletionAfter) && !tr.inBand(in.CompletionBefore)
}

// renderingHints tell the UI which widget shape suits each task
var renderingHints = map[models.TaskType]string{
	models.TaskArchitecturalConcept:      "concept_card",
	models.TaskSpatialProgram:            "program_matrix",
	models.TaskVisualConceptualization:   "image_annotation",
	models.TaskVisualAnalysis2D:          "drawing_overlay",
	models.TaskEnvironmentalContextual:   "site_diagram",
	models.TaskSpatialAnalysis3D:         "model_viewer",
	models.TaskRealizationImplementation: "detail_checklist",
	models.TaskDesignEvolution:           "timeline_board",
	models.TaskKnowledgeTransfer:         "reflection_journal",
}

type framingPair struct {
	socratic string
	direct   string
}

var framings = map[models.TaskType]framingPair{
	models.TaskArchitecturalConcept: {
		socratic: "Before we go further: if you had to defend your central idea to a skeptical client in one sentence, what would you say?",
		direct:   "Write a one-sentence concept statement that captures the central idea of your design.",
	},
	models.TaskSpatialProgram: {
		socratic: "Which two spaces in your program would suffer most if they were separated? Sketch out why their adjacency matters.",
		direct:   "List your key spaces with approximate areas and mark the adjacencies that matter most.",
	},
	models.TaskVisualConceptualization: {
		socratic: "Looking at what you just uploaded: which single move in this image carries your concept, and which parts are working against it?",
		direct:   "Annotate the uploaded image: identify the strongest design move and one area to revise.",
	},
	models.TaskVisualAnalysis2D: {
		socratic: "Pick one plan or section you have drawn. What does it reveal that no other drawing could, and what is it hiding?",
		direct:   "Select your most informative plan or section and describe the three key spatial moves it shows.",
	},
	models.TaskEnvironmentalContextual: {
		socratic: "Trace the sun across your site on a summer afternoon. Where does your design welcome it, and where does it fight it?",
		direct:   "Diagram how sunlight, wind, and views reach your building through the day and seasons.",
	},
	models.TaskSpatialAnalysis3D: {
		socratic: "Choose the most spatially ambitious moment in your design. How would you prove in three dimensions that it actually works?",
		direct:   "Model or sketch your most complex spatial moment in 3D, showing structure and enclosure.",
	},
	models.TaskRealizationImplementation: {
		socratic: "If the budget were cut by a third tomorrow, which parts of your design would you protect at all costs, and why those?",
		direct:   "Rank the elements of your design by construction priority and note the cost drivers.",
	},
	models.TaskDesignEvolution: {
		socratic: "Lay your earliest sketch next to your current design. What survived, what died, and what does that tell you about your priorities?",
		direct:   "Compare your first and current design iterations and list the three biggest changes.",
	},
	models.TaskKnowledgeTransfer: {
		socratic: "Imagine advising a younger student starting this same brief. Which hard-won lesson from your process would you give them first?",
		direct:   "Summarize the three most transferable lessons from your design process.",
	},
}

func framingFor(t models.TaskType, arm models.Arm, imageAnalysis string) string {
	pair := framings[t]
	switch arm {
	case models.ArmMentor:
		if t == models.TaskVisualConceptualization && imageAnalysis != "" {
			return fmt.Sprintf("%s Here is what stands out in your image: %s", pair.socratic, imageAnalysis)
		}
		return pair.socratic
	case models.ArmGeneric:
		return pair.direct
	default:
		// Control arm gets the minimal prompt.
		return fmt.Sprintf("Task: %s.", t)
	}
}
