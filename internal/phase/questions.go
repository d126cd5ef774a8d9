package phase

import "github.com/atelier-lab/archmentor/pkg/models"

// Question is a rubric-anchored prompt bound to a phase and a step within it.
// Keywords are hint tags for the heuristic checklist; they are not used for
// scoring.
type Question struct {
	ID       string
	Phase    models.Phase
	Step     string
	Text     string
	Keywords []string
	Rubric   map[string]float64 // dimension -> weight; weights sum to 1
}

// catalog is the static question bank bound at session init. Order within a
// phase is the curriculum order of its steps.
var catalog = []Question{
	{
		ID:       "idea-concept",
		Phase:    models.PhaseIdeation,
		Step:     "design_concept",
		Text:     "What is the central idea driving your design, and what makes it specific to this project rather than any other?",
		Keywords: []string{"concept", "idea", "parti", "vision", "driving"},
		Rubric:   map[string]float64{"clarity": 0.3, "depth": 0.4, "specificity": 0.3},
	},
	{
		ID:       "idea-site",
		Phase:    models.PhaseIdeation,
		Step:     "site_context",
		Text:     "How do the conditions of your site - orientation, neighbors, access, climate - shape the decisions you are making?",
		Keywords: []string{"site", "context", "orientation", "climate", "access", "neighborhood"},
		Rubric:   map[string]float64{"site_awareness": 0.4, "depth": 0.3, "specificity": 0.3},
	},
	{
		ID:       "idea-program",
		Phase:    models.PhaseIdeation,
		Step:     "spatial_program",
		Text:     "Walk me through the spatial program: which activities need space, how much, and which adjacencies matter most?",
		Keywords: []string{"program", "spaces", "rooms", "adjacency", "square", "area", "functions"},
		Rubric:   map[string]float64{"completeness": 0.4, "reasoning": 0.4, "clarity": 0.2},
	},
	{
		ID:       "idea-users",
		Phase:    models.PhaseIdeation,
		Step:     "user_experience",
		Text:     "Describe a day in the life of your primary users inside this building. Where do your assumptions about them come from?",
		Keywords: []string{"users", "people", "experience", "accessibility", "needs", "community"},
		Rubric:   map[string]float64{"empathy": 0.4, "depth": 0.3, "evidence": 0.3},
	},
	{
		ID:       "vis-form",
		Phase:    models.PhaseVisualization,
		Step:     "form_composition",
		Text:     "How does the massing and composition of your building express the concept you established in ideation?",
		Keywords: []string{"massing", "form", "volume", "composition", "geometry"},
		Rubric:   map[string]float64{"concept_link": 0.4, "clarity": 0.3, "depth": 0.3},
	},
	{
		ID:       "vis-drawings",
		Phase:    models.PhaseVisualization,
		Step:     "representation_2d",
		Text:     "Which drawings - plans, sections, elevations - best communicate your key spatial moves, and what does each reveal?",
		Keywords: []string{"plan", "section", "elevation", "drawing", "sketch", "diagram"},
		Rubric:   map[string]float64{"representation": 0.4, "reasoning": 0.3, "specificity": 0.3},
	},
	{
		ID:       "vis-environment",
		Phase:    models.PhaseVisualization,
		Step:     "environmental_context",
		Text:     "How does your design respond to light, ventilation, and the seasonal behavior of its environment?",
		Keywords: []string{"light", "daylight", "ventilation", "shading", "energy", "seasonal", "sun"},
		Rubric:   map[string]float64{"environmental_thinking": 0.5, "specificity": 0.3, "depth": 0.2},
	},
	{
		ID:       "vis-materials",
		Phase:    models.PhaseVisualization,
		Step:     "material_palette",
		Text:     "What materials define the character of your spaces, and why those materials for this building and these users?",
		Keywords: []string{"material", "texture", "concrete", "timber", "brick", "palette", "finish"},
		Rubric:   map[string]float64{"reasoning": 0.4, "coherence": 0.3, "specificity": 0.3},
	},
	{
		ID:       "mat-3d",
		Phase:    models.PhaseMaterialization,
		Step:     "spatial_resolution_3d",
		Text:     "Pick the most complex spatial moment in your design. How is it resolved in three dimensions - structure, enclosure, and sequence?",
		Keywords: []string{"3d", "model", "spatial", "sequence", "detail", "junction"},
		Rubric:   map[string]float64{"resolution": 0.4, "integration": 0.3, "depth": 0.3},
	},
	{
		ID:       "mat-structure",
		Phase:    models.PhaseMaterialization,
		Step:     "structural_system",
		Text:     "What structural system carries your building, and where does it discipline or liberate the architecture?",
		Keywords: []string{"structure", "column", "beam", "span", "load", "grid", "frame"},
		Rubric:   map[string]float64{"technical_grasp": 0.4, "integration": 0.3, "clarity": 0.3},
	},
	{
		ID:       "mat-realization",
		Phase:    models.PhaseMaterialization,
		Step:     "realization_detail",
		Text:     "If construction started next month, which three details would you resolve first, and what could go wrong with each?",
		Keywords: []string{"construction", "detail", "budget", "schedule", "buildability", "tolerance"},
		Rubric:   map[string]float64{"pragmatism": 0.4, "risk_awareness": 0.3, "specificity": 0.3},
	},
	{
		ID:       "mat-reflection",
		Phase:    models.PhaseMaterialization,
		Step:     "design_reflection",
		Text:     "Looking back across the whole process: what would you carry into your next project, and what would you do differently?",
		Keywords: []string{"reflection", "learned", "evolution", "process", "transfer", "next"},
		Rubric:   map[string]float64{"reflection": 0.4, "transfer": 0.3, "honesty": 0.3},
	},
}

// Catalog returns the full static question bank
func Catalog() []Question {
	out := make([]Question, len(catalog))
	copy(out, catalog)
	return out
}

// QuestionsForPhase returns the questions of one phase in curriculum order
func QuestionsForPhase(p models.Phase) []Question {
	var out []Question
	for _, q := range catalog {
		if q.Phase == p {
			out = append(out, q)
		}
	}
	return out
}

// QuestionByID looks up a question in the catalog
func QuestionByID(id string) (Question, bool) {
	for _, q := range catalog {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// StepCount returns the number of curriculum steps in a phase
func StepCount(p models.Phase) int {
	return len(QuestionsForPhase(p))
}
