package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/util"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// AnalysisResult is the structural read of a student message. It informs the
// other agents; phase state stays with the engine regardless of the
// hypothesis recorded here.
type AnalysisResult struct {
	BuildingType          string   `json:"building_type"`
	ProgramRequirements   []string `json:"program_requirements"`
	CognitiveChallenges   []string `json:"cognitive_challenges"`
	LearningOpportunities []string `json:"learning_opportunities"`
	MissingConsiderations []string `json:"missing_considerations"`
	PhaseHypothesis       string   `json:"phase_hypothesis"`
}

// AnalysisAgent produces the structural analysis for a turn
type AnalysisAgent struct {
	cfg       *config.Config
	completer api.Completer
	logger    *slog.Logger
}

// NewAnalysisAgent creates the analysis agent
func NewAnalysisAgent(cfg *config.Config, completer api.Completer, logger *slog.Logger) *AnalysisAgent {
	return &AnalysisAgent{
		cfg:       cfg,
		completer: completer,
		logger:    logger.With("agent", "analysis"),
	}
}

// Name implements Agent
func (a *AnalysisAgent) Name() string { return "analysis" }

// GenerateResponse runs the structural analysis. The result rides in the
// response metadata; there is no student-facing text.
func (a *AnalysisAgent) GenerateResponse(ctx context.Context, ac *AgentContext) (*Response, error) {
	result := a.Analyze(ctx, ac.UserText)
	return &Response{
		ResponseType: ResponseAnalysis,
		Metadata:     map[string]any{"analysis": result},
	}, nil
}

// Analyze extracts the structural read of a user message, degrading to a
// keyword heuristic when the LLM is unavailable.
func (a *AnalysisAgent) Analyze(ctx context.Context, userText string) *AnalysisResult {
	if a.completer != nil {
		result, err := a.analyzeWithLLM(ctx, userText)
		if err == nil {
			return result
		}
		a.logger.Warn("LLM analysis failed, using heuristic", "error", err)
	}
	return analyzeHeuristically(userText)
}

func (a *AnalysisAgent) analyzeWithLLM(ctx context.Context, userText string) (*AnalysisResult, error) {
	prompt, err := util.RenderTemplate(a.cfg.PromptTemplates.AnalysisSummary, map[string]interface{}{
		"UserMessage": util.TruncateString(userText, 800),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render analysis template: %w", err)
	}

	content, err := a.completer.Complete(ctx, a.cfg.Model("classifier"), []api.Message{
		{Role: "user", Content: prompt},
	}, true)
	if err != nil {
		return nil, err
	}

	jsonStr := util.SanitizeJSON(util.ExtractJSON(content))
	var result AnalysisResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if result.BuildingType == "" {
		result.BuildingType = "unknown"
	}
	return &result, nil
}

// buildingTypeKeywords maps recognizable program words to a building type
var buildingTypeKeywords = []struct {
	keyword      string
	buildingType string
}{
	{"community center", "community center"},
	{"community centre", "community center"},
	{"museum", "museum"},
	{"library", "library"},
	{"school", "school"},
	{"housing", "housing"},
	{"apartment", "housing"},
	{"market", "market hall"},
	{"theater", "theater"},
	{"theatre", "theater"},
	{"gallery", "gallery"},
	{"pavilion", "pavilion"},
	{"office", "office building"},
	{"warehouse", "warehouse conversion"},
}

func analyzeHeuristically(userText string) *AnalysisResult {
	lower := strings.ToLower(userText)

	buildingType := "unknown"
	for _, entry := range buildingTypeKeywords {
		if strings.Contains(lower, entry.keyword) {
			buildingType = entry.buildingType
			break
		}
	}

	hypothesis := string(models.PhaseIdeation)
	switch {
	case strings.Contains(lower, "detail") || strings.Contains(lower, "structure") || strings.Contains(lower, "construction"):
		hypothesis = string(models.PhaseMaterialization)
	case strings.Contains(lower, "drawing") || strings.Contains(lower, "section") || strings.Contains(lower, "massing") || strings.Contains(lower, "material"):
		hypothesis = string(models.PhaseVisualization)
	}

	return &AnalysisResult{
		BuildingType:          buildingType,
		LearningOpportunities: []string{"articulate the reasoning behind the current design move"},
		MissingConsiderations: []string{"how the move reads from the user's point of view"},
		PhaseHypothesis:       hypothesis,
	}
}
