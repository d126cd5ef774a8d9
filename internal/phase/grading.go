package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/util"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// Grader scores free-text answers against a question's rubric using the LLM,
// with a local heuristic fallback when the grader model is unavailable.
type Grader struct {
	cfg       *config.Config
	completer api.Completer
	logger    *slog.Logger
}

// NewGrader creates a rubric grader
func NewGrader(cfg *config.Config, completer api.Completer, logger *slog.Logger) *Grader {
	return &Grader{
		cfg:       cfg,
		completer: completer,
		logger:    logger.With("component", "grader"),
	}
}

// Grade scores an answer to q. The returned result always carries an overall
// score in [0,5]; a grader failure degrades to the heuristic, never to an
// error reaching the turn loop.
func (g *Grader) Grade(ctx context.Context, q Question, answer string) *models.GradeResult {
	if g.completer != nil {
		result, err := g.gradeWithLLM(ctx, q, answer)
		if err == nil {
			return result
		}
		g.logger.Warn("LLM grading failed, using heuristic",
			"question_id", q.ID,
			"error", err)
	}
	return g.gradeHeuristically(q, answer)
}

func (g *Grader) gradeWithLLM(ctx context.Context, q Question, answer string) (*models.GradeResult, error) {
	dims := make([]string, 0, len(q.Rubric))
	for dim := range q.Rubric {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	prompt, err := util.RenderTemplate(g.cfg.PromptTemplates.GradeRubric, map[string]interface{}{
		"Phase":      string(q.Phase),
		"Step":       q.Step,
		"Question":   q.Text,
		"Answer":     answer,
		"Dimensions": strings.Join(dims, ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render grading template: %w", err)
	}

	content, err := g.completer.Complete(ctx, g.cfg.Model("grader"), []api.Message{
		{Role: "user", Content: prompt},
	}, true)
	if err != nil {
		return nil, err
	}

	scores, err := parseGradeResponse(content)
	if err != nil {
		g.logger.Error("Failed to parse grade response",
			"question_id", q.ID,
			"response_length", len(content),
			"error", err)
		return nil, fmt.Errorf("failed to parse grade response: %w", err)
	}

	overall := weightedMean(scores, q.Rubric)
	return &models.GradeResult{
		QuestionID: q.ID,
		Step:       q.Step,
		Dimensions: scores,
		Overall:    overall,
		Passed:     overall >= g.cfg.Grading.PassThreshold,
	}, nil
}

func parseGradeResponse(response string) (map[string]models.DimensionScore, error) {
	jsonStr := util.ExtractJSON(response)
	jsonStr = util.SanitizeJSON(jsonStr)

	var raw map[string]models.DimensionScore
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("grader returned no dimensions")
	}
	for dim, score := range raw {
		score.Score = clampScore(score.Score)
		raw[dim] = score
	}
	return raw, nil
}

// weightedMean computes the rubric-weighted overall score. Dimensions the
// model returned but the rubric does not name fall back to equal weighting so
// a chatty grader cannot skew the result.
func weightedMean(scores map[string]models.DimensionScore, rubric map[string]float64) float64 {
	weightTotal := 0.0
	sum := 0.0
	for dim, score := range scores {
		weight, ok := rubric[dim]
		if !ok {
			weight = 1.0 / float64(len(scores))
		}
		sum += score.Score * weight
		weightTotal += weight
	}
	if weightTotal == 0 {
		return 0
	}
	return clampScore(sum / weightTotal)
}

// gradeHeuristically is the local fallback: length and keyword coverage give
// a coarse 0-5 signal so the curriculum keeps moving without the LLM.
func (g *Grader) gradeHeuristically(q Question, answer string) *models.GradeResult {
	tokens := util.TokenCount(answer)
	lower := strings.ToLower(answer)

	score := 0.0
	switch {
	case tokens >= 60:
		score = 3.5
	case tokens >= 25:
		score = 3.0
	case tokens >= 10:
		score = 2.0
	default:
		score = 1.0
	}

	hits := 0
	for _, kw := range q.Keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits >= 2 {
		score += 1.0
	} else if hits == 1 {
		score += 0.5
	}
	score = clampScore(score)

	return &models.GradeResult{
		QuestionID: q.ID,
		Step:       q.Step,
		Dimensions: map[string]models.DimensionScore{
			"heuristic": {Score: score, Reasoning: fmt.Sprintf("%d tokens, %d keyword hits", tokens, hits)},
		},
		Overall:   score,
		Passed:    score >= g.cfg.Grading.PassThreshold,
		Heuristic: true,
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 5 {
		return 5
	}
	return s
}
