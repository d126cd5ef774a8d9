package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/util"
)

// Socratic strategies, chosen per turn from the student's observed stance
const (
	StrategyClarifying     = "clarifying_guidance"
	StrategySupportive     = "supportive_guidance"
	StrategyChallenging    = "challenging_question"
	StrategyExploratory    = "exploratory_question"
	StrategyAssumption     = "assumption_challenge"
	StrategyDepthPromotion = "depth_promotion"
	StrategyAdaptive       = "adaptive_question"
)

// Detected intents behind a student message
const (
	IntentSharingInsights    = "sharing_insights"
	IntentAskingForInfo      = "asking_for_info"
	IntentRequestingExamples = "requesting_examples"
	IntentSeekingClarity     = "seeking_clarification"
)

var insightMarkers = []string{
	"i realized",
	"i realised",
	"i noticed",
	"i learned",
	"what i found",
	"it occurred to me",
	"i think the key is",
}

var clarificationMarkers = []string{
	"what do you mean",
	"i don't understand",
	"can you explain",
	"confused",
	"not sure what",
}

var exampleMarkers = []string{
	"example",
	"precedent",
	"reference project",
	"similar project",
	"case study",
}

var confidenceMarkers = []string{
	"obviously",
	"definitely",
	"of course",
	"i'm certain",
	"i am certain",
	"no doubt",
}

var uncertaintyMarkers = []string{
	"maybe",
	"i guess",
	"not sure",
	"i think perhaps",
	"possibly",
	"i'm unsure",
}

// SocraticAgent produces one question per turn, tailored to the student's
// stance. It never answers for the student and never repeats a question.
type SocraticAgent struct {
	cfg       *config.Config
	completer api.Completer
	logger    *slog.Logger
}

// NewSocraticAgent creates the Socratic tutor agent
func NewSocraticAgent(cfg *config.Config, completer api.Completer, logger *slog.Logger) *SocraticAgent {
	return &SocraticAgent{
		cfg:       cfg,
		completer: completer,
		logger:    logger.With("agent", "socratic"),
	}
}

// Name implements Agent
func (a *SocraticAgent) Name() string { return "socratic" }

// GenerateResponse produces the Socratic contribution for this turn
func (a *SocraticAgent) GenerateResponse(ctx context.Context, ac *AgentContext) (*Response, error) {
	intent := detectIntent(ac.UserText)

	// Example requests belong to the Domain-Expert; acknowledge and step
	// aside instead of re-asking a question over the request.
	if intent == IntentRequestingExamples && ac.ExpertResponse == nil {
		return &Response{
			Text:         "Good instinct to look at precedents. Let me pull some relevant projects for you.",
			ResponseType: ResponseDeferral,
			Metadata:     map[string]any{"intent": intent},
		}, nil
	}

	// The expert protecting against offloading means no follow-up question
	// about examples either; the protection text carries the turn.
	if ac.ExpertResponse != nil && ac.ExpertResponse.ResponseType == ResponseCognitiveProtection {
		return &Response{
			ResponseType: ResponseDeferral,
			Metadata:     map[string]any{"intent": intent, "suppressed_by": "cognitive_protection"},
		}, nil
	}

	strategy := chooseStrategy(ac, intent)
	question := a.formulateQuestion(ctx, ac, strategy, intent)

	return &Response{
		Text:         question,
		ResponseType: ResponseSocraticQuestion,
		Metadata:     map[string]any{"strategy": strategy, "intent": intent},
	}, nil
}

func detectIntent(userText string) string {
	lower := strings.ToLower(userText)
	for _, marker := range exampleMarkers {
		if strings.Contains(lower, marker) {
			return IntentRequestingExamples
		}
	}
	for _, marker := range insightMarkers {
		if strings.Contains(lower, marker) {
			return IntentSharingInsights
		}
	}
	for _, marker := range clarificationMarkers {
		if strings.Contains(lower, marker) {
			return IntentSeekingClarity
		}
	}
	if strings.Contains(lower, "?") {
		return IntentAskingForInfo
	}
	return IntentSharingInsights
}

func chooseStrategy(ac *AgentContext, intent string) string {
	lower := strings.ToLower(ac.UserText)
	words := util.TokenCount(ac.UserText)

	overconfident := containsAny(lower, confidenceMarkers)
	uncertain := containsAny(lower, uncertaintyMarkers)
	deepStage := ac.Session.UserTurnCount() > 4

	switch {
	case ac.ExpertResponse != nil && ac.ExpertResponse.ResponseType == ResponseExamples:
		// A question about the examples just given, never a generic one.
		return StrategyAdaptive
	case overconfident && words < 25:
		return StrategyAssumption
	case deepStage && words < 12:
		return StrategyDepthPromotion
	case intent == IntentSeekingClarity:
		return StrategyClarifying
	case intent == IntentSharingInsights && uncertain:
		return StrategySupportive
	case intent == IntentSharingInsights && words >= 40:
		return StrategyChallenging
	default:
		return StrategyExploratory
	}
}

func (a *SocraticAgent) formulateQuestion(ctx context.Context, ac *AgentContext, strategy, intent string) string {
	if a.completer != nil {
		question, err := a.questionFromLLM(ctx, ac, strategy, intent)
		if err == nil && question != "" && !ac.Session.QuestionAsked(question) {
			return question
		}
		if err != nil {
			a.logger.Warn("LLM question generation failed, using catalog", "error", err)
		}
	}
	return a.catalogQuestion(ac)
}

func (a *SocraticAgent) questionFromLLM(ctx context.Context, ac *AgentContext, strategy, intent string) (string, error) {
	guidance := ""
	switch {
	case ac.ExpertResponse != nil && ac.ExpertResponse.ResponseType == ResponseExamples:
		guidance = "The student was just shown these precedents:\n" + util.TruncateString(ac.ExpertResponse.Text, 600) +
			"\nAsk about what the precedents have in common or how one of them challenges the student's own design."
	case intent == IntentSharingInsights:
		guidance = "The student just shared an insight. Build directly on it; do not offer to teach what they already demonstrated."
	case strategy == StrategyAssumption:
		guidance = "The student sounds certain without much support. Gently question the assumption behind the claim."
	case strategy == StrategyDepthPromotion:
		guidance = "The student is answering superficially. Ask for the reasoning underneath the last statement."
	}

	projectContext := ac.Session.BuildingType()
	if ac.Analysis != nil && ac.Analysis.BuildingType != "" && ac.Analysis.BuildingType != "unknown" {
		projectContext = ac.Analysis.BuildingType
	}
	if projectContext == "" {
		projectContext = "an architecture studio project"
	}

	prompt, err := util.RenderTemplate(a.cfg.PromptTemplates.SocraticQuestion, map[string]interface{}{
		"Strategy":       strategy,
		"ProjectContext": projectContext,
		"Phase":          string(ac.Session.CurrentPhase()),
		"UserMessage":    util.TruncateString(ac.UserText, 600),
		"ExtraGuidance":  guidance,
		"AskedQuestions": recentQuestions(ac),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render question template: %w", err)
	}

	content, err := a.completer.Complete(ctx, a.cfg.Model("chat"), []api.Message{
		{Role: "user", Content: prompt},
	}, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// catalogQuestion falls back to the curriculum catalog, skipping anything
// already asked in this session
func (a *SocraticAgent) catalogQuestion(ac *AgentContext) string {
	if ac.NextQuestion != nil && !ac.Session.QuestionAsked(ac.NextQuestion.Text) {
		return ac.NextQuestion.Text
	}
	return fmt.Sprintf("What part of your %s phase thinking feels least resolved right now, and why?",
		ac.Session.CurrentPhase())
}

func recentQuestions(ac *AgentContext) string {
	var asked []string
	for _, turn := range ac.Session.RecentContext(8) {
		if turn.Role == "assistant" && strings.Contains(turn.Text, "?") {
			asked = append(asked, turn.Text)
		}
	}
	if len(asked) == 0 {
		return "(none yet)"
	}
	return strings.Join(asked, "\n")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
