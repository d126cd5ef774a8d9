package agents

import (
	"context"
	"log/slog"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/gamify"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// CognitiveAgent hosts the gamification decider and content generator. When a
// challenge applies, its payload replaces the turn's prose; text-only
// interventions ride back as guidance for the Socratic agent instead.
type CognitiveAgent struct {
	cfg       *config.Config
	decider   *gamify.Decider
	generator *gamify.Generator
	logger    *slog.Logger
}

// NewCognitiveAgent creates the cognitive-enhancement agent
func NewCognitiveAgent(cfg *config.Config, decider *gamify.Decider, generator *gamify.Generator, logger *slog.Logger) *CognitiveAgent {
	return &CognitiveAgent{
		cfg:       cfg,
		decider:   decider,
		generator: generator,
		logger:    logger.With("agent", "cognitive"),
	}
}

// Name implements Agent
func (a *CognitiveAgent) Name() string { return "cognitive" }

// GenerateResponse decides on and, if warranted, generates a challenge
func (a *CognitiveAgent) GenerateResponse(ctx context.Context, ac *AgentContext) (*Response, error) {
	sig := gamify.Signals{
		ExpertGaveExamples: ac.ExpertResponse != nil && ac.ExpertResponse.ResponseType == ResponseExamples,
		AnsweringSocratic:  ac.Classification != nil && ac.Classification.Path == models.RouteSocraticFocus,
		DeepeningStage:     ac.Session.UserTurnCount() > 4,
	}

	decision := a.decider.Decide(ac.Session, ac.UserText, sig)
	if !decision.Apply {
		return &Response{
			ResponseType: ResponseGamified,
			Metadata:     map[string]any{"applied": false, "reason": decision.Reason},
		}, nil
	}

	if !decision.ChallengeType.Interactive() {
		// Text-only stances are handled by the Socratic strategy layer; this
		// response only records the detection.
		return &Response{
			ResponseType: ResponseGamified,
			Metadata: map[string]any{
				"applied":        false,
				"text_only":      true,
				"challenge_type": decision.ChallengeType,
			},
		}, nil
	}

	view := a.generator.Generate(ctx, ac.Session, decision.ChallengeType, ac.UserText)
	if view == nil {
		return &Response{
			ResponseType: ResponseGamified,
			Metadata:     map[string]any{"applied": false, "reason": "generation unavailable"},
		}, nil
	}

	return &Response{
		Text:         challengeIntro(decision.ChallengeType),
		ResponseType: ResponseGamified,
		Metadata:     map[string]any{"applied": true, "challenge_type": decision.ChallengeType},
		Gamification: view,
	}, nil
}

func challengeIntro(ct models.ChallengeType) string {
	switch ct {
	case models.ChallengeRolePlay:
		return "Let's test your design from the inside. Pick a persona and walk the building as them:"
	case models.ChallengePerspectiveShift:
		return "Before settling on an answer, try your question from a few other vantage points:"
	case models.ChallengeDetective:
		return "There's a mystery in how people use spaces like yours. See if you can solve it:"
	case models.ChallengeConstraint:
		return "Time to pressure-test the design. Each of these constraints is now real; choose one and respond:"
	case models.ChallengeStorytelling:
		return "Let's hear your building tell its own story, one chapter at a time:"
	case models.ChallengeTimeTravel:
		return "Step into the building's timeline and see how your decisions age:"
	case models.ChallengeTransformation:
		return "Buildings outlive their first program. See how yours handles a change of use:"
	}
	return "Here's a challenge to push the design further:"
}
