package agents

import (
	"context"

	"github.com/atelier-lab/archmentor/internal/phase"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// Response type labels carried on agent output
const (
	ResponseSocraticQuestion    = "socratic_question"
	ResponseDeferral            = "deferral"
	ResponseKnowledge           = "knowledge_response"
	ResponseExamples            = "example_response"
	ResponseCognitiveProtection = "cognitive_protection_response"
	ResponseAnalysis            = "analysis"
	ResponseGamified            = "gamified_challenge"
)

// Response is one agent's contribution to an assistant turn
type Response struct {
	Text         string
	ResponseType string
	Metadata     map[string]any
	Gamification *models.GamificationView
}

// AgentContext is the read-only view an agent receives. Agents never mutate
// session state; the orchestrator applies all state changes after the
// pipeline runs.
type AgentContext struct {
	Session        *session.Session
	UserText       string
	LastAssistant  string
	Classification *models.RoutingDecision
	Analysis       *AnalysisResult
	ExpertResponse *Response // set when the Domain-Expert carried the previous assistant turn
	NextQuestion   *phase.Question
	ImageAnalysis  string
}

// Agent is the capability every pipeline member exposes
type Agent interface {
	Name() string
	GenerateResponse(ctx context.Context, ac *AgentContext) (*Response, error)
}
