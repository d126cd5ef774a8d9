package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/util"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// Searcher finds real project examples for a query. Implemented by the web
// search client; nil disables live precedent lookups.
type Searcher interface {
	SearchProjects(ctx context.Context, query string, maxResults int) ([]models.Example, error)
}

// protectionWindow counts recent example deliveries; once reached, the expert
// withholds further examples so the student cannot offload thinking onto the
// precedent stream.
const protectionWindow = 3

// ExpertAgent produces knowledge answers and curated project examples
type ExpertAgent struct {
	cfg       *config.Config
	completer api.Completer
	searcher  Searcher
	logger    *slog.Logger
}

// NewExpertAgent creates the domain-expert agent
func NewExpertAgent(cfg *config.Config, completer api.Completer, searcher Searcher, logger *slog.Logger) *ExpertAgent {
	return &ExpertAgent{
		cfg:       cfg,
		completer: completer,
		searcher:  searcher,
		logger:    logger.With("agent", "expert"),
	}
}

// Name implements Agent
func (a *ExpertAgent) Name() string { return "expert" }

// GenerateResponse answers a knowledge or example request
func (a *ExpertAgent) GenerateResponse(ctx context.Context, ac *AgentContext) (*Response, error) {
	isExampleRequest := ac.Classification != nil && ac.Classification.ThreadType == models.ThreadExampleRequest

	if isExampleRequest {
		if a.recentExampleCount(ac) >= protectionWindow {
			return a.protect(ac), nil
		}
		return a.provideExamples(ctx, ac), nil
	}
	return a.answerKnowledge(ctx, ac)
}

// recentExampleCount counts example deliveries in the recent window
func (a *ExpertAgent) recentExampleCount(ac *AgentContext) int {
	count := 0
	for _, turn := range ac.Session.RecentContext(10) {
		if turn.RoutingMeta != nil && turn.RoutingMeta.Path == models.RouteKnowledgeOnly {
			count++
		}
	}
	return count
}

// protect withholds examples to keep the student doing the design thinking
func (a *ExpertAgent) protect(ac *AgentContext) *Response {
	a.logger.Info("Withholding examples", "session_id", ac.Session.ID())
	return &Response{
		Text: "You've collected a solid set of precedents already. Before I add more: " +
			"which of the projects you've seen comes closest to what you're trying to do, and where does it fall short? " +
			"Answering that will tell you more than another example would.",
		ResponseType: ResponseCognitiveProtection,
		Metadata:     map[string]any{"withheld": true},
	}
}

func (a *ExpertAgent) provideExamples(ctx context.Context, ac *AgentContext) *Response {
	query := exampleQuery(ac)

	if a.searcher != nil {
		examples, err := a.searcher.SearchProjects(ctx, query, a.cfg.Search.MaxResults)
		if err == nil && len(examples) > 0 {
			return &Response{
				Text:         formatExamples(examples),
				ResponseType: ResponseExamples,
				Metadata:     map[string]any{"query": query, "source": "web_search", "count": len(examples)},
			}
		}
		if err != nil {
			a.logger.Warn("Example search failed, falling back to model knowledge",
				"query", query,
				"error", err)
		}
	}

	if a.completer != nil {
		text, err := a.knowledgeExamples(ctx, ac, query)
		if err == nil {
			return &Response{
				Text:         text,
				ResponseType: ResponseExamples,
				Metadata:     map[string]any{"query": query, "source": "model_knowledge"},
			}
		}
		a.logger.Warn("Knowledge example generation failed", "error", err)
	}

	return &Response{
		Text: fmt.Sprintf("Look at adaptive reuse precedents for %s: how they keep the original structure legible while layering the new program into it.",
			query),
		ResponseType: ResponseExamples,
		Metadata:     map[string]any{"query": query, "source": "static"},
	}
}

func (a *ExpertAgent) knowledgeExamples(ctx context.Context, ac *AgentContext, query string) (string, error) {
	prompt := fmt.Sprintf(
		"An architecture student working on %s asks for project precedents.\nTheir request: \"%s\"\n\nGive 2-3 real built projects as examples. For each: project name, architect, one sentence on why it is relevant to the student's design. No closing question.",
		util.EscapeQuotes(query), util.EscapeQuotes(util.TruncateString(ac.UserText, 400)))

	content, err := a.completer.Complete(ctx, a.cfg.Model("chat"), []api.Message{
		{Role: "user", Content: prompt},
	}, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (a *ExpertAgent) answerKnowledge(ctx context.Context, ac *AgentContext) (*Response, error) {
	if a.completer == nil {
		return &Response{
			Text:         "That touches on a technical area worth researching; describe what you already know about it and we can work from there.",
			ResponseType: ResponseKnowledge,
			Metadata:     map[string]any{"source": "static"},
		}, nil
	}

	contextText := ""
	if ac.Analysis != nil && ac.Analysis.BuildingType != "unknown" && ac.Analysis.BuildingType != "" {
		contextText = fmt.Sprintf(" The student's project is a %s.", ac.Analysis.BuildingType)
	}
	prompt := fmt.Sprintf(
		"You are an architecture domain expert tutoring a student.%s\nStudent question: \"%s\"\n\nAnswer concisely and concretely. Give the knowledge, not a lecture; no closing question.",
		contextText, util.EscapeQuotes(util.TruncateString(ac.UserText, 600)))

	content, err := a.completer.Complete(ctx, a.cfg.Model("chat"), []api.Message{
		{Role: "user", Content: prompt},
	}, false)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:         strings.TrimSpace(content),
		ResponseType: ResponseKnowledge,
		Metadata:     map[string]any{"source": "model_knowledge"},
	}, nil
}

func exampleQuery(ac *AgentContext) string {
	bt := ac.Session.BuildingType()
	if ac.Analysis != nil && ac.Analysis.BuildingType != "" && ac.Analysis.BuildingType != "unknown" {
		bt = ac.Analysis.BuildingType
	}
	if bt == "" {
		bt = "public building design"
	}
	return bt
}

func formatExamples(examples []models.Example) string {
	var b strings.Builder
	b.WriteString("Here are some relevant projects:\n")
	for i, ex := range examples {
		fmt.Fprintf(&b, "\n%d. %s", i+1, ex.Title)
		if ex.Summary != "" {
			fmt.Fprintf(&b, " - %s", ex.Summary)
		}
		if ex.URL != "" {
			fmt.Fprintf(&b, " (%s)", ex.URL)
		}
	}
	return b.String()
}
