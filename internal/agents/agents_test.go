package agents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/gamify"
	"github.com/atelier-lab/archmentor/internal/phase"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

type stubCompleter struct {
	response string
	err      error
	calls    int
}

func (s *stubCompleter) Complete(_ context.Context, _ config.ModelConfig, _ []api.Message, _ bool) (string, error) {
	s.calls++
	return s.response, s.err
}

type stubSearcher struct {
	examples []models.Example
	err      error
}

func (s *stubSearcher) SearchProjects(_ context.Context, _ string, _ int) ([]models.Example, error) {
	return s.examples, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newContext(userText string) *AgentContext {
	sess := session.NewStore(testLogger()).Create("p1", models.ArmMentor)
	return &AgentContext{Session: sess, UserText: userText}
}

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Can you show me some precedent projects for this?", IntentRequestingExamples},
		{"I realized the courtyard is really the heart of the plan.", IntentSharingInsights},
		{"What do you mean by parti exactly?", IntentSeekingClarity},
		{"How tall can a timber structure go?", IntentAskingForInfo},
	}
	for _, tc := range cases {
		if got := detectIntent(tc.text); got != tc.want {
			t.Errorf("detectIntent(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestSocraticDefersOnExampleRequest(t *testing.T) {
	a := NewSocraticAgent(config.Default(), &stubCompleter{response: "Why?"}, testLogger())
	ac := newContext("Can you give me another example of adaptive reuse?")

	resp, err := a.GenerateResponse(context.Background(), ac)
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if resp.ResponseType != ResponseDeferral {
		t.Errorf("ResponseType = %s, want deferral", resp.ResponseType)
	}
	if strings.Contains(resp.Text, "?") {
		t.Error("deferral should not re-ask a question over an example request")
	}
}

func TestSocraticAsksAboutExamples(t *testing.T) {
	a := NewSocraticAgent(config.Default(), &stubCompleter{response: "Which of those precedents handles daylight best?"}, testLogger())
	ac := newContext("thanks, those help")
	ac.ExpertResponse = &Response{
		Text:         "1. Tate Modern - turbine hall reuse",
		ResponseType: ResponseExamples,
	}

	resp, err := a.GenerateResponse(context.Background(), ac)
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if resp.ResponseType != ResponseSocraticQuestion {
		t.Fatalf("ResponseType = %s", resp.ResponseType)
	}
	if resp.Metadata["strategy"] != StrategyAdaptive {
		t.Errorf("strategy = %v, want adaptive after examples", resp.Metadata["strategy"])
	}
}

func TestSocraticSilentUnderCognitiveProtection(t *testing.T) {
	a := NewSocraticAgent(config.Default(), &stubCompleter{response: "Why?"}, testLogger())
	ac := newContext("ok give me more examples please, another example would help")
	ac.ExpertResponse = &Response{ResponseType: ResponseCognitiveProtection}

	resp, _ := a.GenerateResponse(context.Background(), ac)
	if resp.Text != "" {
		t.Errorf("protected turn should carry no extra question, got %q", resp.Text)
	}
}

func TestSocraticNeverRepeatsAQuestion(t *testing.T) {
	repeated := "What drives the form of your building?"
	a := NewSocraticAgent(config.Default(), &stubCompleter{response: repeated}, testLogger())
	ac := newContext("I keep going back and forth on the massing here, nothing feels settled")
	ac.Session.MarkQuestionAsked(repeated)
	q, _ := phase.QuestionByID("idea-concept")
	ac.NextQuestion = &q

	resp, _ := a.GenerateResponse(context.Background(), ac)
	if resp.Text == repeated {
		t.Error("agent repeated an already-asked question")
	}
	if resp.Text != q.Text {
		t.Errorf("expected catalog fallback, got %q", resp.Text)
	}
}

func TestSocraticStrategySelection(t *testing.T) {
	cases := []struct {
		text  string
		turns int
		want  string
	}{
		{"Obviously concrete is the only sensible choice.", 1, StrategyAssumption},
		{"What do you mean by threshold?", 1, StrategyClarifying},
		{"it works fine", 6, StrategyDepthPromotion},
	}
	for _, tc := range cases {
		ac := newContext(tc.text)
		for i := 0; i < tc.turns; i++ {
			_, _ = ac.Session.AppendUserTurn("filler", "", "")
		}
		got := chooseStrategy(ac, detectIntent(tc.text))
		if got != tc.want {
			t.Errorf("%q: strategy = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestExpertUsesSearchForExamples(t *testing.T) {
	searcher := &stubSearcher{examples: []models.Example{
		{Title: "Kraanspoor", Summary: "office on a concrete crane track", URL: "https://example.org/kraanspoor"},
		{Title: "LocHal", Summary: "locomotive shed turned library"},
	}}
	a := NewExpertAgent(config.Default(), &stubCompleter{}, searcher, testLogger())
	ac := newContext("can you show me more precedents like that?")
	ac.Classification = &models.RoutingDecision{ThreadType: models.ThreadExampleRequest}

	resp, err := a.GenerateResponse(context.Background(), ac)
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if resp.ResponseType != ResponseExamples {
		t.Fatalf("ResponseType = %s", resp.ResponseType)
	}
	if !strings.Contains(resp.Text, "Kraanspoor") || !strings.Contains(resp.Text, "LocHal") {
		t.Errorf("examples missing from text: %q", resp.Text)
	}
}

func TestExpertFallsBackWhenSearchFails(t *testing.T) {
	a := NewExpertAgent(config.Default(),
		&stubCompleter{response: "1. Tate Modern, Herzog & de Meuron - turbine hall kept as public space."},
		&stubSearcher{err: fmt.Errorf("search down")}, testLogger())
	ac := newContext("another example please?")
	ac.Classification = &models.RoutingDecision{ThreadType: models.ThreadExampleRequest}

	resp, err := a.GenerateResponse(context.Background(), ac)
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if resp.ResponseType != ResponseExamples {
		t.Errorf("ResponseType = %s", resp.ResponseType)
	}
	if resp.Metadata["source"] != "model_knowledge" {
		t.Errorf("source = %v", resp.Metadata["source"])
	}
}

func TestExpertProtectsAfterRepeatedExampleRequests(t *testing.T) {
	a := NewExpertAgent(config.Default(), &stubCompleter{}, &stubSearcher{}, testLogger())
	ac := newContext("more examples?")
	ac.Classification = &models.RoutingDecision{ThreadType: models.ThreadExampleRequest}

	routing := &models.RoutingDecision{Path: models.RouteKnowledgeOnly}
	for i := 0; i < protectionWindow; i++ {
		_, _ = ac.Session.AppendUserTurn("example please", "", "")
		_, _ = ac.Session.AppendAssistantTurn("here are examples", routing, nil)
	}

	resp, err := a.GenerateResponse(context.Background(), ac)
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if resp.ResponseType != ResponseCognitiveProtection {
		t.Errorf("ResponseType = %s, want cognitive protection", resp.ResponseType)
	}
}

func TestAnalysisHeuristicFallback(t *testing.T) {
	a := NewAnalysisAgent(config.Default(), &stubCompleter{err: fmt.Errorf("down")}, testLogger())

	result := a.Analyze(context.Background(), "I'm converting a warehouse into a library, thinking about the section drawings")
	if result.BuildingType != "library" {
		t.Errorf("BuildingType = %q", result.BuildingType)
	}
	if result.PhaseHypothesis != string(models.PhaseVisualization) {
		t.Errorf("PhaseHypothesis = %q", result.PhaseHypothesis)
	}
}

func TestAnalysisParsesLLMResponse(t *testing.T) {
	response := `{"building_type": "community center", "program_requirements": ["hall"], "cognitive_challenges": [], "learning_opportunities": ["site"], "missing_considerations": ["acoustics"], "phase_hypothesis": "ideation"}`
	a := NewAnalysisAgent(config.Default(), &stubCompleter{response: response}, testLogger())

	result := a.Analyze(context.Background(), "designing a community center")
	if result.BuildingType != "community center" {
		t.Errorf("BuildingType = %q", result.BuildingType)
	}
	if len(result.MissingConsiderations) != 1 {
		t.Errorf("MissingConsiderations = %v", result.MissingConsiderations)
	}
}

func TestCognitiveAgentAppliesGame(t *testing.T) {
	cfg := config.Default()
	logger := testLogger()
	a := NewCognitiveAgent(cfg,
		gamify.NewDecider(cfg, logger),
		gamify.NewGenerator(cfg, &stubCompleter{err: fmt.Errorf("down")}, logger),
		logger)
	ac := newContext("the budget got cut, how do I cope?")

	resp, err := a.GenerateResponse(context.Background(), ac)
	if err != nil {
		t.Fatalf("GenerateResponse: %v", err)
	}
	if resp.Gamification == nil {
		t.Fatal("expected a gamification view")
	}
	if resp.Gamification.ChallengeType != models.ChallengeConstraint {
		t.Errorf("challenge = %s", resp.Gamification.ChallengeType)
	}
	if resp.Metadata["applied"] != true {
		t.Errorf("applied = %v", resp.Metadata["applied"])
	}
}

func TestCognitiveAgentSuppressedAfterExamples(t *testing.T) {
	cfg := config.Default()
	logger := testLogger()
	a := NewCognitiveAgent(cfg,
		gamify.NewDecider(cfg, logger),
		gamify.NewGenerator(cfg, &stubCompleter{}, logger),
		logger)
	ac := newContext("the budget got cut, what constraints matter?")
	ac.ExpertResponse = &Response{ResponseType: ResponseExamples}

	resp, _ := a.GenerateResponse(context.Background(), ac)
	if resp.Gamification != nil {
		t.Error("game fired right after expert examples")
	}
}
