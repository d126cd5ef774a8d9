package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// scriptedCompleter routes completions through a test-provided function
type scriptedCompleter struct {
	fn    func(jsonMode bool, prompt string) (string, error)
	calls int
}

func (s *scriptedCompleter) Complete(_ context.Context, _ config.ModelConfig, messages []api.Message, jsonMode bool) (string, error) {
	s.calls++
	if s.fn == nil {
		return "", fmt.Errorf("no completion scripted")
	}
	prompt := ""
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	return s.fn(jsonMode, prompt)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRouter(fn func(bool, string) (string, error)) (*Router, *scriptedCompleter) {
	cfg := config.Default()
	logger := discardLogger()
	comp := &scriptedCompleter{fn: fn}
	return NewRouter(NewClassifier(cfg, comp, logger), logger), comp
}

func TestIsExampleRequest(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Can you show me more examples of libraries?", true},
		{"do you have another example?", true},
		{"Are there similar projects in cold climates?", true},
		{"any reference projects I should look at?", true},
		{"I think the entrance should face the street", false},
		{"What is a good example of structural honesty?", false}, // "an example" phrasing only
		{"My site slopes toward the river", false},
	}
	for _, tc := range cases {
		if got := IsExampleRequest(tc.text); got != tc.want {
			t.Errorf("IsExampleRequest(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestRouteExampleRequestShortCircuits(t *testing.T) {
	r, comp := testRouter(nil)
	logger := discardLogger()
	sess := session.NewStore(logger).Create("p1", models.ArmMentor)

	// Even with an outstanding question, an example request wins.
	sess.Progress(models.PhaseIdeation).OutstandingQuestionID = "idea-concept"

	d := r.Route(context.Background(), sess, "Could you show me examples of adaptive reuse before I answer?")
	if d.Path != models.RouteKnowledgeOnly {
		t.Fatalf("Path = %s, want knowledge_only", d.Path)
	}
	if d.ThreadType != models.ThreadExampleRequest {
		t.Errorf("ThreadType = %s", d.ThreadType)
	}
	if comp.calls != 0 {
		t.Errorf("classifier should not run on a pattern match, got %d calls", comp.calls)
	}
}

func TestRouteOutstandingAnswerGoesSocratic(t *testing.T) {
	r, comp := testRouter(nil)
	logger := discardLogger()
	sess := session.NewStore(logger).Create("p1", models.ArmMentor)
	sess.Progress(models.PhaseIdeation).OutstandingQuestionID = "idea-concept"

	answer := strings.Repeat("the central idea is a covered market street ", 5)
	d := r.Route(context.Background(), sess, answer)
	if d.Path != models.RouteSocraticFocus {
		t.Fatalf("Path = %s, want socratic_focus", d.Path)
	}
	if d.ThreadType != models.ThreadSocraticContinuation {
		t.Errorf("ThreadType = %s", d.ThreadType)
	}
	if comp.calls != 0 {
		t.Errorf("classifier should not run for a substantive answer, got %d calls", comp.calls)
	}
}

func TestRouteShortAnswerFallsThroughToClassifier(t *testing.T) {
	r, comp := testRouter(func(jsonMode bool, _ string) (string, error) {
		return `{"label": "NEW_TOPIC", "confidence": 0.7}`, nil
	})
	logger := discardLogger()
	sess := session.NewStore(logger).Create("p1", models.ArmMentor)
	sess.Progress(models.PhaseIdeation).OutstandingQuestionID = "idea-concept"

	d := r.Route(context.Background(), sess, "hmm, not sure")
	if d.Path != models.RouteBalancedGuidance {
		t.Fatalf("Path = %s, want balanced_guidance", d.Path)
	}
	if comp.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", comp.calls)
	}
}

func TestRouteClassifierLabelMapping(t *testing.T) {
	cases := []struct {
		label    string
		wantPath models.RoutingPath
	}{
		{"EXAMPLE_REQUEST", models.RouteKnowledgeOnly},
		{"ANSWER_CONTINUATION", models.RouteSocraticFocus},
		{"SOCRATIC_CONTINUATION", models.RouteSocraticFocus},
		{"TOPIC_CONTINUATION", models.RouteBalancedGuidance},
		{"NEW_TOPIC", models.RouteBalancedGuidance},
	}
	for _, tc := range cases {
		r, _ := testRouter(func(bool, string) (string, error) {
			return fmt.Sprintf(`{"label": %q, "confidence": 0.8}`, tc.label), nil
		})
		sess := session.NewStore(discardLogger()).Create("p1", models.ArmMentor)
		d := r.Route(context.Background(), sess, "tell me about daylighting strategies")
		if d.Path != tc.wantPath {
			t.Errorf("label %s: Path = %s, want %s", tc.label, d.Path, tc.wantPath)
		}
		if d.Confidence != 0.8 {
			t.Errorf("label %s: Confidence = %.2f", tc.label, d.Confidence)
		}
	}
}

func TestRouteClassifierFailureUsesDefault(t *testing.T) {
	r, _ := testRouter(func(bool, string) (string, error) {
		return "", fmt.Errorf("model down")
	})
	sess := session.NewStore(discardLogger()).Create("p1", models.ArmMentor)

	d := r.Route(context.Background(), sess, "tell me about daylighting strategies")
	if d.Path != models.RouteBalancedGuidance {
		t.Fatalf("Path = %s, want balanced_guidance", d.Path)
	}
	if len(d.Agents) != 3 {
		t.Errorf("Agents = %v, want the full balanced pipeline", d.Agents)
	}
}

func TestClassifierRejectsUnknownLabel(t *testing.T) {
	cfg := config.Default()
	comp := &scriptedCompleter{fn: func(bool, string) (string, error) {
		return `{"label": "SOMETHING_ELSE", "confidence": 0.9}`, nil
	}}
	c := NewClassifier(cfg, comp, discardLogger())

	if _, _, err := c.Classify(context.Background(), "", "hello"); err == nil {
		t.Fatal("unknown label should be an error")
	}
}

func TestClassifierClampsConfidence(t *testing.T) {
	cfg := config.Default()
	comp := &scriptedCompleter{fn: func(bool, string) (string, error) {
		return `{"label": "NEW_TOPIC", "confidence": 3.2}`, nil
	}}
	c := NewClassifier(cfg, comp, discardLogger())

	label, conf, err := c.Classify(context.Background(), "", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if label != models.ThreadNewTopic {
		t.Errorf("label = %s", label)
	}
	if conf != 1.0 {
		t.Errorf("confidence = %.2f, want clamped to 1.0", conf)
	}
}

func TestClassifierParsesFencedJSON(t *testing.T) {
	cfg := config.Default()
	comp := &scriptedCompleter{fn: func(bool, string) (string, error) {
		return "```json\n{\"label\": \"EXAMPLE_REQUEST\", \"confidence\": 0.85}\n```", nil
	}}
	c := NewClassifier(cfg, comp, discardLogger())

	label, _, err := c.Classify(context.Background(), "previous reply", "got any precedents?")
	if err != nil {
		t.Fatal(err)
	}
	if label != models.ThreadExampleRequest {
		t.Errorf("label = %s", label)
	}
}
