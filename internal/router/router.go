package router

import (
	"context"
	"log/slog"

	"github.com/atelier-lab/archmentor/internal/phase"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// Router classifies each user turn and selects the agent pipeline. It always
// produces a decision; every failure path lands on the balanced default.
type Router struct {
	classifier *Classifier
	logger     *slog.Logger
}

// NewRouter creates the turn router
func NewRouter(classifier *Classifier, logger *slog.Logger) *Router {
	return &Router{
		classifier: classifier,
		logger:     logger.With("component", "router"),
	}
}

// Route decides the pipeline for one user turn. Rules are ordered and the
// first match wins; the example-request rule short-circuits everything so a
// Socratic question is never re-asked over a precedent request.
func (r *Router) Route(ctx context.Context, sess *session.Session, userText string) models.RoutingDecision {
	if IsExampleRequest(userText) {
		return models.RoutingDecision{
			Path:       models.RouteKnowledgeOnly,
			Agents:     []string{"expert"},
			Reason:     "closed-pattern example request",
			Confidence: 0.95,
			ThreadType: models.ThreadExampleRequest,
		}
	}

	outstanding := sess.Progress(sess.CurrentPhase()).OutstandingQuestionID
	if outstanding != "" && phase.IsSubstantiveAnswer(userText) {
		return models.RoutingDecision{
			Path:       models.RouteSocraticFocus,
			Agents:     []string{"socratic"},
			Reason:     "substantive answer to outstanding question",
			Confidence: 0.9,
			ThreadType: models.ThreadSocraticContinuation,
		}
	}

	if r.classifier != nil {
		label, confidence, err := r.classifier.Classify(ctx, sess.LastAssistantText(), userText)
		if err == nil {
			return decisionForLabel(label, confidence)
		}
		r.logger.Warn("Meta-classification failed, using default route",
			"session_id", sess.ID(),
			"error", err)
	}

	return defaultDecision("classifier unavailable")
}

func decisionForLabel(label models.ThreadType, confidence float64) models.RoutingDecision {
	switch label {
	case models.ThreadExampleRequest:
		return models.RoutingDecision{
			Path:       models.RouteKnowledgeOnly,
			Agents:     []string{"expert"},
			Reason:     "classifier: example request",
			Confidence: confidence,
			ThreadType: label,
		}
	case models.ThreadAnswerContinuation, models.ThreadSocraticContinuation:
		return models.RoutingDecision{
			Path:       models.RouteSocraticFocus,
			Agents:     []string{"socratic"},
			Reason:     "classifier: dialogue continuation",
			Confidence: confidence,
			ThreadType: label,
		}
	default:
		d := defaultDecision("classifier: " + string(label))
		d.Confidence = confidence
		d.ThreadType = label
		return d
	}
}

func defaultDecision(reason string) models.RoutingDecision {
	return models.RoutingDecision{
		Path:       models.RouteBalancedGuidance,
		Agents:     []string{"analysis", "socratic", "cognitive"},
		Reason:     reason,
		Confidence: 0.5,
		ThreadType: models.ThreadNewTopic,
	}
}
