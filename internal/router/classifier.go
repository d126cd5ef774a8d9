package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/util"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// Classifier labels a (last assistant, user) message pair with a thread type.
// A failed classification is recovered locally; callers fall through to the
// default route.
type Classifier struct {
	cfg       *config.Config
	completer api.Completer
	logger    *slog.Logger
}

// NewClassifier creates the thread-type meta-classifier
func NewClassifier(cfg *config.Config, completer api.Completer, logger *slog.Logger) *Classifier {
	return &Classifier{
		cfg:       cfg,
		completer: completer,
		logger:    logger.With("component", "meta_classifier"),
	}
}

type classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

var validThreadTypes = map[models.ThreadType]bool{
	models.ThreadExampleRequest:       true,
	models.ThreadAnswerContinuation:   true,
	models.ThreadTopicContinuation:    true,
	models.ThreadSocraticContinuation: true,
	models.ThreadNewTopic:             true,
}

// Classify returns the thread type and advisory confidence for a message
// pair, or an error for the caller to recover from
func (c *Classifier) Classify(ctx context.Context, lastAssistant, userMessage string) (models.ThreadType, float64, error) {
	if c.completer == nil {
		return "", 0, fmt.Errorf("classifier model unavailable")
	}

	prompt, err := util.RenderTemplate(c.cfg.PromptTemplates.MetaClassifier, map[string]interface{}{
		"LastAssistant": util.TruncateString(lastAssistant, 600),
		"UserMessage":   util.TruncateString(userMessage, 600),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to render classifier template: %w", err)
	}

	content, err := c.completer.Complete(ctx, c.cfg.Model("classifier"), []api.Message{
		{Role: "user", Content: prompt},
	}, true)
	if err != nil {
		return "", 0, err
	}

	jsonStr := util.SanitizeJSON(util.ExtractJSON(content))
	var parsed classification
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return "", 0, fmt.Errorf("failed to parse classification: %w", err)
	}

	label := models.ThreadType(parsed.Label)
	if !validThreadTypes[label] {
		return "", 0, fmt.Errorf("classifier returned unknown label %q", parsed.Label)
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return label, parsed.Confidence, nil
}
