package gamify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atelier-lab/archmentor/internal/api"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/internal/util"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// cacheKeyPrefixLen bounds how much of the user message enters the cache key.
// A longer prefix would make every rephrasing a cache miss.
const cacheKeyPrefixLen = 50

// Generator produces game payloads for interactive challenge types. Malformed
// LLM output goes through conservative repair and then a contextual fallback;
// the returned payload always satisfies the shape contract.
type Generator struct {
	cfg       *config.Config
	completer api.Completer
	logger    *slog.Logger
}

// NewGenerator creates the game content generator
func NewGenerator(cfg *config.Config, completer api.Completer, logger *slog.Logger) *Generator {
	return &Generator{
		cfg:       cfg,
		completer: completer,
		logger:    logger.With("component", "gamify_generator"),
	}
}

// Generate returns the payload for an interactive challenge. Text-only
// challenge types return nil; callers render those as prose.
func (g *Generator) Generate(ctx context.Context, sess *session.Session, ct models.ChallengeType, userMessage string) *models.GamificationView {
	if !ct.Interactive() {
		return nil
	}

	buildingType := sess.BuildingType()
	if buildingType == "" {
		buildingType = "community building"
	}

	key := cacheKey(ct, buildingType, sess.RecentContext(4), userMessage)
	if cached, ok := sess.CacheGet(key); ok {
		if view, ok := cached.(*models.GamificationView); ok {
			return view
		}
	}

	payload := g.generatePayload(ctx, ct, buildingType, userMessage)
	view := &models.GamificationView{ChallengeType: ct, Payload: payload}
	sess.CachePut(key, view)
	return view
}

func (g *Generator) generatePayload(ctx context.Context, ct models.ChallengeType, buildingType, userMessage string) models.GamePayload {
	if g.completer != nil {
		raw, err := g.completer.Complete(ctx, g.cfg.Model("game"), []api.Message{
			{Role: "user", Content: buildPrompt(ct, buildingType, userMessage)},
		}, true)
		if err == nil {
			payload, perr := g.parsePayload(ct, buildingType, raw)
			if perr == nil {
				return payload
			}
			g.logger.Warn("Game payload unusable after repair, using fallback",
				"challenge_type", ct,
				"response_length", len(raw),
				"error", perr)
		} else {
			g.logger.Warn("Game generation call failed, using fallback",
				"challenge_type", ct,
				"error", err)
		}
	}
	return contextualFallback(ct, buildingType, userMessage)
}

// parsePayload runs the repair pipeline: fences off, trailing commas off,
// parse, then at most one missing closing bracket. Quote escaping, content
// removal, and substring extraction are deliberately absent; they destroy
// content, and the contextual fallback is the better failure mode.
func (g *Generator) parsePayload(ct models.ChallengeType, buildingType, raw string) (models.GamePayload, error) {
	cleaned := util.StripCodeFences(raw)
	cleaned = util.StripTrailingCommas(cleaned)

	payload, err := decodePayload(ct, cleaned)
	if err != nil {
		repaired := util.CloseDangling(cleaned)
		if repaired == cleaned {
			return nil, err
		}
		payload, err = decodePayload(ct, util.StripTrailingCommas(repaired))
		if err != nil {
			return nil, err
		}
	}

	payload = coercePayload(ct, payload, buildingType)
	if verr := payload.Validate(); verr != nil {
		return nil, fmt.Errorf("payload failed validation: %w", verr)
	}
	return payload, nil
}

func decodePayload(ct models.ChallengeType, data string) (models.GamePayload, error) {
	b := []byte(data)
	switch ct {
	case models.ChallengeRolePlay:
		var p models.RolePlayPayload
		return p, json.Unmarshal(b, &p)
	case models.ChallengePerspectiveShift:
		var p models.PerspectiveShiftPayload
		return p, json.Unmarshal(b, &p)
	case models.ChallengeDetective:
		var p models.DetectivePayload
		return p, json.Unmarshal(b, &p)
	case models.ChallengeConstraint:
		var p models.ConstraintPayload
		return p, json.Unmarshal(b, &p)
	case models.ChallengeStorytelling:
		var p models.StorytellingPayload
		return p, json.Unmarshal(b, &p)
	case models.ChallengeTimeTravel:
		var p models.TimeTravelPayload
		return p, json.Unmarshal(b, &p)
	case models.ChallengeTransformation:
		var p models.TransformationPayload
		return p, json.Unmarshal(b, &p)
	}
	return nil, fmt.Errorf("no payload shape for challenge type %q", ct)
}

// coercePayload fills missing or truncated sub-fields with contextual
// defaults so a mostly-good LLM response is not thrown away over one hole
func coercePayload(ct models.ChallengeType, payload models.GamePayload, buildingType string) models.GamePayload {
	switch p := payload.(type) {
	case models.ConstraintPayload:
		i := 0
		for name, detail := range p {
			if len(detail.Impact) < models.MinConstraintImpact {
				detail.Impact = defaultConstraintImpact(name, buildingType)
			}
			if len(detail.Challenge) < models.MinConstraintFight {
				detail.Challenge = defaultConstraintChallenge(name)
			}
			if detail.Color == "" {
				detail.Color = constraintColors[i%len(constraintColors)]
			}
			if detail.Icon == "" {
				detail.Icon = constraintIcons[i%len(constraintIcons)]
			}
			p[name] = detail
			i++
		}
		// An over-long map is trimmed to the contract rather than rejected.
		for name := range p {
			if len(p) <= models.MaxMapEntries {
				break
			}
			delete(p, name)
		}
		return p
	case models.RolePlayPayload:
		for name, persona := range p {
			if persona.Mission == "" {
				persona.Mission = fmt.Sprintf("Walk through the %s as %s and note what works for you and what does not.", buildingType, name)
			}
			if len(persona.Insights) == 0 {
				persona.Insights = []string{
					fmt.Sprintf("Different users experience the same %s in very different ways.", buildingType),
				}
			}
			p[name] = persona
		}
		for name := range p {
			if len(p) <= models.MaxMapEntries {
				break
			}
			delete(p, name)
		}
		return p
	case models.PerspectiveShiftPayload:
		if len(p) > models.MaxPerspectiveLabels {
			return p[:models.MaxPerspectiveLabels]
		}
		return p
	case models.DetectivePayload:
		if p.SolutionHint == "" {
			p.SolutionHint = "Look at who uses the space at the times it feels emptiest."
		}
		if len(p.RedHerrings) == 0 {
			p.RedHerrings = []string{"The answer is not about the furniture."}
		}
		return p
	}
	return payload
}

var constraintColors = []string{"#e74c3c", "#f39c12", "#3498db", "#9b59b6"}
var constraintIcons = []string{"alert-triangle", "dollar-sign", "clock", "shield"}

func defaultConstraintImpact(name, buildingType string) string {
	return fmt.Sprintf("The %s constraint reshapes how your %s organizes its spaces, forcing every square meter to justify itself against the core program.", name, buildingType)
}

func defaultConstraintChallenge(name string) string {
	return fmt.Sprintf("Redesign one key space so the %s constraint becomes a feature rather than a loss.", name)
}

func cacheKey(ct models.ChallengeType, buildingType string, recent []session.Turn, userMessage string) string {
	var b strings.Builder
	for _, turn := range recent {
		b.WriteString(turn.Text)
		b.WriteByte('\n')
	}
	b.WriteString(util.Prefix(userMessage, cacheKeyPrefixLen))
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("game:%s:%s:%s", ct, buildingType, hex.EncodeToString(sum[:8]))
}

// buildPrompt asks for a strict-JSON payload matching the challenge shape.
// Injected strings are quote-escaped so they cannot break the JSON examples.
func buildPrompt(ct models.ChallengeType, buildingType, userMessage string) string {
	bt := util.EscapeQuotes(buildingType)
	msg := util.EscapeQuotes(util.TruncateString(userMessage, 400))

	header := fmt.Sprintf(
		"You are designing an interactive learning challenge for an architecture student working on a %s.\nStudent's latest message: \"%s\"\n\nRespond with ONLY a JSON document, no prose and no markdown fences.\n\n", bt, msg)

	switch ct {
	case models.ChallengeRolePlay:
		return header + fmt.Sprintf(
			`Produce a JSON object mapping 3-4 persona names to objects with keys "description" (at least %d characters), "mission" (a concrete in-building task), and "insights" (2-3 strings, each at least %d characters). Personas must be plausible users of a %s.`,
			models.MinPersonaDescLen, models.MinInsightLen, bt)
	case models.ChallengePerspectiveShift:
		return header + fmt.Sprintf(
			`Produce a JSON array of %d-%d short perspective labels (strings) that would each reframe the student's design question, ordered from most familiar to most surprising.`,
			models.MinPerspectiveLabels, models.MaxPerspectiveLabels)
	case models.ChallengeDetective:
		return header + fmt.Sprintf(
			`Produce a JSON object with keys "mystery_description" (at least %d characters), "clues" (3-4 strings, each at least %d characters), "red_herrings" (2 strings), and "solution_hint" (one string). The mystery must concern how people actually use a %s.`,
			models.MinMysteryLen, models.MinClueLen, bt)
	case models.ChallengeConstraint:
		return header + fmt.Sprintf(
			`Produce a JSON object mapping 3-4 constraint names to objects with keys "impact" (at least %d characters describing the design consequence), "challenge" (at least %d characters, a concrete design task), "color" (a hex color), and "icon" (an icon name). Constraints must be realistic for a %s project.`,
			models.MinConstraintImpact, models.MinConstraintFight, bt)
	case models.ChallengeStorytelling:
		return header + fmt.Sprintf(
			`Produce a JSON object mapping 3-4 chapter titles to chapter prose of %d-%d characters each, together telling the story of a day in the life of the %s.`,
			models.MinChapterProseLen, models.MaxChapterProseLen, bt)
	case models.ChallengeTimeTravel:
		return header + fmt.Sprintf(
			`Produce a JSON object mapping 3-4 era labels (for example "Opening day", "In 25 years") to prose of %d-%d characters describing the %s in that era.`,
			models.MinEraProseLen, models.MaxEraProseLen, bt)
	case models.ChallengeTransformation:
		return header + fmt.Sprintf(
			`Produce a JSON object mapping 3-4 adaptation scenario names to prose of %d-%d characters describing how the %s transforms to serve that scenario.`,
			models.MinScenarioProseLen, models.MaxScenarioProseLen, bt)
	}
	return header
}
