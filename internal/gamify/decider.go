package gamify

import (
	"log/slog"
	"strings"

	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// patternFamilies maps closed trigger phrases to their challenge family.
// Matching is substring-based on the lowercased user turn; the set is closed
// so the decider stays predictable for the research protocol.
var patternFamilies = []struct {
	challenge models.ChallengeType
	phrases   []string
}{
	{models.ChallengeRolePlay, []string{
		"different user perspective",
		"from the perspective of",
		"in their shoes",
		"as a user of",
		"how would a visitor",
	}},
	{models.ChallengePerspectiveShift, []string{
		"alternative approaches",
		"other ways to",
		"different angle",
		"other options",
		"another way of looking",
	}},
	{models.ChallengeDetective, []string{
		"why do people",
		"why would anyone",
		"what makes people",
		"why does nobody",
	}},
	{models.ChallengeConstraint, []string{
		"budget got cut",
		"budget was cut",
		"constraints",
		"restrictions",
		"limitations on",
	}},
	{models.ChallengeStorytelling, []string{
		"what story",
		"narrative",
		"tell the story",
	}},
	{models.ChallengeTimeTravel, []string{
		"evolve over time",
		"in fifty years",
		"in 50 years",
		"age over",
		"future of this building",
	}},
	{models.ChallengeTransformation, []string{
		"adapt to different uses",
		"change of use",
		"repurpose",
		"converted into",
		"flexible enough to become",
	}},
}

// overconfidenceMarkers flag a declarative stance with no hedging
var overconfidenceMarkers = []string{
	"obviously",
	"definitely",
	"of course",
	"clearly the best",
	"there's no question",
	"i'm certain",
	"i am certain",
}

// Decision is the decider's verdict for one turn
type Decision struct {
	Apply         bool
	ChallengeType models.ChallengeType
	Reason        string
}

// Signals carries turn context the decider cannot derive from text alone
type Signals struct {
	ExpertGaveExamples bool // the Domain-Expert just produced examples
	AnsweringSocratic  bool // this turn answers an outstanding question
	DeepeningStage     bool // the session is past the opening exchanges
}

// Decider decides whether an assistant turn should be replaced by an
// interactive challenge or a text-only cognitive intervention.
type Decider struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewDecider creates the gamification decider
func NewDecider(cfg *config.Config, logger *slog.Logger) *Decider {
	return &Decider{
		cfg:    cfg,
		logger: logger.With("component", "gamify_decider"),
	}
}

// Decide evaluates one user turn. Text-only interventions bypass the cadence
// gate since they do not cost a game; interactive challenges honor it.
func (d *Decider) Decide(sess *session.Session, userText string, sig Signals) Decision {
	if !d.cfg.Gamification.Enabled() {
		return Decision{Reason: "gamification disabled"}
	}
	if sig.ExpertGaveExamples {
		return Decision{Reason: "suppressed: expert examples take follow-up questions instead"}
	}
	if sig.AnsweringSocratic {
		return Decision{Reason: "suppressed: turn answers an outstanding question"}
	}

	lower := strings.ToLower(userText)

	if ct, ok := matchPattern(lower); ok {
		if !d.cadenceAllows(sess) {
			return Decision{Reason: "cadence: too soon after last game"}
		}
		d.logger.Info("Game triggered",
			"session_id", sess.ID(),
			"challenge_type", ct)
		return Decision{Apply: true, ChallengeType: ct, Reason: "pattern match"}
	}

	if stance := d.stanceIntervention(lower, sig); stance != "" {
		return Decision{Apply: true, ChallengeType: stance, Reason: "cognitive stance"}
	}

	return Decision{Reason: "no trigger"}
}

func matchPattern(lower string) (models.ChallengeType, bool) {
	for _, family := range patternFamilies {
		for _, phrase := range family.phrases {
			if strings.Contains(lower, phrase) {
				return family.challenge, true
			}
		}
	}
	return "", false
}

// stanceIntervention detects cognitive stances that warrant a text-only
// intervention rather than a game
func (d *Decider) stanceIntervention(lower string, sig Signals) models.ChallengeType {
	words := len(strings.Fields(lower))

	overconfident := false
	for _, marker := range overconfidenceMarkers {
		if strings.Contains(lower, marker) {
			overconfident = true
			break
		}
	}
	if overconfident && words < 25 {
		return models.ChallengeAssumption
	}
	if sig.DeepeningStage && words < 12 {
		return models.ChallengeDepthPromotion
	}
	return ""
}

func (d *Decider) cadenceAllows(sess *session.Session) bool {
	since := sess.UserTurnsSinceLastGame()
	if since < 0 {
		return true
	}
	return since >= d.cfg.Gamification.MinTurnsBetweenGames
}
