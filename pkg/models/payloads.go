package models

import "fmt"

// ChallengeType identifies one family of the closed gamification taxonomy
type ChallengeType string

const (
	ChallengeRolePlay         ChallengeType = "role_play"
	ChallengePerspectiveShift ChallengeType = "perspective_shift"
	ChallengeDetective        ChallengeType = "detective"
	ChallengeConstraint       ChallengeType = "constraint"
	ChallengeStorytelling     ChallengeType = "storytelling"
	ChallengeTimeTravel       ChallengeType = "time_travel"
	ChallengeTransformation   ChallengeType = "transformation"

	// Text-only interventions: no interactive payload is generated for these
	ChallengeAssumption     ChallengeType = "assumption_challenge"
	ChallengeDepthPromotion ChallengeType = "depth_promotion"
)

// Interactive reports whether the challenge type carries a generated payload.
func (c ChallengeType) Interactive() bool {
	switch c {
	case ChallengeAssumption, ChallengeDepthPromotion:
		return false
	}
	return true
}

// Content length bounds enforced on generated payloads. Renderers rely on
// these so fallbacks must satisfy them too; the prose shapes carry upper
// bounds because their widgets have fixed card sizes.
const (
	MinPersonaDescLen    = 30
	MinInsightLen        = 20
	MinMysteryLen        = 40
	MinClueLen           = 20
	MinConstraintImpact  = 60
	MinConstraintFight   = 30
	MinChapterProseLen   = 80
	MaxChapterProseLen   = 150
	MinEraProseLen       = 100
	MaxEraProseLen       = 150
	MinScenarioProseLen  = 150
	MaxScenarioProseLen  = 250
	MinMapEntries        = 3
	MaxMapEntries        = 4
	MinPerspectiveLabels = 4
	MaxPerspectiveLabels = 6
)

// GamePayload is implemented by every interactive payload shape
type GamePayload interface {
	Validate() error
}

// RolePlayPersona is one stakeholder the student can inhabit
type RolePlayPersona struct {
	Description string   `json:"description"`
	Mission     string   `json:"mission"`
	Insights    []string `json:"insights"`
}

// RolePlayPayload maps persona name to its brief; 3-4 entries
type RolePlayPayload map[string]RolePlayPersona

// Validate enforces the role_play shape contract
func (p RolePlayPayload) Validate() error {
	if len(p) < MinMapEntries || len(p) > MaxMapEntries {
		return fmt.Errorf("role_play requires %d-%d personas, got %d", MinMapEntries, MaxMapEntries, len(p))
	}
	for name, persona := range p {
		if len(persona.Description) < MinPersonaDescLen {
			return fmt.Errorf("persona %q: description too short (%d chars)", name, len(persona.Description))
		}
		if persona.Mission == "" {
			return fmt.Errorf("persona %q: missing mission", name)
		}
		if len(persona.Insights) == 0 {
			return fmt.Errorf("persona %q: no insights", name)
		}
		for i, insight := range persona.Insights {
			if len(insight) < MinInsightLen {
				return fmt.Errorf("persona %q: insight %d too short", name, i)
			}
		}
	}
	return nil
}

// PerspectiveShiftPayload is an ordered sequence of 4-6 perspective labels
type PerspectiveShiftPayload []string

// Validate enforces the perspective_shift shape contract
func (p PerspectiveShiftPayload) Validate() error {
	if len(p) < MinPerspectiveLabels || len(p) > MaxPerspectiveLabels {
		return fmt.Errorf("perspective_shift requires %d-%d labels, got %d", MinPerspectiveLabels, MaxPerspectiveLabels, len(p))
	}
	for i, label := range p {
		if label == "" {
			return fmt.Errorf("perspective label %d is empty", i)
		}
	}
	return nil
}

// DetectivePayload frames a design question as a mystery to investigate
type DetectivePayload struct {
	MysteryDescription string   `json:"mystery_description"`
	Clues              []string `json:"clues"`
	RedHerrings        []string `json:"red_herrings"`
	SolutionHint       string   `json:"solution_hint"`
}

// Validate enforces the detective shape contract
func (p DetectivePayload) Validate() error {
	if len(p.MysteryDescription) < MinMysteryLen {
		return fmt.Errorf("mystery_description too short (%d chars)", len(p.MysteryDescription))
	}
	if len(p.Clues) == 0 {
		return fmt.Errorf("detective requires at least one clue")
	}
	for i, clue := range p.Clues {
		if len(clue) < MinClueLen {
			return fmt.Errorf("clue %d too short", i)
		}
	}
	if len(p.RedHerrings) == 0 {
		return fmt.Errorf("detective requires at least one red herring")
	}
	if p.SolutionHint == "" {
		return fmt.Errorf("missing solution_hint")
	}
	return nil
}

// ConstraintDetail describes one imposed constraint and its design consequences
type ConstraintDetail struct {
	Impact    string `json:"impact"`
	Challenge string `json:"challenge"`
	Color     string `json:"color"`
	Icon      string `json:"icon"`
}

// ConstraintPayload maps constraint name to its detail; 3-4 entries
type ConstraintPayload map[string]ConstraintDetail

// Validate enforces the constraint shape contract
func (p ConstraintPayload) Validate() error {
	if len(p) < MinMapEntries || len(p) > MaxMapEntries {
		return fmt.Errorf("constraint requires %d-%d entries, got %d", MinMapEntries, MaxMapEntries, len(p))
	}
	for name, detail := range p {
		if len(detail.Impact) < MinConstraintImpact {
			return fmt.Errorf("constraint %q: impact too short (%d chars)", name, len(detail.Impact))
		}
		if len(detail.Challenge) < MinConstraintFight {
			return fmt.Errorf("constraint %q: challenge too short", name)
		}
		if detail.Color == "" || detail.Icon == "" {
			return fmt.Errorf("constraint %q: missing color or icon", name)
		}
	}
	return nil
}

// StorytellingPayload maps chapter title to chapter prose
type StorytellingPayload map[string]string

// Validate enforces the storytelling shape contract
func (p StorytellingPayload) Validate() error {
	return validateProseMap(p, "storytelling", MinChapterProseLen, MaxChapterProseLen)
}

// TimeTravelPayload maps era label to prose describing the building in that era
type TimeTravelPayload map[string]string

// Validate enforces the time_travel shape contract
func (p TimeTravelPayload) Validate() error {
	return validateProseMap(p, "time_travel", MinEraProseLen, MaxEraProseLen)
}

// TransformationPayload maps adaptation scenario to prose
type TransformationPayload map[string]string

// Validate enforces the transformation shape contract
func (p TransformationPayload) Validate() error {
	return validateProseMap(p, "transformation", MinScenarioProseLen, MaxScenarioProseLen)
}

func validateProseMap(p map[string]string, kind string, minLen, maxLen int) error {
	if len(p) < MinMapEntries {
		return fmt.Errorf("%s requires at least %d entries, got %d", kind, MinMapEntries, len(p))
	}
	for key, prose := range p {
		if len(prose) < minLen {
			return fmt.Errorf("%s entry %q: prose too short (%d chars, need %d)", kind, key, len(prose), minLen)
		}
		if len(prose) > maxLen {
			return fmt.Errorf("%s entry %q: prose too long (%d chars, max %d)", kind, key, len(prose), maxLen)
		}
	}
	return nil
}
