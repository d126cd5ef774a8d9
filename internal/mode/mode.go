package mode

import (
	"strings"

	"github.com/atelier-lab/archmentor/pkg/models"
)

// Flags are the derived per-arm behavior switches. This package is the only
// place the arm tag is interpreted; everything downstream consumes the flags.
type Flags struct {
	AllowLLM          bool
	AllowGamification bool
	AllowSocratic     bool
	AutoPhaseAdvance  bool
	TaskFraming       string
}

// Framing styles for surfaced tasks
const (
	FramingSocratic = "socratic"
	FramingDirect   = "direct"
	FramingMinimal  = "minimal"
)

// ForArm derives the behavior flags for a test arm
func ForArm(arm models.Arm) Flags {
	switch arm {
	case models.ArmGeneric:
		return Flags{
			AllowLLM:          true,
			AllowGamification: false,
			AllowSocratic:     false,
			AutoPhaseAdvance:  false,
			TaskFraming:       FramingDirect,
		}
	case models.ArmControl:
		return Flags{
			AllowLLM:          false,
			AllowGamification: false,
			AllowSocratic:     false,
			AutoPhaseAdvance:  false,
			TaskFraming:       FramingMinimal,
		}
	default:
		return Flags{
			AllowLLM:          true,
			AllowGamification: true,
			AllowSocratic:     true,
			AutoPhaseAdvance:  true,
			TaskFraming:       FramingSocratic,
		}
	}
}

// cannedPrompts is the control arm's pre-authored bank. Selection is by crude
// topic matching; the control condition deliberately offers no intelligence.
var cannedPrompts = []struct {
	keywords []string
	text     string
}{
	{[]string{"site", "context", "location"},
		"Consider documenting your site conditions: orientation, access, neighbors, and climate."},
	{[]string{"concept", "idea", "parti"},
		"Try writing your design concept as a single sentence."},
	{[]string{"program", "spaces", "rooms"},
		"List the spaces your building needs and their approximate sizes."},
	{[]string{"material", "structure", "construction"},
		"Note the main materials and structural system you are considering."},
	{[]string{"drawing", "plan", "section", "sketch"},
		"Work on a plan and a section that show your key spatial decisions."},
	{[]string{"user", "people", "visitor"},
		"Describe who will use the building and at what times of day."},
}

const cannedDefault = "Continue developing your design. Record your current thinking in notes or sketches."

// ControlResponse returns the pre-authored prompt for a control-arm turn.
// No LLM is consulted on this path.
func ControlResponse(userText string) string {
	lower := strings.ToLower(userText)
	for _, p := range cannedPrompts {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return p.text
			}
		}
	}
	return cannedDefault
}
