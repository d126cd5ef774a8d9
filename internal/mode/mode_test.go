package mode

import (
	"testing"

	"github.com/atelier-lab/archmentor/pkg/models"
)

func TestFlagsPerArm(t *testing.T) {
	mentor := ForArm(models.ArmMentor)
	if !mentor.AllowLLM || !mentor.AllowSocratic || !mentor.AllowGamification || !mentor.AutoPhaseAdvance {
		t.Errorf("mentor flags = %+v", mentor)
	}

	generic := ForArm(models.ArmGeneric)
	if !generic.AllowLLM {
		t.Error("generic arm should use the LLM")
	}
	if generic.AllowSocratic || generic.AllowGamification || generic.AutoPhaseAdvance {
		t.Errorf("generic flags = %+v", generic)
	}

	control := ForArm(models.ArmControl)
	if control.AllowLLM {
		t.Error("control arm must never reach the LLM")
	}
	if control.TaskFraming != FramingMinimal {
		t.Errorf("control framing = %s", control.TaskFraming)
	}
}

func TestControlResponseMatchesTopic(t *testing.T) {
	got := ControlResponse("I'm not sure about my site and its context")
	if got == cannedDefault {
		t.Error("site question should match the site prompt")
	}

	if got := ControlResponse("xyzzy"); got != cannedDefault {
		t.Errorf("unmatched input returned %q", got)
	}
}
