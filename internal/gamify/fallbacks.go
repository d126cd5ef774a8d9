package gamify

import (
	"fmt"
	"strings"

	"github.com/atelier-lab/archmentor/pkg/models"
)

// theme captures what the fallback library knows about the project from the
// conversation, so a failed generation still produces content the student
// recognizes as theirs.
type theme struct {
	users   string // primary user group
	setting string // site or shell the project sits in
	focus   string // activity the conversation keeps returning to
}

func detectTheme(userMessage, buildingType string) theme {
	lower := strings.ToLower(userMessage + " " + buildingType)
	th := theme{users: "the people who use it daily", setting: "its neighborhood", focus: "everyday life"}

	switch {
	case strings.Contains(lower, "elderly") || strings.Contains(lower, "senior"):
		th.users = "elderly residents"
	case strings.Contains(lower, "child") || strings.Contains(lower, "kids") || strings.Contains(lower, "school"):
		th.users = "children and their caregivers"
	case strings.Contains(lower, "student"):
		th.users = "students"
	case strings.Contains(lower, "artist") || strings.Contains(lower, "maker"):
		th.users = "artists and makers"
	}

	switch {
	case strings.Contains(lower, "warehouse"):
		th.setting = "the old warehouse shell"
	case strings.Contains(lower, "factory"):
		th.setting = "the converted factory floor"
	case strings.Contains(lower, "waterfront") || strings.Contains(lower, "river"):
		th.setting = "the waterfront edge"
	case strings.Contains(lower, "urban") || strings.Contains(lower, "city"):
		th.setting = "the dense urban block"
	}

	switch {
	case strings.Contains(lower, "workshop"):
		th.focus = "hands-on workshop activity"
	case strings.Contains(lower, "journey") || strings.Contains(lower, "sequence"):
		th.focus = "the journey through the building"
	case strings.Contains(lower, "gather") || strings.Contains(lower, "community"):
		th.focus = "gathering and community life"
	case strings.Contains(lower, "exhibit") || strings.Contains(lower, "gallery"):
		th.focus = "exhibition and display"
	}
	return th
}

// contextualFallback returns a curated payload for the challenge type, themed
// by whatever the conversation reveals. Shapes always satisfy the contract so
// renderers never see a degenerate payload.
func contextualFallback(ct models.ChallengeType, buildingType, userMessage string) models.GamePayload {
	th := detectTheme(userMessage, buildingType)
	switch ct {
	case models.ChallengeRolePlay:
		return fallbackRolePlay(buildingType, th)
	case models.ChallengePerspectiveShift:
		return fallbackPerspectiveShift(buildingType, th)
	case models.ChallengeDetective:
		return fallbackDetective(buildingType, th)
	case models.ChallengeConstraint:
		return fallbackConstraint(buildingType, th)
	case models.ChallengeStorytelling:
		return fallbackStorytelling(buildingType, th)
	case models.ChallengeTimeTravel:
		return fallbackTimeTravel(buildingType, th)
	case models.ChallengeTransformation:
		return fallbackTransformation(buildingType, th)
	}
	return nil
}

func fallbackRolePlay(buildingType string, th theme) models.RolePlayPayload {
	return models.RolePlayPayload{
		"The First-Time Visitor": {
			Description: fmt.Sprintf("Someone who has never set foot in the %s and has to find their way using only what the architecture tells them.", buildingType),
			Mission:     "Enter from the street and reach the heart of the building without asking anyone for directions.",
			Insights: []string{
				"Wayfinding starts at the threshold, not at the signage.",
				fmt.Sprintf("What feels obvious to the designer can be invisible to %s.", th.users),
			},
		},
		"The Daily Regular": {
			Description: fmt.Sprintf("One of %s who comes nearly every day and has worn personal paths through %s.", th.users, th.setting),
			Mission:     "Identify the three spots you would claim as your own and explain why the design lets you.",
			Insights: []string{
				"Regulars need territory, not just access to shared space.",
				"Comfort comes from small, claimable edges rather than big open floors.",
			},
		},
		"The Caretaker": {
			Description: fmt.Sprintf("The person who opens the %s at dawn, closes it at night, and fixes what everyone else breaks.", buildingType),
			Mission:     "Walk your opening and closing rounds and flag every place the design makes your job harder.",
			Insights: []string{
				"Back-of-house routes shape the building's daily rhythm.",
				"Maintenance access is a design decision, not an afterthought.",
			},
		},
		"The Skeptical Neighbor": {
			Description: fmt.Sprintf("A resident next to %s who never plans to come inside but lives with the building every day.", th.setting),
			Mission:     "Stand at your window and describe what the building gives you and what it takes away.",
			Insights: []string{
				"A public building's facade is a promise made to people who never enter.",
				"Noise, shadow, and activity spill beyond the property line.",
			},
		},
	}
}

func fallbackPerspectiveShift(buildingType string, th theme) models.PerspectiveShiftPayload {
	return models.PerspectiveShiftPayload{
		fmt.Sprintf("As %s", th.users),
		"As the structural engineer",
		"As the building in fifty years",
		fmt.Sprintf("As %s itself", th.setting),
		"As the maintenance budget",
	}
}

func fallbackDetective(buildingType string, th theme) models.DetectivePayload {
	return models.DetectivePayload{
		MysteryDescription: fmt.Sprintf("Six months after opening, one corner of the %s sits empty every afternoon while the entrance zone is overcrowded. Nobody planned it that way.", buildingType),
		Clues: []string{
			"The empty corner gets full western sun from two in the afternoon.",
			fmt.Sprintf("Most of %s arrive in the morning and settle near the entrance.", th.users),
			"The coffee point was moved during construction to cut one plumbing run.",
			"Staff use the empty corner for storage carts between events.",
		},
		RedHerrings: []string{
			"A rumor says the corner is colder than the rest of the floor.",
			"The furniture there is the same as everywhere else.",
		},
		SolutionHint: fmt.Sprintf("Follow the small amenities. People organize themselves around %s, not around the floor plan.", th.focus),
	}
}

func fallbackConstraint(buildingType string, th theme) models.ConstraintPayload {
	return models.ConstraintPayload{
		"Budget cut by 30%": {
			Impact:    fmt.Sprintf("A third of the budget disappears, so the %s must deliver its core promise to %s with simpler materials and fewer bespoke elements.", buildingType, th.users),
			Challenge: "Choose the one space that keeps its full ambition and redesign the rest around standard components.",
			Color:     "#e74c3c",
			Icon:      "dollar-sign",
		},
		"Preserve the existing structure": {
			Impact:    fmt.Sprintf("Nothing load-bearing in %s may be demolished, so every new opening, void, and vertical connection must negotiate with what is already there.", th.setting),
			Challenge: "Redraw your plan so the strongest existing elements become features instead of obstacles.",
			Color:     "#f39c12",
			Icon:      "shield",
		},
		"Half the site floods annually": {
			Impact:    fmt.Sprintf("Seasonal flooding claims the lower ground for weeks at a time, forcing the %s to lift, sacrifice, or waterproof a large part of its footprint.", buildingType),
			Challenge: "Decide what happens on the floodable level and make it valuable in both wet and dry seasons.",
			Color:     "#3498db",
			Icon:      "alert-triangle",
		},
	}
}

// proseType clamps the building type for the length-bounded prose payloads; a
// long extracted type would push chapters past their upper bound.
func proseType(buildingType string) string {
	if buildingType == "" || len(buildingType) > 24 {
		return "building"
	}
	return buildingType
}

func fallbackStorytelling(buildingType string, th theme) models.StorytellingPayload {
	bt := proseType(buildingType)
	return models.StorytellingPayload{
		"Before the doors open": fmt.Sprintf("Dawn light crosses the empty %s; the caretaker's keys echo and the building waits, arranged for %s.", bt, th.users),
		"The morning arrivals":  fmt.Sprintf("The first of %s drift in and the building sorts them, some to quiet corners, others into %s.", th.users, th.focus),
		"The crowded hour":      fmt.Sprintf("By mid-afternoon every seat near the light is taken, and the %s reveals which of its ideas actually work in use.", bt),
		"After closing":         fmt.Sprintf("The lights step down zone by zone, leaving moved chairs and worn thresholds, the record of how %s used it.", th.users),
	}
}

func fallbackTimeTravel(buildingType string, th theme) models.TimeTravelPayload {
	bt := proseType(buildingType)
	return models.TimeTravelPayload{
		"Opening year":          fmt.Sprintf("The %s is new and a little too proud of itself; people arrive out of curiosity and the spaces learn what survives real use.", bt),
		"Twenty-five years on":  fmt.Sprintf("The materials weathered into character near %s; some spaces thrive, others were repurposed, and the place is better for it.", th.setting),
		"Seventy-five years on": fmt.Sprintf("The city has changed completely around it, yet the %s endures because its structure allowed generations of reinvention.", bt),
	}
}

func fallbackTransformation(buildingType string, th theme) models.TransformationPayload {
	bt := proseType(buildingType)
	return models.TransformationPayload{
		"Overnight emergency shelter": fmt.Sprintf("A regional emergency turns the %s into a shelter within hours: open floors take rows of cots, the kitchen feeds hundreds, and quiet rooms become family enclaves; clear spans and generous services decide whether it works.", bt),
		"Weekend market hall":         fmt.Sprintf("Every weekend the furniture leaves and market stalls claim the structural grid; deliveries pour through the back-of-house while %s mix with traders, and durable floors decide if Monday recovery takes an hour or a day.", th.users),
		"Evening learning annex":      fmt.Sprintf("A nearby school rents the %s every evening: acoustic separation becomes urgent, lighting switches from atmosphere to task, and rooms sized for %s must accept rows of desks on a second timetable.", bt, th.focus),
	}
}
