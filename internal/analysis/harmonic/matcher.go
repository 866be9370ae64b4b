package harmonic

import (
	"harmonic-scanner/internal/models"
)

// LegMatch is the eligibility verdict for one leg against one template band.
type LegMatch struct {
	Leg     Leg
	Ratio   float64
	Band    Band
	Matched bool
}

// MatchTemplate checks every leg of the ratios against the template. The pattern
// matches only when all four legs lie inside their bands.
func MatchTemplate(ratios models.LegRatios, tmpl RatioTemplate) ([4]LegMatch, bool) {
	var legs [4]LegMatch
	all := true
	for i, leg := range Legs {
		band := tmpl.Band(leg)
		r := legValue(ratios, leg)
		legs[i] = LegMatch{Leg: leg, Ratio: r, Band: band, Matched: band.Contains(r)}
		if !legs[i].Matched {
			all = false
		}
	}
	return legs, all
}

// Matches reports whether all four legs fall inside the template's bands.
func Matches(ratios models.LegRatios, tmpl RatioTemplate) bool {
	_, ok := MatchTemplate(ratios, tmpl)
	return ok
}

// MatchAll returns every pattern type whose template the ratios satisfy, in
// precedence order. Overlapping bands can yield several types; choosing among
// them is the scorer's job.
func MatchAll(ratios models.LegRatios) []models.PatternType {
	var matched []models.PatternType
	for _, tmpl := range Templates() {
		if Matches(ratios, tmpl) {
			matched = append(matched, tmpl.Type)
		}
	}
	return matched
}
