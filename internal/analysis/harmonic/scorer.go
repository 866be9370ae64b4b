package harmonic

import (
	"math"
	"sort"

	"harmonic-scanner/internal/models"
)

// LegPoints is the most a single leg can contribute; four legs sum to 100.
const LegPoints = 25.0

// Candidate is a scored template match for one window.
type Candidate struct {
	Type       models.PatternType
	Confidence float64
	LegScores  map[Leg]float64
}

// LegScore rates how close a ratio sits to the band's ideal:
// max(0, 1 - |ratio-ideal|/(max-min)) scaled to [0, LegPoints].
func LegScore(ratio float64, band Band) float64 {
	width := band.Width()
	if width <= 0 {
		if ratio == band.Ideal {
			return LegPoints
		}
		return 0
	}
	s := 1 - math.Abs(ratio-band.Ideal)/width
	return clamp(s, 0, 1) * LegPoints
}

// Score sums the four leg scores of the ratios against the template, clamped to [0, 100].
func Score(ratios models.LegRatios, tmpl RatioTemplate) Candidate {
	c := Candidate{
		Type:      tmpl.Type,
		LegScores: make(map[Leg]float64, len(Legs)),
	}
	var total float64
	for _, leg := range Legs {
		s := LegScore(legValue(ratios, leg), tmpl.Band(leg))
		c.LegScores[leg] = s
		total += s
	}
	c.Confidence = clamp(total, 0, 100)
	return c
}

// Rank scores each matched type and orders the candidates best first. Equal
// confidence falls back to pattern precedence (GARTLEY, BUTTERFLY, BAT, CRAB, CYPHER).
func Rank(ratios models.LegRatios, types []models.PatternType) []Candidate {
	candidates := make([]Candidate, 0, len(types))
	for _, t := range types {
		tmpl, err := Template(t)
		if err != nil {
			continue
		}
		candidates = append(candidates, Score(ratios, tmpl))
	}

	sortCandidates(candidates)
	return candidates
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Type.Precedence() < candidates[j].Type.Precedence()
	})
}

// Best returns the winning candidate among the matched types.
func Best(ratios models.LegRatios, types []models.PatternType) (Candidate, bool) {
	ranked := Rank(ratios, types)
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

// clamp restricts a value to a range
func clamp(value, minVal, maxVal float64) float64 {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
