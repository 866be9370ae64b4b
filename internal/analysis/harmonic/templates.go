package harmonic

import (
	"fmt"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

// Leg names one of the four measured leg ratios.
type Leg string

const (
	LegXAB Leg = "XAB"
	LegABC Leg = "ABC"
	LegBCD Leg = "BCD"
	LegXAD Leg = "XAD"
)

// Legs lists the legs in the order they are scored.
var Legs = [4]Leg{LegXAB, LegABC, LegBCD, LegXAD}

// Band is an inclusive tolerance range for one leg ratio with its ideal value.
type Band struct {
	Min   float64
	Ideal float64
	Max   float64
}

// Contains reports whether r lies within [Min, Max]. The ideal plays no part.
func (b Band) Contains(r float64) bool {
	return r >= b.Min && r <= b.Max
}

// Width returns Max - Min.
func (b Band) Width() float64 {
	return b.Max - b.Min
}

// RatioTemplate holds the four leg bands of one pattern type.
type RatioTemplate struct {
	Type  models.PatternType
	bands map[Leg]Band
}

// Band returns the band for the leg.
func (t RatioTemplate) Band(leg Leg) Band {
	return t.bands[leg]
}

// templates is built once and only read afterwards, so concurrent scans share it
// without locking.
var templates = map[models.PatternType]RatioTemplate{
	models.Gartley: {
		Type:  models.Gartley,
		bands: map[Leg]Band{
			LegXAB: {Min: 0.55, Ideal: 0.618, Max: 0.70},
			LegABC: {Min: 0.382, Ideal: 0.618, Max: 0.886},
			LegBCD: {Min: 1.13, Ideal: 1.272, Max: 1.618},
			LegXAD: {Min: 0.618, Ideal: 0.786, Max: 0.886},
		},
	},
	models.Butterfly: {
		Type:  models.Butterfly,
		bands: map[Leg]Band{
			LegXAB: {Min: 0.70, Ideal: 0.786, Max: 0.85},
			LegABC: {Min: 0.382, Ideal: 0.618, Max: 0.886},
			LegBCD: {Min: 1.618, Ideal: 2.0, Max: 2.618},
			LegXAD: {Min: 1.13, Ideal: 1.27, Max: 1.618},
		},
	},
	models.Bat: {
		Type:  models.Bat,
		bands: map[Leg]Band{
			LegXAB: {Min: 0.382, Ideal: 0.50, Max: 0.618},
			LegABC: {Min: 0.382, Ideal: 0.618, Max: 0.886},
			LegBCD: {Min: 1.618, Ideal: 2.0, Max: 2.618},
			LegXAD: {Min: 0.80, Ideal: 0.886, Max: 0.95},
		},
	},
	models.Crab: {
		Type:  models.Crab,
		bands: map[Leg]Band{
			LegXAB: {Min: 0.382, Ideal: 0.50, Max: 0.618},
			LegABC: {Min: 0.382, Ideal: 0.618, Max: 0.886},
			LegBCD: {Min: 2.24, Ideal: 2.618, Max: 3.618},
			LegXAD: {Min: 1.40, Ideal: 1.618, Max: 1.80},
		},
	},
	models.Cypher: {
		Type:  models.Cypher,
		bands: map[Leg]Band{
			LegXAB: {Min: 0.382, Ideal: 0.50, Max: 0.618},
			LegABC: {Min: 1.13, Ideal: 1.272, Max: 1.414},
			LegBCD: {Min: 1.272, Ideal: 1.618, Max: 2.0},
			LegXAD: {Min: 0.70, Ideal: 0.786, Max: 0.886},
		},
	},
}

// Template returns the ratio template for the pattern type.
func Template(t models.PatternType) (RatioTemplate, error) {
	tmpl, ok := templates[t]
	if !ok {
		return RatioTemplate{}, fmt.Errorf("%w: %s", errors.ErrUnknownPattern, t)
	}
	return tmpl, nil
}

// Templates returns every template in tie-break precedence order.
func Templates() []RatioTemplate {
	out := make([]RatioTemplate, 0, len(models.PatternTypes))
	for _, t := range models.PatternTypes {
		out = append(out, templates[t])
	}
	return out
}
