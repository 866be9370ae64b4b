package models

import "time"

// PatternType names a harmonic pattern family.
type PatternType string

const (
	Gartley   PatternType = "GARTLEY"
	Butterfly PatternType = "BUTTERFLY"
	Bat       PatternType = "BAT"
	Crab      PatternType = "CRAB"
	Cypher    PatternType = "CYPHER"
)

// PatternTypes lists every pattern type in tie-break precedence order.
// The first listed wins equal confidence scores.
var PatternTypes = []PatternType{Gartley, Butterfly, Bat, Crab, Cypher}

// Precedence returns the tie-break rank of the type (lower wins), or -1 when unknown.
func (t PatternType) Precedence() int {
	for i, pt := range PatternTypes {
		if pt == t {
			return i
		}
	}
	return -1
}

// Direction is the trade direction implied by a completed pattern.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// PointLabel names one of the five pattern points.
type PointLabel string

const (
	PointX PointLabel = "X"
	PointA PointLabel = "A"
	PointB PointLabel = "B"
	PointC PointLabel = "C"
	PointD PointLabel = "D"
)

// PointLabels lists the five points in order.
var PointLabels = [5]PointLabel{PointX, PointA, PointB, PointC, PointD}

// LegRatios holds the four Fibonacci leg ratios of an XABCD window.
type LegRatios struct {
	XAB float64 `json:"xab"`
	ABC float64 `json:"abc"`
	BCD float64 `json:"bcd"`
	XAD float64 `json:"xad"`
}

// PatternPoint is one of the X, A, B, C, D points of a pattern.
type PatternPoint struct {
	Label        PointLabel `json:"label"`
	Price        float64    `json:"price"`
	Timestamp    int64      `json:"timestamp"`
	Ratio        *float64   `json:"ratio,omitempty"` // ratio realized against the prior leg; nil for X
	Contribution float64    `json:"contribution"`    // confidence points earned at this point
	Projected    bool       `json:"projected"`
}

// HarmonicPattern is an emitted pattern detection. It is never mutated after emission.
type HarmonicPattern struct {
	ID         string          `json:"id"`
	Type       PatternType     `json:"type"`
	Points     [5]PatternPoint `json:"points"`
	Ratios     LegRatios       `json:"ratios"`
	Confidence float64         `json:"confidence"`
	Direction  Direction       `json:"direction"`
	Symbol     string          `json:"symbol"`
	Timeframe  Timeframe       `json:"timeframe"`
	DetectedAt time.Time       `json:"detected_at"`
}

// Point returns the point with the given label.
func (p *HarmonicPattern) Point(label PointLabel) PatternPoint {
	for _, pt := range p.Points {
		if pt.Label == label {
			return pt
		}
	}
	return PatternPoint{}
}

// Projected reports whether the pattern's D point is a projection rather than an observed swing.
func (p *HarmonicPattern) Projected() bool {
	return p.Points[4].Projected
}
