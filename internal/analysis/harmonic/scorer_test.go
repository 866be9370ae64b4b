package harmonic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonic-scanner/internal/models"
)

func TestLegScore(t *testing.T) {
	band := Band{Min: 0.5, Ideal: 0.6, Max: 0.9}

	assert.InDelta(t, LegPoints, LegScore(0.6, band), 1e-12)
	assert.InDelta(t, 25*(1-0.1/0.4), LegScore(0.5, band), 1e-12)
	assert.InDelta(t, 25*(1-0.3/0.4), LegScore(0.9, band), 1e-12)
	assert.Equal(t, 0.0, LegScore(5.0, band))
}

func TestLegScore_DegenerateBand(t *testing.T) {
	band := Band{Min: 1, Ideal: 1, Max: 1}
	assert.Equal(t, LegPoints, LegScore(1, band))
	assert.Equal(t, 0.0, LegScore(1.01, band))
}

func TestScore_IdealIsHundred(t *testing.T) {
	for _, tmpl := range Templates() {
		c := Score(ratiosAtIdeal(tmpl), tmpl)
		assert.InDelta(t, 100, c.Confidence, 1e-9, "%s", tmpl.Type)
		assert.Len(t, c.LegScores, 4)
	}
}

func TestScore_SumsLegScores(t *testing.T) {
	tmpl, err := Template(models.Bat)
	require.NoError(t, err)

	ratios := models.LegRatios{XAB: 0.45, ABC: 0.7, BCD: 2.3, XAD: 0.9}
	c := Score(ratios, tmpl)

	var sum float64
	for _, leg := range Legs {
		sum += c.LegScores[leg]
	}
	assert.InDelta(t, sum, c.Confidence, 1e-12)
	assert.Less(t, c.Confidence, 100.0)
	assert.Greater(t, c.Confidence, 0.0)
}

func TestRank_HighestScoreWins(t *testing.T) {
	// Matches both GARTLEY and BAT; XAD sits on BAT's ideal and GARTLEY's edge.
	ratios := models.LegRatios{XAB: 0.56, ABC: 0.618, BCD: 1.618, XAD: 0.886}
	ranked := Rank(ratios, MatchAll(ratios))
	require.Len(t, ranked, 2)
	assert.Equal(t, models.Bat, ranked[0].Type)
	assert.GreaterOrEqual(t, ranked[0].Confidence, ranked[1].Confidence)
}

func TestSortCandidates_TieBreakPrecedence(t *testing.T) {
	candidates := []Candidate{
		{Type: models.Cypher, Confidence: 80},
		{Type: models.Crab, Confidence: 80},
		{Type: models.Bat, Confidence: 80},
		{Type: models.Butterfly, Confidence: 75},
		{Type: models.Gartley, Confidence: 80},
	}
	sortCandidates(candidates)

	var got []models.PatternType
	for _, c := range candidates {
		got = append(got, c.Type)
	}
	assert.Equal(t, []models.PatternType{models.Gartley, models.Bat, models.Crab, models.Cypher, models.Butterfly}, got)
}

func TestBest_NoTypes(t *testing.T) {
	_, ok := Best(models.LegRatios{}, nil)
	assert.False(t, ok)
}
