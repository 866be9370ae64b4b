package harmonic

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

var testAsOf = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// windowFor labels the pivots as alternating swings and computes their ratios.
func windowFor(t *testing.T, pivots []float64) Window {
	t.Helper()
	var w Window
	first := models.SwingLow
	if pivots[1] < pivots[0] {
		first = models.SwingHigh
	}
	label := first
	for i, p := range pivots {
		w.Points[i] = models.SwingPoint{Index: i * 5, Price: p, Timestamp: testBaseTime + int64(i)*3_600_000, Label: label}
		label = label.Opposite()
	}
	var err error
	w.Ratios, err = windowRatios(w.Points[:])
	require.NoError(t, err)
	return w
}

func scoreAs(t *testing.T, w Window, pt models.PatternType) Candidate {
	t.Helper()
	tmpl, err := Template(pt)
	require.NoError(t, err)
	require.True(t, Matches(w.Ratios, tmpl), "window does not match %s: %+v", pt, w.Ratios)
	return Score(w.Ratios, tmpl)
}

func TestEmit_LongGartleySetup(t *testing.T) {
	p := xabcd(100, 161.8, 0.618, 0.618, 1.272)
	w := windowFor(t, p)
	cand := scoreAs(t, w, models.Gartley)

	e := NewEmitter(DefaultEmitterConfig())
	em, ok := e.Emit(testPair, w, cand, testAsOf)
	require.True(t, ok)

	pat := em.Pattern
	assert.Equal(t, models.Gartley, pat.Type)
	assert.Equal(t, models.Long, pat.Direction)
	assert.Equal(t, testPair.Symbol, pat.Symbol)
	assert.Equal(t, testAsOf, pat.DetectedAt)
	assert.False(t, pat.Projected())

	x, c, d := p[0], p[3], p[4]
	s := em.Setup
	assert.True(t, s.Valid)
	assert.Equal(t, pat.ID, s.PatternID)
	assert.Equal(t, models.SetupPending, s.Status)
	assert.InDelta(t, d, s.Entry, 1e-8)
	assert.InDelta(t, x*0.99, s.StopLoss, 1e-8)
	require.Len(t, s.TakeProfits, 3)
	assert.InDelta(t, d+0.382*(c-d), s.TakeProfit(1), 1e-8)
	assert.InDelta(t, d+0.618*(c-d), s.TakeProfit(2), 1e-8)
	assert.InDelta(t, c, s.TakeProfit(3), 1e-8)
	assert.InDelta(t, (s.TakeProfit(1)-s.Entry)/(s.Entry-s.StopLoss), s.RiskReward, 1e-9)
	assert.Equal(t, testAsOf.Add(20*time.Hour), s.ValidUntil)
}

func TestEmit_ShortGartleySetup(t *testing.T) {
	p := xabcd(100, 60, 0.618, 0.618, 1.272)
	w := windowFor(t, p)
	em, ok := NewEmitter(DefaultEmitterConfig()).Emit(testPair, w, scoreAs(t, w, models.Gartley), testAsOf)
	require.True(t, ok)

	assert.Equal(t, models.Short, em.Pattern.Direction)
	assert.InDelta(t, 101.0, em.Setup.StopLoss, 1e-8)
	assert.Greater(t, em.Setup.StopLoss, em.Setup.Entry)
	assert.Less(t, em.Setup.TakeProfit(1), em.Setup.Entry)
	assert.Greater(t, em.Setup.RiskReward, 0.0)
}

func TestEmit_PointsCarryRatiosAndContributions(t *testing.T) {
	w := windowFor(t, xabcd(100, 161.8, 0.618, 0.618, 1.272))
	cand := scoreAs(t, w, models.Gartley)
	em, ok := NewEmitter(DefaultEmitterConfig()).Emit(testPair, w, cand, testAsOf)
	require.True(t, ok)

	pts := em.Pattern.Points
	assert.Nil(t, pts[0].Ratio)
	assert.Nil(t, pts[1].Ratio)
	require.NotNil(t, pts[2].Ratio)
	assert.InDelta(t, w.Ratios.XAB, *pts[2].Ratio, 1e-12)
	assert.InDelta(t, w.Ratios.ABC, *pts[3].Ratio, 1e-12)
	assert.InDelta(t, w.Ratios.XAD, *pts[4].Ratio, 1e-12)

	var sum float64
	for i, pt := range pts {
		assert.Equal(t, models.PointLabels[i], pt.Label)
		sum += pt.Contribution
	}
	assert.InDelta(t, em.Pattern.Confidence, sum, 1e-9)
}

func TestEmit_ConfidenceThreshold(t *testing.T) {
	w := windowFor(t, xabcd(100, 161.8, 0.618, 0.618, 1.272))
	e := NewEmitter(DefaultEmitterConfig())

	_, ok := e.Emit(testPair, w, Candidate{Type: models.Gartley, Confidence: 70}, testAsOf)
	assert.True(t, ok, "confidence at threshold emits")

	_, ok = e.Emit(testPair, w, Candidate{Type: models.Gartley, Confidence: 69.999}, testAsOf)
	assert.False(t, ok, "confidence below threshold is discarded")
}

func TestEmit_DegenerateRiskReward(t *testing.T) {
	// Butterfly D extends below X; with no buffer the stop anchors on D itself.
	p := xabcd(100, 150, 0.786, 0.618, 2.0)
	w := windowFor(t, p)
	cand := scoreAs(t, w, models.Butterfly)

	cfg := DefaultEmitterConfig()
	cfg.StopBufferPercent = 0
	em, ok := NewEmitter(cfg).Emit(testPair, w, cand, testAsOf)
	require.True(t, ok, "pattern is still emitted")

	assert.False(t, em.Setup.Valid)
	assert.Equal(t, models.InvalidDegenerateRR, em.Setup.InvalidReason)
	assert.Equal(t, 0.0, em.Setup.RiskReward)
	assert.Equal(t, em.Setup.Entry, em.Setup.StopLoss)
}

func TestEmit_ExtendedPatternStopBelowD(t *testing.T) {
	p := xabcd(100, 150, 0.786, 0.618, 2.0)
	w := windowFor(t, p)
	em, ok := NewEmitter(DefaultEmitterConfig()).Emit(testPair, w, scoreAs(t, w, models.Butterfly), testAsOf)
	require.True(t, ok)

	assert.True(t, em.Setup.Valid)
	assert.Less(t, em.Setup.StopLoss, em.Setup.Entry)
	assert.InDelta(t, p[4]*0.99, em.Setup.StopLoss, 1e-8)
}

func TestEmit_DeterministicIDs(t *testing.T) {
	w := windowFor(t, xabcd(100, 161.8, 0.618, 0.618, 1.272))
	cand := scoreAs(t, w, models.Gartley)
	e := NewEmitter(DefaultEmitterConfig())

	first, _ := e.Emit(testPair, w, cand, testAsOf)
	second, _ := e.Emit(testPair, w, cand, testAsOf.Add(time.Hour))
	assert.Equal(t, first.Pattern.ID, second.Pattern.ID)
	assert.Equal(t, first.Setup.ID, second.Setup.ID)
	assert.NotEqual(t, first.Pattern.ID, first.Setup.ID)

	other, _ := e.Emit(models.Pair{Symbol: "OTHER", Timeframe: testPair.Timeframe}, w, cand, testAsOf)
	assert.NotEqual(t, first.Pattern.ID, other.Pattern.ID)
}

func TestEmit_PriceRounding(t *testing.T) {
	cfg := DefaultEmitterConfig()
	cfg.PriceDecimals = 2
	w := windowFor(t, xabcd(100, 161.8, 0.618, 0.618, 1.272))
	em, ok := NewEmitter(cfg).Emit(testPair, w, scoreAs(t, w, models.Gartley), testAsOf)
	require.True(t, ok)

	for _, v := range append([]float64{em.Setup.Entry, em.Setup.StopLoss}, em.Setup.TakeProfits...) {
		assert.InDelta(t, math.Round(v*100)/100, v, 1e-9)
	}
}

func TestRiskReward(t *testing.T) {
	rr, err := RiskReward(100, 95, 110)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, rr, 1e-12)

	_, err = RiskReward(100, 100, 110)
	assert.ErrorIs(t, err, errors.ErrDegenerateRiskReward)
}
