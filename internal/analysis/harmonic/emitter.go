package harmonic

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

const (
	DefaultMinConfidence     = 70.0
	DefaultStopBufferPercent = 1.0
	DefaultValidityBars      = 20
	DefaultPriceDecimals     = 8
)

// takeProfitRetracements are the CD-leg retracements, measured from D back toward C,
// used for TP1..TP3.
var takeProfitRetracements = [3]float64{0.382, 0.618, 1.0}

// Name-based UUID namespaces: the same pattern found again in a later scan gets the
// same ID, so downstream stores can upsert.
var (
	patternNamespace = uuid.MustParse("6f1c2a4e-8d3b-4c57-9a0e-2b7d5f3e1c90")
	setupNamespace   = uuid.MustParse("b2e4d6f8-1a3c-4e5f-8b7d-9c0a2e4f6b18")
)

// EmitterConfig holds the thresholds used when materializing patterns and setups.
type EmitterConfig struct {
	MinConfidence     float64 // candidates scoring below this are discarded
	StopBufferPercent float64 // distance beyond X for the stop-loss, in percent
	ValidityBars      int     // setup validity window in bars of the pattern's timeframe
	PriceDecimals     int32   // rounding applied to setup levels; negative disables rounding
}

// DefaultEmitterConfig returns the default emitter configuration.
func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		MinConfidence:     DefaultMinConfidence,
		StopBufferPercent: DefaultStopBufferPercent,
		ValidityBars:      DefaultValidityBars,
		PriceDecimals:     DefaultPriceDecimals,
	}
}

// Window is one XABCD swing window together with its computed ratios.
type Window struct {
	Points    [5]models.SwingPoint
	Ratios    models.LegRatios
	Projected bool // D was projected from X, A, B, C rather than observed
}

// Emitter turns winning candidates into patterns and trade setups.
type Emitter struct {
	cfg EmitterConfig
}

// NewEmitter creates a new emitter.
func NewEmitter(cfg EmitterConfig) *Emitter {
	return &Emitter{cfg: cfg}
}

// Config returns the emitter configuration.
func (e *Emitter) Config() EmitterConfig {
	return e.cfg
}

// Emit builds the pattern and its setup when the candidate clears the confidence
// threshold. A candidate below threshold is not an error; ok is false.
func (e *Emitter) Emit(pair models.Pair, w Window, cand Candidate, asOf time.Time) (models.Emission, bool) {
	if cand.Confidence < e.cfg.MinConfidence {
		return models.Emission{}, false
	}
	pattern := e.buildPattern(pair, w, cand, asOf)
	setup := e.BuildSetup(&pattern)
	return models.Emission{Pattern: pattern, Setup: setup}, true
}

func (e *Emitter) buildPattern(pair models.Pair, w Window, cand Candidate, asOf time.Time) models.HarmonicPattern {
	d := w.Points[4]
	direction := models.Short
	if d.Label == models.SwingLow {
		direction = models.Long
	}

	ratios := [5]*float64{nil, nil, ptr(w.Ratios.XAB), ptr(w.Ratios.ABC), ptr(w.Ratios.XAD)}
	contributions := [5]float64{
		0,
		0,
		cand.LegScores[LegXAB],
		cand.LegScores[LegABC],
		cand.LegScores[LegBCD] + cand.LegScores[LegXAD],
	}

	var points [5]models.PatternPoint
	for i, sp := range w.Points {
		points[i] = models.PatternPoint{
			Label:        models.PointLabels[i],
			Price:        sp.Price,
			Timestamp:    sp.Timestamp,
			Ratio:        ratios[i],
			Contribution: contributions[i],
			Projected:    i == 4 && w.Projected,
		}
	}

	return models.HarmonicPattern{
		ID:         patternID(pair, cand.Type, w),
		Type:       cand.Type,
		Points:     points,
		Ratios:     w.Ratios,
		Confidence: cand.Confidence,
		Direction:  direction,
		Symbol:     pair.Symbol,
		Timeframe:  pair.Timeframe,
		DetectedAt: asOf,
	}
}

// BuildSetup derives the trade setup from a pattern. Entry is D; the stop sits the
// configured buffer beyond X on the adverse side of the trade, anchored on D instead
// when D has already extended past X; targets retrace the CD leg by 38.2%, 61.8% and 100%.
func (e *Emitter) BuildSetup(p *models.HarmonicPattern) models.TradeSetup {
	x := p.Points[0].Price
	c := p.Points[3].Price
	d := p.Points[4].Price
	buffer := e.cfg.StopBufferPercent / 100

	var stop float64
	if p.Direction == models.Long {
		stop = math.Min(x, d) * (1 - buffer)
	} else {
		stop = math.Max(x, d) * (1 + buffer)
	}

	entry := e.round(d)
	stop = e.round(stop)
	targets := make([]float64, 0, len(takeProfitRetracements))
	for _, r := range takeProfitRetracements {
		targets = append(targets, e.round(d+r*(c-d)))
	}

	setup := models.TradeSetup{
		ID:          uuid.NewSHA1(setupNamespace, []byte(p.ID)).String(),
		PatternID:   p.ID,
		Symbol:      p.Symbol,
		Timeframe:   p.Timeframe,
		Direction:   p.Direction,
		Entry:       entry,
		StopLoss:    stop,
		TakeProfits: targets,
		Valid:       true,
		Status:      models.SetupPending,
		ValidFrom:   p.DetectedAt,
		ValidUntil:  p.DetectedAt.Add(time.Duration(e.cfg.ValidityBars) * p.Timeframe.Duration()),
	}

	rr, err := RiskReward(entry, stop, targets[0])
	if err != nil {
		setup.Valid = false
		setup.InvalidReason = models.InvalidDegenerateRR
		return setup
	}
	setup.RiskReward = rr
	return setup
}

// RiskReward returns |target-entry| / |entry-stop|. Entry equal to stop yields
// ErrDegenerateRiskReward.
func RiskReward(entry, stop, target float64) (float64, error) {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0, errors.ErrDegenerateRiskReward
	}
	return math.Abs(target-entry) / risk, nil
}

func (e *Emitter) round(v float64) float64 {
	if e.cfg.PriceDecimals < 0 {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(e.cfg.PriceDecimals).Float64()
	return f
}

func patternID(pair models.Pair, t models.PatternType, w Window) string {
	key := fmt.Sprintf("%s|%s|%s|%d|%d|%d|%d|%d|%t",
		pair.Symbol, pair.Timeframe, t,
		w.Points[0].Timestamp, w.Points[1].Timestamp, w.Points[2].Timestamp,
		w.Points[3].Timestamp, w.Points[4].Timestamp, w.Projected)
	return uuid.NewSHA1(patternNamespace, []byte(key)).String()
}

func ptr(v float64) *float64 {
	return &v
}
