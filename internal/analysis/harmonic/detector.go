package harmonic

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"harmonic-scanner/internal/analysis"
	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

// Config holds detector configuration.
type Config struct {
	SwingWindow int  // candles compared per swing test; 3 means one neighbour per side
	Projection  bool // also project D for the trailing X, A, B, C
	Emitter     EmitterConfig
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		SwingWindow: DefaultSwingWindow,
		Emitter:     DefaultEmitterConfig(),
	}
}

// Detector runs the harmonic pipeline over one candle snapshot:
// swings, ratios, template matching, scoring and emission.
type Detector struct {
	cfg     Config
	emitter *Emitter
	logger  zerolog.Logger
}

var _ analysis.PatternDetector = (*Detector)(nil)

// NewDetector creates a new harmonic detector.
func NewDetector(cfg Config, logger zerolog.Logger) *Detector {
	return &Detector{
		cfg:     cfg,
		emitter: NewEmitter(cfg.Emitter),
		logger:  logger.With().Str("component", "harmonic").Logger(),
	}
}

func (d *Detector) Name() string {
	return "HarmonicDetector"
}

// Scan evaluates every 5-point swing window of the snapshot. Each window is
// judged on its own, so overlapping windows may each emit a pattern.
//
// Too few candles or swings aborts the scan with ErrInsufficientData and an
// ABORTED result. The candles are only read.
func (d *Detector) Scan(ctx context.Context, pair models.Pair, candles []models.Candle) (*analysis.ScanResult, error) {
	result := &analysis.ScanResult{
		Pair:    pair,
		Status:  analysis.ScanAborted,
		Candles: len(candles),
	}

	swings, err := ExtractSwings(candles, d.cfg.SwingWindow)
	if err != nil {
		return result, errors.NewScanError(pair.Symbol, string(pair.Timeframe), errors.StageExtracting, err)
	}
	result.Swings = len(swings)

	minSwings := 5
	if d.cfg.Projection {
		minSwings = 4
	}
	if len(swings) < minSwings {
		err := fmt.Errorf("%w: need at least %d swing points, got %d", errors.ErrInsufficientData, minSwings, len(swings))
		return result, errors.NewScanError(pair.Symbol, string(pair.Timeframe), errors.StageExtracting, err)
	}

	asOf := snapshotTime(candles)

	for off := 0; off+5 <= len(swings); off++ {
		if err := ctx.Err(); err != nil {
			return &analysis.ScanResult{Pair: pair, Status: analysis.ScanAborted, Candles: len(candles)},
				errors.NewScanError(pair.Symbol, string(pair.Timeframe), errors.StageMatching, err)
		}
		result.Windows++

		var w Window
		copy(w.Points[:], swings[off:off+5])
		w.Ratios, err = windowRatios(w.Points[:])
		if err != nil {
			result.UndefinedWindows++
			d.logger.Debug().Int("offset", off).Err(err).Msg("Window skipped")
			continue
		}

		matched := MatchAll(w.Ratios)
		if len(matched) == 0 {
			continue
		}
		result.Candidates++

		best, _ := Best(w.Ratios, matched)
		if emission, ok := d.emitter.Emit(pair, w, best, asOf); ok {
			result.Emissions = append(result.Emissions, emission)
		} else {
			d.logger.Debug().
				Int("offset", off).
				Str("pattern", string(best.Type)).
				Float64("confidence", best.Confidence).
				Msg("Candidate below confidence threshold")
		}
	}

	if d.cfg.Projection {
		if emission, ok := d.project(pair, candles, swings, asOf); ok {
			result.Emissions = append(result.Emissions, emission)
		}
	}

	if len(result.Emissions) > 0 {
		result.Status = analysis.ScanEmitted
	} else {
		result.Status = analysis.ScanNoMatch
	}
	return result, nil
}

// project places D at each template's ideal XAD retracement of the trailing
// X, A, B, C swings and keeps the best projection that satisfies all four bands.
// Projections already breached by price after C are ignored.
func (d *Detector) project(pair models.Pair, candles []models.Candle, swings []models.SwingPoint, asOf time.Time) (models.Emission, bool) {
	n := len(swings)
	x, a, b, c := swings[n-4], swings[n-3], swings[n-2], swings[n-1]
	last := candles[len(candles)-1]

	var (
		best    Candidate
		bestWin Window
		found   bool
	)
	for _, tmpl := range Templates() {
		price := a.Price + (x.Price-a.Price)*tmpl.Band(LegXAD).Ideal
		dPoint := models.SwingPoint{
			Index:     len(candles) - 1,
			Price:     price,
			Timestamp: last.OpenTime,
			Label:     c.Label.Opposite(),
		}
		if breached(candles[c.Index+1:], dPoint) {
			continue
		}

		w := Window{Points: [5]models.SwingPoint{x, a, b, c, dPoint}, Projected: true}
		ratios, err := windowRatios(w.Points[:])
		if err != nil || !Matches(ratios, tmpl) {
			continue
		}
		w.Ratios = ratios

		cand := Score(ratios, tmpl)
		if !found || cand.Confidence > best.Confidence {
			best, bestWin, found = cand, w, true
		}
	}
	if !found {
		return models.Emission{}, false
	}
	return d.emitter.Emit(pair, bestWin, best, asOf)
}

// breached reports whether any candle has already traded through the projected point.
func breached(after []models.Candle, p models.SwingPoint) bool {
	for _, c := range after {
		if p.Label == models.SwingLow && c.Low <= p.Price {
			return true
		}
		if p.Label == models.SwingHigh && c.High >= p.Price {
			return true
		}
	}
	return false
}

// snapshotTime is the as-of time of the snapshot: the close of its last candle.
func snapshotTime(candles []models.Candle) time.Time {
	last := candles[len(candles)-1]
	if last.CloseTime > 0 {
		return time.UnixMilli(last.CloseTime).UTC()
	}
	return time.UnixMilli(last.OpenTime).UTC()
}
