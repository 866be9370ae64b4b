package harmonic

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return parameters
}

// randomWalk builds OHLC candles from price steps, starting at 1000.
func randomWalk(steps []float64) []models.Candle {
	candles := make([]models.Candle, len(steps))
	price := 1000.0
	for i, s := range steps {
		open, closePrice := price, price+s
		openTime := testBaseTime + int64(i)*3_600_000
		candles[i] = models.Candle{
			Symbol:    testPair.Symbol,
			Timeframe: testPair.Timeframe,
			Open:      open,
			High:      math.Max(open, closePrice) + 0.25,
			Low:       math.Min(open, closePrice) - 0.25,
			Close:     closePrice,
			Volume:    1,
			OpenTime:  openTime,
			CloseTime: openTime + 3_599_999,
		}
		price = closePrice
	}
	return candles
}

var stepsGen = gen.SliceOf(gen.Float64Range(-3, 3))

// Feature: harmonic-scanner, Property 1: Swing points alternate and sit on candle extremes
//
// Property: For any candle series, extracted swings strictly alternate HIGH/LOW,
// have increasing indices, and carry the High (or Low) of the candle they point at.
func TestProperty_SwingsAlternate(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("swings alternate on candle extremes", prop.ForAll(
		func(steps []float64) bool {
			candles := randomWalk(steps)
			swings, err := ExtractSwings(candles, DefaultSwingWindow)
			if err != nil {
				return errors.Is(err, errors.ErrInsufficientData)
			}
			for i, s := range swings {
				want := candles[s.Index].Low
				if s.Label == models.SwingHigh {
					want = candles[s.Index].High
				}
				if s.Price != want || s.Timestamp != candles[s.Index].OpenTime {
					return false
				}
				if i > 0 && (swings[i-1].Label == s.Label || swings[i-1].Index > s.Index) {
					return false
				}
			}
			return true
		},
		stepsGen,
	))

	properties.TestingRun(t)
}

// Feature: harmonic-scanner, Property 2: Fewer than three candles never yield swings
func TestProperty_ShortSeriesInsufficient(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("fewer than three candles is insufficient data", prop.ForAll(
		func(n int, step float64) bool {
			steps := make([]float64, n)
			for i := range steps {
				steps[i] = step * float64(i%2*2-1)
			}
			_, err := ExtractSwings(randomWalk(steps), DefaultSwingWindow)
			return errors.Is(err, errors.ErrInsufficientData)
		},
		gen.IntRange(0, 2),
		gen.Float64Range(-3, 3),
	))

	properties.TestingRun(t)
}

// Feature: harmonic-scanner, Property 3: Ratios are finite or explicitly undefined
//
// Property: For any five prices, ComputeRatios either returns ErrUndefinedRatio or
// four finite non-negative ratios. Confidence for any template stays within [0, 100].
func TestProperty_RatiosFiniteAndConfidenceBounded(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	priceGen := gen.Float64Range(1, 1000)
	properties.Property("ratios finite, confidence bounded", prop.ForAll(
		func(x, a, b, c, d float64) bool {
			r, err := ComputeRatios(x, a, b, c, d)
			if err != nil {
				return errors.Is(err, errors.ErrUndefinedRatio)
			}
			for _, v := range []float64{r.XAB, r.ABC, r.BCD, r.XAD} {
				if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
					return false
				}
			}
			for _, tmpl := range Templates() {
				conf := Score(r, tmpl).Confidence
				if conf < 0 || conf > 100 {
					return false
				}
			}
			return true
		},
		priceGen, priceGen, priceGen, priceGen, priceGen,
	))

	properties.TestingRun(t)
}

// Feature: harmonic-scanner, Property 4: Scanning is idempotent
//
// Property: Scanning the same snapshot twice yields identical results, IDs included.
func TestProperty_ScanIdempotent(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	cfg := DefaultConfig()
	cfg.Emitter.MinConfidence = 0
	detector := NewDetector(cfg, zerolog.Nop())

	properties.Property("same snapshot, same result", prop.ForAll(
		func(steps []float64) bool {
			candles := randomWalk(steps)
			first, err1 := detector.Scan(context.Background(), testPair, candles)
			second, err2 := detector.Scan(context.Background(), testPair, candles)
			return reflect.DeepEqual(first, second) && reflect.DeepEqual(err1, err2)
		},
		stepsGen,
	))

	properties.TestingRun(t)
}

// Feature: harmonic-scanner, Property 5: Raising the threshold never adds patterns
func TestProperty_ThresholdMonotonic(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("higher threshold emits a subset", prop.ForAll(
		func(steps []float64, low, delta float64) bool {
			candles := randomWalk(steps)

			loCfg := DefaultConfig()
			loCfg.Emitter.MinConfidence = low
			hiCfg := loCfg
			hiCfg.Emitter.MinConfidence = low + delta

			lo, errLo := NewDetector(loCfg, zerolog.Nop()).Scan(context.Background(), testPair, candles)
			hi, errHi := NewDetector(hiCfg, zerolog.Nop()).Scan(context.Background(), testPair, candles)
			if errLo != nil || errHi != nil {
				return (errLo != nil) == (errHi != nil)
			}

			ids := make(map[string]bool, len(lo.Emissions))
			for _, em := range lo.Emissions {
				ids[em.Pattern.ID] = true
			}
			for _, em := range hi.Emissions {
				if !ids[em.Pattern.ID] || em.Pattern.Confidence < hiCfg.Emitter.MinConfidence {
					return false
				}
			}
			return len(hi.Emissions) <= len(lo.Emissions)
		},
		stepsGen,
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 50),
	))

	properties.TestingRun(t)
}

// Feature: harmonic-scanner, Property 6: Gartley-shaped swings are always detected
//
// Property: A clean zigzag whose leg ratios satisfy the GARTLEY template produces
// exactly one emitted pattern with a setup on the correct side of entry.
func TestProperty_GartleyDetected(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	gartley, err := Template(models.Gartley)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Emitter.MinConfidence = 0
	detector := NewDetector(cfg, zerolog.Nop())

	properties.Property("gartley zigzag emits one pattern", prop.ForAll(
		func(xab, abc, bcd float64, bullish bool) bool {
			a := 160.0
			if !bullish {
				a = 60.0
			}
			p := xabcd(100, a, xab, abc, bcd)
			r, err := ComputeRatios(p[0], p[1], p[2], p[3], p[4])
			if err != nil || !Matches(r, gartley) {
				return true
			}

			result, err := detector.Scan(context.Background(), testPair, zigzag(p, 4))
			if err != nil || len(result.Emissions) != 1 {
				return false
			}
			em := result.Emissions[0]
			if em.Pattern.Confidence < 0 || em.Pattern.Confidence > 100 || !em.Setup.Valid {
				return false
			}
			if bullish {
				return em.Pattern.Direction == models.Long && em.Setup.StopLoss < em.Setup.Entry
			}
			return em.Pattern.Direction == models.Short && em.Setup.StopLoss > em.Setup.Entry
		},
		gen.Float64Range(0.55, 0.70),
		gen.Float64Range(0.382, 0.886),
		gen.Float64Range(1.13, 1.618),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Feature: harmonic-scanner, Property 12: Moving a leg toward its ideal never lowers its score
//
// Property: For any template leg and two ratios inside its band, the ratio
// nearer the ideal scores at least as much as the one farther away.
func TestProperty_LegScoreMonotonic(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	templates := Templates()
	properties.Property("closer to ideal scores no less", prop.ForAll(
		func(tmplIdx, legIdx int, u, v float64) bool {
			band := templates[tmplIdx%len(templates)].Band(Legs[legIdx%len(Legs)])
			r1 := band.Min + u*(band.Max-band.Min)
			r2 := band.Min + v*(band.Max-band.Min)

			near, far := r1, r2
			if math.Abs(r2-band.Ideal) < math.Abs(r1-band.Ideal) {
				near, far = r2, r1
			}
			return LegScore(near, band) >= LegScore(far, band)
		},
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
