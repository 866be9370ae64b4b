package harmonic

import (
	"math"

	"harmonic-scanner/internal/models"
)

const testBaseTime = int64(1_700_000_000_000)

var testPair = models.Pair{Symbol: "TESTUSDT", Timeframe: models.Timeframe1h}

// xabcd returns the five pivot prices realizing the given XAB, ABC and BCD ratios.
// XAD follows from the other three.
func xabcd(x, a, xab, abc, bcd float64) []float64 {
	b := a - xab*(a-x)
	c := b + abc*(a-b)
	d := c - bcd*(c-b)
	return []float64{x, a, b, c, d}
}

// zigzag builds flat candles whose swing points are exactly the given pivots.
// Each leg is walked in `steps` strictly monotonic candles, with one extra candle
// before the first pivot and after the last so both are interior extrema.
func zigzag(pivots []float64, steps int) []models.Candle {
	prices := make([]float64, 0, len(pivots)*steps+2)

	first := pivots[0]
	eps := math.Abs(pivots[1]-pivots[0]) / float64(2*steps)
	if pivots[1] > first {
		prices = append(prices, first+eps)
	} else {
		prices = append(prices, first-eps)
	}
	prices = append(prices, first)

	for i := 1; i < len(pivots); i++ {
		from, to := pivots[i-1], pivots[i]
		for s := 1; s < steps; s++ {
			prices = append(prices, from+(to-from)*float64(s)/float64(steps))
		}
		prices = append(prices, to)
	}

	n := len(pivots)
	last := pivots[n-1]
	eps = math.Abs(pivots[n-1]-pivots[n-2]) / float64(2*steps)
	if pivots[n-2] > last {
		prices = append(prices, last+eps)
	} else {
		prices = append(prices, last-eps)
	}

	return flatCandles(prices)
}

func flatCandles(prices []float64) []models.Candle {
	candles := make([]models.Candle, len(prices))
	for i, p := range prices {
		open := testBaseTime + int64(i)*3_600_000
		candles[i] = models.Candle{
			Symbol:    testPair.Symbol,
			Timeframe: testPair.Timeframe,
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			Volume:    1,
			OpenTime:  open,
			CloseTime: open + 3_599_999,
		}
	}
	return candles
}

// ratiosAtIdeal returns leg ratios sitting on every ideal of the template.
func ratiosAtIdeal(tmpl RatioTemplate) models.LegRatios {
	return models.LegRatios{
		XAB: tmpl.Band(LegXAB).Ideal,
		ABC: tmpl.Band(LegABC).Ideal,
		BCD: tmpl.Band(LegBCD).Ideal,
		XAD: tmpl.Band(LegXAD).Ideal,
	}
}

func setLeg(r *models.LegRatios, leg Leg, v float64) {
	switch leg {
	case LegXAB:
		r.XAB = v
	case LegABC:
		r.ABC = v
	case LegBCD:
		r.BCD = v
	case LegXAD:
		r.XAD = v
	}
}
