// Package harmonic implements XABCD harmonic pattern detection: swing extraction,
// Fibonacci leg ratios, template matching, confidence scoring and setup emission.
package harmonic

import (
	"fmt"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

// DefaultSwingWindow compares each candle with one neighbour on each side.
const DefaultSwingWindow = 3

// ExtractSwings identifies alternating swing highs and lows in the candles.
//
// A candle is a swing high when its high is strictly above the highs of the
// (window-1)/2 candles on each side, and a swing low when its low is strictly
// below their lows. Runs of same-label extrema collapse into the most extreme
// member, so the returned labels strictly alternate.
func ExtractSwings(candles []models.Candle, window int) ([]models.SwingPoint, error) {
	if len(candles) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 candles, got %d", errors.ErrInsufficientData, len(candles))
	}
	if window < DefaultSwingWindow {
		window = DefaultSwingWindow
	}
	span := (window - 1) / 2

	swings := collapseRuns(findSwingPoints(candles, span))
	if len(swings) == 0 {
		return nil, fmt.Errorf("%w: no swing points in %d candles", errors.ErrInsufficientData, len(candles))
	}
	return swings, nil
}

// findSwingPoints returns raw local extrema in index order. A candle that is both
// a swing high and a swing low yields two points, ordered to continue alternation.
func findSwingPoints(candles []models.Candle, span int) []models.SwingPoint {
	n := len(candles)
	swings := make([]models.SwingPoint, 0, n/2)

	for i := span; i < n-span; i++ {
		isSwingHigh, isSwingLow := true, true
		for j := 1; j <= span; j++ {
			if candles[i].High <= candles[i-j].High || candles[i].High <= candles[i+j].High {
				isSwingHigh = false
			}
			if candles[i].Low >= candles[i-j].Low || candles[i].Low >= candles[i+j].Low {
				isSwingLow = false
			}
			if !isSwingHigh && !isSwingLow {
				break
			}
		}

		high := models.SwingPoint{Index: i, Price: candles[i].High, Timestamp: candles[i].OpenTime, Label: models.SwingHigh}
		low := models.SwingPoint{Index: i, Price: candles[i].Low, Timestamp: candles[i].OpenTime, Label: models.SwingLow}

		switch {
		case isSwingHigh && isSwingLow:
			if len(swings) > 0 && swings[len(swings)-1].Label == models.SwingHigh {
				swings = append(swings, low, high)
			} else {
				swings = append(swings, high, low)
			}
		case isSwingHigh:
			swings = append(swings, high)
		case isSwingLow:
			swings = append(swings, low)
		}
	}

	return swings
}

// collapseRuns keeps only the most extreme point of each same-label run. It reuses
// the input's backing array.
func collapseRuns(raw []models.SwingPoint) []models.SwingPoint {
	out := raw[:0]
	for _, p := range raw {
		n := len(out)
		if n == 0 || out[n-1].Label != p.Label {
			out = append(out, p)
			continue
		}
		prev := out[n-1]
		if (p.Label == models.SwingHigh && p.Price > prev.Price) ||
			(p.Label == models.SwingLow && p.Price < prev.Price) {
			out[n-1] = p
		}
	}
	return out
}
