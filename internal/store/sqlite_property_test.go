package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"harmonic-scanner/internal/models"
)

// Feature: harmonic-scanner, Property 10: Candle round-trip consistency
//
// Property: For any valid candle data, saving candles to the database and then
// retrieving them should produce equivalent candle data (round-trip consistency).
func TestProperty_CandleRoundTripConsistency(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "candles.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT"}
	timeframeGen := gen.OneConstOf(models.Timeframe1m, models.Timeframe5m, models.Timeframe15m, models.Timeframe1h, models.Timeframe1d)
	countGen := gen.IntRange(1, 20)
	priceGen := gen.Float64Range(0.01, 50000.0)
	volumeGen := gen.Float64Range(0, 1e6)

	seq := 0
	properties.Property("Candle round-trip: save then retrieve produces equivalent data", prop.ForAll(
		func(symbolIdx int, timeframe models.Timeframe, count int, basePrice, baseVolume float64) bool {
			ctx := context.Background()
			seq++
			pair := models.Pair{
				Symbol:    fmt.Sprintf("%s_%d", symbols[symbolIdx%len(symbols)], seq),
				Timeframe: timeframe,
			}

			candles := generateTestCandles(pair, count, basePrice, baseVolume)
			if err := store.SaveCandles(ctx, candles); err != nil {
				t.Logf("Failed to save candles: %v", err)
				return false
			}

			from := candles[0].OpenAt().Add(-time.Second)
			to := candles[len(candles)-1].OpenAt().Add(time.Second)
			retrieved, err := store.GetCandles(ctx, pair, from, to)
			if err != nil {
				t.Logf("Failed to get candles: %v", err)
				return false
			}

			if len(retrieved) != len(candles) {
				t.Logf("Count mismatch: expected %d, got %d", len(candles), len(retrieved))
				return false
			}

			for i, orig := range candles {
				if !candlesEqual(orig, retrieved[i]) {
					t.Logf("Candle mismatch at index %d: original=%+v, retrieved=%+v", i, orig, retrieved[i])
					return false
				}
			}

			recent, err := store.RecentCandles(ctx, pair, count)
			if err != nil || len(recent) != count {
				return false
			}
			return candlesEqual(recent[0], candles[0]) && candlesEqual(recent[count-1], candles[count-1])
		},
		gen.IntRange(0, len(symbols)-1),
		timeframeGen,
		countGen,
		priceGen,
		volumeGen,
	))

	properties.Property("Empty candles: saving empty slice should succeed", prop.ForAll(
		func(n int) bool {
			return store.SaveCandles(context.Background(), make([]models.Candle, 0, n)) == nil
		},
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

// generateTestCandles creates valid candles for testing
func generateTestCandles(pair models.Pair, count int, basePrice, baseVolume float64) []models.Candle {
	candles := make([]models.Candle, count)
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	step := pair.Timeframe.Duration().Milliseconds()

	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		closePrice := basePrice + variation*0.5

		openTime := baseTime + int64(i)*step
		candles[i] = models.Candle{
			Symbol:    pair.Symbol,
			Timeframe: pair.Timeframe,
			Open:      open,
			High:      math.Max(open, closePrice) * 1.01,
			Low:       math.Min(open, closePrice) * 0.99,
			Close:     closePrice,
			Volume:    baseVolume + float64(i),
			OpenTime:  openTime,
			CloseTime: openTime + step - 1,
		}
	}

	return candles
}

// candlesEqual compares two candles for equality with floating point tolerance.
func candlesEqual(a, b models.Candle) bool {
	const tolerance = 1e-9

	if a.Symbol != b.Symbol || a.Timeframe != b.Timeframe {
		return false
	}
	if a.OpenTime != b.OpenTime || a.CloseTime != b.CloseTime {
		return false
	}
	return floatEqual(a.Open, b.Open, tolerance) &&
		floatEqual(a.High, b.High, tolerance) &&
		floatEqual(a.Low, b.Low, tolerance) &&
		floatEqual(a.Close, b.Close, tolerance) &&
		floatEqual(a.Volume, b.Volume, tolerance)
}

// floatEqual compares two floats with a relative tolerance.
func floatEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(a))
}
