// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"harmonic-scanner/internal/models"
)

// CandleSource supplies the candle snapshot a scan cycle runs on.
type CandleSource interface {
	// RecentCandles returns up to limit of the most recent candles for the pair,
	// oldest first.
	RecentCandles(ctx context.Context, pair models.Pair, limit int) ([]models.Candle, error)
}

// PatternSink receives emitted patterns and their setups.
type PatternSink interface {
	SaveEmission(ctx context.Context, em models.Emission) error
}

// DataStore defines the interface for data persistence.
type DataStore interface {
	CandleSource
	PatternSink

	// Candles
	SaveCandles(ctx context.Context, candles []models.Candle) error
	GetCandles(ctx context.Context, pair models.Pair, from, to time.Time) ([]models.Candle, error)
	GetCandlesFreshness(ctx context.Context, pair models.Pair) (time.Time, error)
	ListPairs(ctx context.Context) ([]models.Pair, error)

	// Patterns & setups
	ListPatterns(ctx context.Context, filter PatternFilter) ([]models.HarmonicPattern, error)
	GetPattern(ctx context.Context, id string) (*models.HarmonicPattern, error)
	GetSetup(ctx context.Context, patternID string) (*models.TradeSetup, error)
	UpdateSetupStatus(ctx context.Context, setupID string, status models.SetupStatus) error
	ExpireSetups(ctx context.Context, now time.Time) (int, error)

	// Scan bookkeeping
	GetLastScan(ctx context.Context, pair models.Pair) (time.Time, error)
	SetLastScan(ctx context.Context, pair models.Pair, t time.Time) error

	// Lifecycle
	Close() error
}

// PatternFilter represents filters for querying patterns.
type PatternFilter struct {
	Symbol        string
	Timeframe     models.Timeframe
	Type          models.PatternType
	Direction     models.Direction
	MinConfidence float64
	Since         time.Time
	Limit         int
}

// encodedPattern holds the JSON columns of a pattern row.
type encodedPattern struct {
	points []byte
	ratios []byte
}

func encodePattern(p *models.HarmonicPattern) (encodedPattern, error) {
	points, err := json.Marshal(p.Points)
	if err != nil {
		return encodedPattern{}, fmt.Errorf("marshalling points: %w", err)
	}
	ratios, err := json.Marshal(p.Ratios)
	if err != nil {
		return encodedPattern{}, fmt.Errorf("marshalling ratios: %w", err)
	}
	return encodedPattern{points: points, ratios: ratios}, nil
}

func decodePattern(p *models.HarmonicPattern, points, ratios []byte) error {
	if err := json.Unmarshal(points, &p.Points); err != nil {
		return fmt.Errorf("unmarshalling points: %w", err)
	}
	if err := json.Unmarshal(ratios, &p.Ratios); err != nil {
		return fmt.Errorf("unmarshalling ratios: %w", err)
	}
	return nil
}

// reverseCandles flips a newest-first query result into chronological order.
func reverseCandles(candles []models.Candle) {
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
}
