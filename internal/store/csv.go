package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
)

// CandleRecord is one CSV row of candle data. Times are epoch milliseconds;
// symbol and timeframe columns are optional when a default pair is supplied.
type CandleRecord struct {
	Symbol    string  `csv:"symbol"`
	Timeframe string  `csv:"timeframe"`
	OpenTime  int64   `csv:"open_time"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
	CloseTime int64   `csv:"close_time"`
}

// ReadCSV parses candles from CSV. Rows without symbol or timeframe take them
// from def. The result is sorted by pair, then open time, with one candle per
// open time; a repeated row replaces the earlier one.
func ReadCSV(r io.Reader, def models.Pair) ([]models.Candle, error) {
	var records []*CandleRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}

	candles := make([]models.Candle, 0, len(records))
	for i, rec := range records {
		c := models.Candle{
			Symbol:    rec.Symbol,
			Timeframe: models.Timeframe(rec.Timeframe),
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
			OpenTime:  rec.OpenTime,
			CloseTime: rec.CloseTime,
		}
		if c.Symbol == "" {
			c.Symbol = def.Symbol
		}
		if c.Timeframe == "" {
			c.Timeframe = def.Timeframe
		}
		if err := validateCandle(c); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if c.CloseTime == 0 {
			c.CloseTime = c.OpenTime + c.Timeframe.Duration().Milliseconds() - 1
		}
		candles = append(candles, c)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		a, b := candles[i], candles[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Timeframe != b.Timeframe {
			return a.Timeframe < b.Timeframe
		}
		return a.OpenTime < b.OpenTime
	})
	return dedupeCandles(candles), nil
}

// dedupeCandles keeps the last of each run of candles sharing a pair and open
// time. The input must be stably sorted.
func dedupeCandles(candles []models.Candle) []models.Candle {
	out := candles[:0]
	for _, c := range candles {
		if n := len(out); n > 0 {
			prev := out[n-1]
			if prev.Symbol == c.Symbol && prev.Timeframe == c.Timeframe && prev.OpenTime == c.OpenTime {
				out[n-1] = c
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// ImportCSV reads candles from CSV and saves them to the store.
// It returns the number of candles imported.
func ImportCSV(ctx context.Context, s DataStore, r io.Reader, def models.Pair) (int, error) {
	candles, err := ReadCSV(r, def)
	if err != nil {
		return 0, err
	}
	if err := s.SaveCandles(ctx, candles); err != nil {
		return 0, errors.Wrap(err, "saving imported candles")
	}
	return len(candles), nil
}

func validateCandle(c models.Candle) error {
	if c.Symbol == "" {
		return errors.NewValidationError("symbol", "", "required")
	}
	if !c.Timeframe.Valid() {
		return errors.NewValidationError("timeframe", string(c.Timeframe), "unsupported timeframe")
	}
	if c.High < c.Low {
		return errors.NewValidationError("high", c.High, "below low")
	}
	return nil
}

// WriteCandlesCSV writes candles in the layout ReadCSV accepts.
func WriteCandlesCSV(w io.Writer, candles []models.Candle) error {
	records := make([]*CandleRecord, len(candles))
	for i, c := range candles {
		records[i] = &CandleRecord{
			Symbol:    c.Symbol,
			Timeframe: string(c.Timeframe),
			OpenTime:  c.OpenTime,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			CloseTime: c.CloseTime,
		}
	}
	return gocsv.Marshal(records, w)
}

// PatternRecord is one CSV row of an exported pattern with its setup.
type PatternRecord struct {
	ID          string  `csv:"id"`
	Symbol      string  `csv:"symbol"`
	Timeframe   string  `csv:"timeframe"`
	Type        string  `csv:"type"`
	Direction   string  `csv:"direction"`
	Confidence  float64 `csv:"confidence"`
	DetectedAt  string  `csv:"detected_at"`
	X           float64 `csv:"x"`
	A           float64 `csv:"a"`
	B           float64 `csv:"b"`
	C           float64 `csv:"c"`
	D           float64 `csv:"d"`
	Projected   bool    `csv:"projected"`
	XAB         float64 `csv:"xab"`
	ABC         float64 `csv:"abc"`
	BCD         float64 `csv:"bcd"`
	XAD         float64 `csv:"xad"`
	Entry       float64 `csv:"entry"`
	StopLoss    float64 `csv:"stop_loss"`
	TP1         float64 `csv:"tp1"`
	TP2         float64 `csv:"tp2"`
	TP3         float64 `csv:"tp3"`
	RiskReward  float64 `csv:"risk_reward"`
	Valid       bool    `csv:"valid"`
	SetupStatus string  `csv:"setup_status"`
}

// WritePatternsCSV writes one row per emission.
func WritePatternsCSV(w io.Writer, emissions []models.Emission) error {
	records := make([]*PatternRecord, len(emissions))
	for i, em := range emissions {
		p, s := em.Pattern, em.Setup
		records[i] = &PatternRecord{
			ID:          p.ID,
			Symbol:      p.Symbol,
			Timeframe:   string(p.Timeframe),
			Type:        string(p.Type),
			Direction:   string(p.Direction),
			Confidence:  p.Confidence,
			DetectedAt:  p.DetectedAt.UTC().Format(time.RFC3339),
			X:           p.Points[0].Price,
			A:           p.Points[1].Price,
			B:           p.Points[2].Price,
			C:           p.Points[3].Price,
			D:           p.Points[4].Price,
			Projected:   p.Points[4].Projected,
			XAB:         p.Ratios.XAB,
			ABC:         p.Ratios.ABC,
			BCD:         p.Ratios.BCD,
			XAD:         p.Ratios.XAD,
			Entry:       s.Entry,
			StopLoss:    s.StopLoss,
			TP1:         s.TakeProfit(1),
			TP2:         s.TakeProfit(2),
			TP3:         s.TakeProfit(3),
			RiskReward:  s.RiskReward,
			Valid:       s.Valid,
			SetupStatus: string(s.Status),
		}
	}
	return gocsv.Marshal(records, w)
}
