package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonic-scanner/internal/analysis"
	"harmonic-scanner/internal/models"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestNewLoggerWithConfig_WritesFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	path := filepath.Join(t.TempDir(), "logs", "harmonic.log")
	logger := NewLoggerWithConfig(LogConfig{
		Level:    "debug",
		File:     true,
		FilePath: path,
		MaxSize:  1,
	})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	logger.Info().Str("symbol", "BTCUSDT").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"symbol":"BTCUSDT"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("verbose"))
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), logger)
	got := FromContext(ctx)
	got = WithSymbol(got, "ETHUSDT")
	got = WithTimeframe(got, models.Timeframe4h)
	got = WithOperation(got, "scan")
	got.Info().Msg("x")

	entry := lastEntry(t, &buf)
	assert.Equal(t, "ETHUSDT", entry["symbol"])
	assert.Equal(t, "4h", entry["timeframe"])
	assert.Equal(t, "scan", entry["operation"])

	// No logger in context falls back to a no-op logger.
	nop := FromContext(context.Background())
	nop.Info().Msg("dropped")
	assert.Equal(t, zerolog.Disabled, nop.GetLevel())
}

func TestLogPattern(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	em := models.Emission{
		Pattern: models.HarmonicPattern{
			ID: "p1", Type: models.Butterfly, Direction: models.Short,
			Symbol: "SOLUSDT", Timeframe: models.Timeframe15m, Confidence: 83.5,
		},
		Setup: models.TradeSetup{Entry: 150, StopLoss: 152, RiskReward: 1.8, Valid: true},
	}
	LogPattern(logger, em)

	entry := lastEntry(t, &buf)
	assert.Equal(t, "pattern", entry["event"])
	assert.Equal(t, "BUTTERFLY", entry["type"])
	assert.Equal(t, "SHORT", entry["direction"])
	assert.Equal(t, 83.5, entry["confidence"])
	assert.Equal(t, false, entry["projected"])
}

func TestLogScan(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	result := &analysis.ScanResult{
		Pair:   models.Pair{Symbol: "BTCUSDT", Timeframe: models.Timeframe1h},
		Status: analysis.ScanNoMatch,
		Swings: 12,
	}
	LogScan(logger, result, 3*time.Millisecond, nil)

	entry := lastEntry(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "no-match", entry["status"])
	assert.Equal(t, float64(12), entry["swings"])

	result.Status = analysis.ScanAborted
	LogScan(logger, result, time.Millisecond, errors.New("insufficient data"))

	entry = lastEntry(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "aborted", entry["status"])
	assert.Equal(t, "insufficient data", entry["error"])
}

func TestLogCall(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	LogCall(logger, "store", "recent_candles", time.Millisecond, nil)
	entry := lastEntry(t, &buf)
	assert.Equal(t, "Call completed", entry["message"])

	LogCall(logger, "store", "recent_candles", time.Millisecond, errors.New("locked"))
	entry = lastEntry(t, &buf)
	assert.Equal(t, "Call failed", entry["message"])
	assert.Equal(t, "store", entry["component"])
}

func TestWithPair(t *testing.T) {
	var buf bytes.Buffer
	logger := WithPair(zerolog.New(&buf), models.Pair{Symbol: "BTCUSDT", Timeframe: models.Timeframe1h})
	logger.Info().Msg("x")

	entry := lastEntry(t, &buf)
	assert.Equal(t, "BTCUSDT", entry["symbol"])
	assert.Equal(t, "1h", entry["timeframe"])
}
