package publish

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
	"harmonic-scanner/internal/resilience"
	"harmonic-scanner/pkg/utils"
)

func sampleEmission() models.Emission {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Emission{
		Pattern: models.HarmonicPattern{
			ID:         "pattern-1",
			Type:       models.Bat,
			Confidence: 88.5,
			Direction:  models.Short,
			Symbol:     "ETHUSDT",
			Timeframe:  models.Timeframe4h,
			DetectedAt: at,
		},
		Setup: models.TradeSetup{
			ID:          "setup-1",
			PatternID:   "pattern-1",
			Entry:       3120.5,
			StopLoss:    3190,
			TakeProfits: []float64{3050, 3010, 2950},
			Valid:       true,
			Status:      models.SetupPending,
		},
	}
}

func TestNewPatternEvent(t *testing.T) {
	now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.FixedZone("IST", 19800))
	e := NewPatternEvent(sampleEmission(), DefaultSource, now)

	assert.Equal(t, EventPatternDetected, e.EventType)
	assert.Equal(t, "pattern-1", e.CorrelationID)
	assert.Equal(t, DefaultSource, e.Source)
	assert.Equal(t, time.UTC, e.Timestamp.Location())
}

func TestEvent_WireFormat(t *testing.T) {
	e := NewPatternEvent(sampleEmission(), DefaultSource, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC))
	data, err := e.Marshal()
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"event_type":"harmonic_pattern_detected"`)
	assert.Contains(t, s, `"correlation_id":"pattern-1"`)
	assert.Contains(t, s, `"type":"BAT"`)

	back, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, e.Payload.Setup.TakeProfits, back.Payload.Setup.TakeProfits)
	assert.True(t, e.Timestamp.Equal(back.Timestamp))
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	_, err := UnmarshalEvent([]byte("not json"))
	assert.Error(t, err)

	_, err = UnmarshalEvent([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}

func TestRedisPublisher_Channel(t *testing.T) {
	p := NewRedisPublisher(Options{Addr: "localhost:6379", ChannelPrefix: "harmonic"}, zerolog.Nop())
	defer p.Close()

	assert.Equal(t, "harmonic:harmonic_pattern_detected", p.Channel(EventPatternDetected))
	assert.Nil(t, p.Symbols())
}

func TestRedisPublisher_PublishUnreachable(t *testing.T) {
	p := NewRedisPublisher(Options{
		Addr:          "127.0.0.1:1",
		ChannelPrefix: "harmonic",
		Retry: utils.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 1,
		},
	}, zerolog.Nop())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.Publish(ctx, sampleEmission())
	assert.ErrorIs(t, err, errors.ErrPublishFailed)
}

func TestRedisPublisher_CircuitOpensAfterFailures(t *testing.T) {
	p := NewRedisPublisher(Options{
		Addr:          "127.0.0.1:1",
		ChannelPrefix: "harmonic",
		Retry:         utils.RetryConfig{MaxAttempts: 1},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Cooldown:         time.Hour,
		},
	}, zerolog.Nop())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, p.Publish(ctx, sampleEmission()), errors.ErrPublishFailed)
	}

	stats := p.BreakerStats()
	assert.Equal(t, resilience.CircuitOpen, stats.State)
	assert.Equal(t, int64(1), stats.TotalRejected)
}
