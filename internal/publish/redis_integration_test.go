package publish

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmonic-scanner/internal/resilience"
)

// newLiveRedisPublisher connects to HARMONIC_TEST_REDIS_ADDR, e.g. localhost:6379.
// Each test gets its own channel prefix.
func newLiveRedisPublisher(t *testing.T) *RedisPublisher {
	t.Helper()
	addr := os.Getenv("HARMONIC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HARMONIC_TEST_REDIS_ADDR not set")
	}

	p := NewRedisPublisher(Options{
		Addr:          addr,
		ChannelPrefix: "harmonic-test-" + uuid.NewString(),
	}, zerolog.Nop())
	t.Cleanup(func() { p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.HealthCheck(ctx))
	return p
}

func TestRedisPublisher_PublishSubscribeRoundTrip(t *testing.T) {
	p := newLiveRedisPublisher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	received := make(chan *Event, 16)
	subDone := make(chan error, 1)
	subCtx, stopSub := context.WithCancel(ctx)
	go func() {
		subDone <- p.Subscribe(subCtx, EventPatternDetected, func(_ context.Context, e *Event) error {
			select {
			case received <- e:
			default:
			}
			return nil
		})
	}()

	em := sampleEmission()
	em.Pattern.ID = uuid.NewString()

	// Pub/sub drops messages sent before the subscription is live, so keep
	// publishing until one arrives.
	var got *Event
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for got == nil {
		select {
		case got = <-received:
		case <-ticker.C:
			require.NoError(t, p.Publish(ctx, em))
		case <-ctx.Done():
			t.Fatal("no event received from Redis")
		}
	}

	assert.Equal(t, EventPatternDetected, got.EventType)
	assert.Equal(t, em.Pattern.ID, got.CorrelationID)
	assert.Equal(t, DefaultSource, got.Source)
	assert.Equal(t, em.Pattern.Type, got.Payload.Pattern.Type)
	assert.Equal(t, em.Setup.TakeProfits, got.Payload.Setup.TakeProfits)

	stats := p.BreakerStats()
	assert.Equal(t, resilience.CircuitClosed, stats.State)
	assert.Zero(t, stats.TotalFailures)

	stopSub()
	select {
	case err := <-subDone:
		assert.NoError(t, err, "cancellation is a clean shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestRedisPublisher_OnEmissionReachesSubscriber(t *testing.T) {
	p := newLiveRedisPublisher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	received := make(chan string, 16)
	go func() {
		_ = p.Subscribe(ctx, EventPatternDetected, func(_ context.Context, e *Event) error {
			select {
			case received <- e.CorrelationID:
			default:
			}
			return nil
		})
	}()

	em := sampleEmission()
	em.Pattern.ID = uuid.NewString()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case id := <-received:
			assert.Equal(t, em.Pattern.ID, id)
			return
		case <-ticker.C:
			p.OnEmission(em)
		case <-ctx.Done():
			t.Fatal("no event received from Redis")
		}
	}
}
