package publish

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/models"
	"harmonic-scanner/internal/resilience"
	"harmonic-scanner/pkg/utils"
)

// DefaultSource identifies this service in published envelopes.
const DefaultSource = "harmonic-scanner"

// Handler processes an incoming event.
type Handler func(ctx context.Context, event *Event) error

// Options configures a RedisPublisher.
type Options struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	Source        string
	Timeout       time.Duration
	Retry         utils.RetryConfig
	Breaker       resilience.CircuitBreakerConfig
}

// RedisPublisher publishes pattern events to Redis channels named
// "<prefix>:<event_type>".
type RedisPublisher struct {
	client        *redis.Client
	channelPrefix string
	source        string
	timeout       time.Duration
	retry         utils.RetryConfig
	breaker       *resilience.CircuitBreaker
	logger        zerolog.Logger
	now           func() time.Time
}

// NewRedisPublisher creates a publisher. No connection is made until first use.
func NewRedisPublisher(opts Options, logger zerolog.Logger) *RedisPublisher {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = utils.DefaultRetryConfig()
	}
	opts.Retry.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	if opts.Breaker.FailureThreshold == 0 {
		opts.Breaker = resilience.DefaultCircuitBreakerConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return &RedisPublisher{
		client:        client,
		channelPrefix: opts.ChannelPrefix,
		source:        opts.Source,
		timeout:       opts.Timeout,
		retry:         opts.Retry,
		breaker:       resilience.NewCircuitBreaker("redis_publisher", opts.Breaker),
		logger:        logger.With().Str("component", "redis_publisher").Logger(),
		now:           time.Now,
	}
}

// HealthCheck verifies Redis connectivity.
func (p *RedisPublisher) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Channel maps an event type to a Redis channel name.
func (p *RedisPublisher) Channel(eventType string) string {
	return p.channelPrefix + ":" + eventType
}

// Publish announces one emission, retrying transient failures. While Redis
// keeps failing the circuit opens and publishes fail fast.
func (p *RedisPublisher) Publish(ctx context.Context, em models.Emission) error {
	event := NewPatternEvent(em, p.source, p.now())
	channel := p.Channel(event.EventType)

	data, err := event.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}

	err = p.breaker.Execute(ctx, func() error {
		return utils.Retry(ctx, p.retry, func() error {
			return p.client.Publish(ctx, channel, data).Err()
		})
	})
	if err != nil {
		return errors.Wrapf(errors.ErrPublishFailed, "publishing to %s: %v", channel, err)
	}

	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("channel", channel).
		Str("correlation_id", event.CorrelationID).
		Msg("Published event")
	return nil
}

// BreakerStats reports the publish circuit breaker state.
func (p *RedisPublisher) BreakerStats() resilience.CircuitBreakerStats {
	return p.breaker.Stats()
}

// OnEmission lets the publisher hang off the pattern hub. Failures are logged;
// the scan cycle that produced the emission has already completed.
func (p *RedisPublisher) OnEmission(em models.Emission) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.Publish(ctx, em); err != nil {
		p.logger.Error().Err(err).Str("pattern_id", em.Pattern.ID).Msg("Failed to publish pattern")
	}
}

// Symbols subscribes the publisher to every symbol.
func (p *RedisPublisher) Symbols() []string {
	return nil
}

// Subscribe listens for events of the given type and calls handler for each.
// Blocks until ctx is cancelled. Returns nil on clean shutdown.
func (p *RedisPublisher) Subscribe(ctx context.Context, eventType string, handler Handler) error {
	channel := p.Channel(eventType)
	pubsub := p.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribing to %s", channel)
	}
	p.logger.Info().Str("channel", channel).Msg("Subscribed to Redis channel")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Str("channel", channel).Msg("Unsubscribed from Redis channel")
			return nil

		case msg, ok := <-ch:
			if !ok {
				p.logger.Warn().Str("channel", channel).Msg("Redis subscription channel closed")
				return nil
			}

			event, err := UnmarshalEvent([]byte(msg.Payload))
			if err != nil {
				p.logger.Error().Err(err).
					Str("channel", channel).
					Str("payload_preview", truncate(msg.Payload, 200)).
					Msg("Failed to unmarshal event")
				continue
			}

			if err := handler(ctx, event); err != nil {
				p.logger.Error().Err(err).
					Str("event_type", event.EventType).
					Str("correlation_id", event.CorrelationID).
					Msg("Handler failed")
			}
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
