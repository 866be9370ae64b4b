// Package stream distributes emitted patterns to in-process consumers.
package stream

import (
	"context"
	"sync"

	"harmonic-scanner/internal/models"
)

// HubConfig holds configuration for the pattern hub.
type HubConfig struct {
	// BufferSize is the size of the internal emission channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           1000,
		SubscriberBufferSize: 100,
	}
}

// Hub fans emissions out to channel subscribers and registered consumers.
// Publishing never blocks the scanner: a full buffer drops the emission and
// counts it in the metrics.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	emissions   chan models.Emission
	done        chan struct{}
	started     bool
	accepting   bool
	consumers   []Consumer
	consumersMu sync.RWMutex
	inflight    sync.WaitGroup

	// Metrics
	received  uint64
	broadcast uint64
	dropped   uint64
	metricsMu sync.RWMutex
}

// Subscriber is one Subscribe channel.
type Subscriber struct {
	Channel chan models.Emission
}

// NewHub creates a new hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
		emissions:   make(chan models.Emission, config.BufferSize),
		done:        make(chan struct{}),
		consumers:   make([]Consumer, 0),
	}
}

// Start begins the hub's distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.accepting = true

	go h.broadcastLoop(ctx)
}

// broadcastLoop delivers queued emissions until Stop. Once ctx is done the hub
// stops accepting new emissions but keeps draining the queue.
func (h *Hub) broadcastLoop(ctx context.Context) {
	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			h.mu.Lock()
			h.accepting = false
			h.mu.Unlock()
		case <-h.done:
			return
		case em := <-h.emissions:
			h.metricsMu.Lock()
			h.received++
			h.metricsMu.Unlock()

			h.broadcastTo(em)
			h.notifyConsumers(em)
			h.inflight.Done()
		}
	}
}

// Stop waits for queued emissions to be delivered, then closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.accepting = false
	h.mu.Unlock()

	h.inflight.Wait()
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for symbol, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, symbol)
	}
}

// Subscribe adds a subscriber for a symbol's emissions. An empty symbol receives all.
// The channel is closed by Stop.
func (h *Hub) Subscribe(symbol string) <-chan models.Emission {
	ch := make(chan models.Emission, h.config.SubscriberBufferSize)
	sub := &Subscriber{Channel: ch}

	h.mu.Lock()
	h.subscribers[symbol] = append(h.subscribers[symbol], sub)
	h.mu.Unlock()

	return ch
}

// Publish queues an emission for distribution without blocking.
// It returns false when the buffer is full or the hub is not running; the
// emission is dropped.
func (h *Hub) Publish(em models.Emission) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.accepting {
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
		return false
	}

	h.inflight.Add(1)
	select {
	case h.emissions <- em:
		return true
	default:
		h.inflight.Done()
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
		return false
	}
}

// broadcastTo sends an emission to the symbol's subscribers and to catch-all subscribers.
// Slow subscribers are skipped.
func (h *Hub) broadcastTo(em models.Emission) {
	h.mu.RLock()
	subs := append(append([]*Subscriber(nil), h.subscribers[em.Pattern.Symbol]...), h.subscribers[""]...)
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- em:
			h.metricsMu.Lock()
			h.broadcast++
			h.metricsMu.Unlock()
		default:
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
		}
	}
}

// GetTotalSubscriberCount returns the total number of subscribers.
func (h *Hub) GetTotalSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subs := range h.subscribers {
		count += len(subs)
	}
	return count
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	h.consumersMu.RLock()
	consumers := len(h.consumers)
	h.consumersMu.RUnlock()

	return HubMetrics{
		Received:    h.received,
		Broadcast:   h.broadcast,
		Dropped:     h.dropped,
		Subscribers: h.GetTotalSubscriberCount(),
		Consumers:   consumers,
	}
}

// HubMetrics contains hub performance metrics.
type HubMetrics struct {
	Received    uint64
	Broadcast   uint64
	Dropped     uint64
	Subscribers int
	Consumers   int
}

// Consumer processes emissions delivered by the hub.
type Consumer interface {
	// OnEmission is called for each emission matching Symbols.
	OnEmission(em models.Emission)
	// Symbols returns the symbols this consumer is interested in.
	// Return nil or empty slice to receive all emissions.
	Symbols() []string
}

// RegisterConsumer adds a consumer to receive emissions.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.consumersMu.Unlock()
}

// notifyConsumers hands the emission to each interested consumer in its own
// goroutine. Stop waits for them.
func (h *Hub) notifyConsumers(em models.Emission) {
	h.consumersMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consumersMu.RUnlock()

	for _, consumer := range consumers {
		symbols := consumer.Symbols()
		if len(symbols) == 0 || containsSymbol(symbols, em.Pattern.Symbol) {
			h.inflight.Add(1)
			go func(c Consumer) {
				defer h.inflight.Done()
				c.OnEmission(em)
			}(consumer)
		}
	}
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
