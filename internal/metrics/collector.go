package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived EventType = "request_received"
	EventProbe           EventType = "probe"
	EventAttempt         EventType = "attempt"
	EventEviction        EventType = "eviction"
	EventExhausted       EventType = "exhausted"
	EventHealthChanged   EventType = "health_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Replica    string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
	// Kind is the fault kind of a failed attempt, empty on success.
	Kind string
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues event without blocking. It is a no-op on a nil collector.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests()

	case EventProbe:
		c.metrics.RecordProbe(event.Replica, event.Healthy)

	case EventAttempt:
		c.metrics.RecordAttempt(event.Replica, event.Duration, event.StatusCode, event.Kind)

	case EventEviction:
		c.metrics.RecordEviction(event.Replica)

	case EventExhausted:
		c.metrics.IncrementExhausted()

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Replica, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(strategy string) Snapshot {
	return c.metrics.Snapshot(strategy)
}
