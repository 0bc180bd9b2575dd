package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/controller"
	"github.com/cuongbtq/render-studio/internal/render/domain"
)

// Defaults
const (
	DefaultBufferSize     = 256
	DefaultPublishTimeout = 5 * time.Second
)

// Broker delivers encoded events; *rabbitmq.Client satisfies it
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Config holds publisher configuration
type Config struct {
	Broker         Broker
	Logger         *slog.Logger
	BufferSize     int
	PublishTimeout time.Duration
}

// Publisher forwards transition events to a broker from a single background
// goroutine. Enqueueing never blocks; events are dropped when the buffer is full.
type Publisher struct {
	broker         Broker
	logger         *slog.Logger
	publishTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	queue   chan TransitionEvent
	dropped int

	wg sync.WaitGroup
}

// NewPublisher creates a publisher and starts its delivery goroutine
func NewPublisher(cfg *Config) *Publisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		broker:         cfg.Broker,
		logger:         logger,
		publishTimeout: timeout,
		queue:          make(chan TransitionEvent, size),
	}

	p.wg.Add(1)
	go p.loop()

	return p
}

// Observer returns a controller observer that publishes the transitions of
// one session, numbered by seq.
func (p *Publisher) Observer(sessionID, shopID string, seq func() int) controller.Observer {
	return controller.ObserverFunc(func(job domain.Job) {
		p.Enqueue(NewTransitionEvent(sessionID, shopID, seq(), job))
	})
}

// Enqueue schedules ev for publishing and reports whether it was accepted
func (p *Publisher) Enqueue(ev TransitionEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	select {
	case p.queue <- ev:
		return true
	default:
		p.dropped++
		p.logger.Warn("Event buffer full, dropping transition event",
			slog.String("session_id", ev.SessionID),
			slog.String("phase", string(ev.Phase)),
			slog.Int("dropped_total", p.dropped),
		)
		return false
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (p *Publisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops accepting events and waits until the buffered ones were handed to the broker
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Event publisher stopped")
}

func (p *Publisher) loop() {
	defer p.wg.Done()

	for ev := range p.queue {
		p.publish(ev)
	}
}

func (p *Publisher) publish(ev TransitionEvent) {
	body, err := ev.Encode()
	if err != nil {
		p.logger.Error("Failed to encode transition event",
			slog.String("event_id", ev.EventID),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()

	if err := p.broker.PublishWithRetry(ctx, body, ContentType); err != nil {
		p.logger.Error("Failed to publish transition event",
			slog.String("event_id", ev.EventID),
			slog.String("session_id", ev.SessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	p.logger.Debug("Transition event published",
		slog.String("event_id", ev.EventID),
		slog.String("session_id", ev.SessionID),
		slog.String("phase", string(ev.Phase)),
	)
}
