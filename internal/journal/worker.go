// Package journal consumes transition events and writes them to the journal.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/render-studio/internal/journal/domain"
	"github.com/cuongbtq/render-studio/internal/studio/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer is the broker side of the worker; *rabbitmq.Client satisfies it
type Consumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// TransitionStore persists events; *storage.Storage satisfies it
type TransitionStore interface {
	InsertTransition(ctx context.Context, ev *events.TransitionEvent) (bool, error)
}

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	Consumer       Consumer
	Store          TransitionStore
	WorkerID       string
	Concurrency    int
	PrefetchCount  int
	ProcessTimeout time.Duration
	RequeueDelay   time.Duration // pause before a retryable failure is requeued
}

// Worker journals transition events with a pool of goroutines
type Worker struct {
	logger         *slog.Logger
	consumer       Consumer
	store          TransitionStore
	workerID       string
	concurrency    int
	prefetchCount  int
	processTimeout time.Duration
	requeueDelay   time.Duration

	jobsChan chan *domain.TransitionMessage
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency * 2
	}
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	requeueDelay := cfg.RequeueDelay
	if requeueDelay <= 0 {
		requeueDelay = time.Second
	}

	return &Worker{
		logger:         cfg.Logger,
		consumer:       cfg.Consumer,
		store:          cfg.Store,
		workerID:       cfg.WorkerID,
		concurrency:    concurrency,
		prefetchCount:  prefetch,
		processTimeout: timeout,
		requeueDelay:   requeueDelay,
		jobsChan:       make(chan *domain.TransitionMessage, concurrency),
		stopChan:       make(chan struct{}),
	}
}

// Start subscribes to the queue and spawns the dispatcher and the worker pool.
// It returns once consumption is running.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting journal worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("process_timeout", w.processTimeout),
		slog.Duration("requeue_delay", w.requeueDelay),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	return nil
}

// Stop signals every goroutine to exit and waits for them. Messages not yet
// acknowledged are redelivered by the broker.
func (w *Worker) Stop() {
	w.logger.Info("Stopping journal worker")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Journal worker stopped")
}
