package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/render-studio/internal/journal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg := <-w.jobsChan:
			err := w.processMessage(ctx, msg)

			if err != nil {
				requeue := shouldRequeue(err)
				logger.Error("Transition processing failed",
					slog.String("event_id", msg.Event.EventID),
					slog.String("error", err.Error()),
					slog.Bool("requeue", requeue),
				)

				// retryable failures wait requeueDelay before going back to the broker
				if requeue {
					w.backoff(ctx)
				}

				if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
					logger.Error("Failed to NACK message",
						slog.String("event_id", msg.Event.EventID),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := msg.Delivery.Ack(false); ackErr != nil {
				logger.Error("Failed to ACK message",
					slog.String("event_id", msg.Event.EventID),
					slog.String("error", ackErr.Error()),
				)
			}
		}
	}
}

// backoff sleeps for requeueDelay; it returns early when the worker stops
func (w *Worker) backoff(ctx context.Context) {
	timer := time.NewTimer(w.requeueDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-w.stopChan:
	case <-ctx.Done():
	}
}

// shouldRequeue determines if a message should be requeued based on the error type
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
