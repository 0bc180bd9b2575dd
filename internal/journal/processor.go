package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/render-studio/internal/journal/domain"
)

// processMessage writes one transition to the journal
func (w *Worker) processMessage(ctx context.Context, msg *domain.TransitionMessage) error {
	ev := msg.Event
	if ev == nil {
		return domain.ErrInvalidPayload
	}

	insertCtx, cancel := context.WithTimeout(ctx, w.processTimeout)
	defer cancel()

	inserted, err := w.store.InsertTransition(insertCtx, ev)
	if err != nil {
		// database errors are usually transient
		return domain.NewRetryableError(fmt.Errorf("failed to journal transition: %w", err))
	}

	if !inserted {
		w.logger.Info("Transition already journaled, skipping",
			slog.String("event_id", ev.EventID),
			slog.Bool("redelivered", msg.Delivery.Redelivered),
		)
		return nil
	}

	w.logger.Info("Transition journaled",
		slog.String("event_id", ev.EventID),
		slog.String("session_id", ev.SessionID),
		slog.String("job_id", ev.JobID),
		slog.String("phase", string(ev.Phase)),
		slog.Int("progress", ev.Progress),
	)

	return nil
}
