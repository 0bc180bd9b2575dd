package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/backend"
	"github.com/cuongbtq/render-studio/internal/render/domain"
)

// reconcile folds one status report into the job and reports whether polling continues
func reconcile(job *domain.Job, report *backend.StatusReport, origin string) bool {
	if report.Progress != nil {
		job.Progress = domain.ClampProgress(*report.Progress)
	}

	switch report.Status {
	case domain.BackendStatusDone:
		if strings.TrimSpace(report.URL) == "" {
			fail(job, domain.DetailNoResult)
			return false
		}
		location, err := backend.ResolveResultURL(origin, report.URL)
		if err != nil {
			fail(job, domain.DetailMalformedResponse)
			return false
		}
		job.ResultLocation = location
		job.Progress = 100
		job.Phase = domain.PhaseDone
		return false

	case domain.BackendStatusFailed:
		detail := strings.TrimSpace(report.Error)
		if detail == "" {
			detail = domain.DetailGenerationFailed
		}
		fail(job, detail)
		return false

	case domain.BackendStatusProcessing:
		job.Phase = domain.PhaseProcessing
		return true

	case domain.BackendStatusQueued:
		// the engine may still call a job queued while it reports progress
		if job.Progress > 0 {
			job.Phase = domain.PhaseProcessing
		}
		return true

	default:
		fail(job, domain.DetailMalformedResponse)
		return false
	}
}

func fail(job *domain.Job, detail string) {
	job.Phase = domain.PhaseFailed
	job.ErrorDetail = detail
}

// isRetryable reports whether a failed status query may be repeated
func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrTransport) || errors.Is(err, context.DeadlineExceeded)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// sleep waits for d or until ctx is done, reporting whether the full delay elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
