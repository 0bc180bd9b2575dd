// Package controller drives a single render job from submission to a terminal
// phase and reports every state change to an Observer.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/backend"
	"github.com/cuongbtq/render-studio/internal/render/domain"
)

// Default timings
const (
	DefaultPollInterval  = 1500 * time.Millisecond
	DefaultPollTimeout   = 10 * time.Second
	DefaultSubmitTimeout = 60 * time.Second
	DefaultRetryBackoff  = 500 * time.Millisecond
)

// Backend is the render engine as seen by the controller
type Backend interface {
	Submit(ctx context.Context, req domain.JobRequest) (*backend.SubmitResult, error)
	Poll(ctx context.Context, jobID string) (*backend.StatusReport, error)
	Origin() string
}

// Config holds controller configuration
type Config struct {
	Backend       Backend
	Observer      Observer
	Logger        *slog.Logger
	PollInterval  time.Duration
	PollTimeout   time.Duration // per status query, 0 disables
	SubmitTimeout time.Duration // 0 disables
	PollRetries   int           // extra attempts after a transport failure, 0 fails the job at once
	RetryBackoff  time.Duration // first retry delay, doubled per attempt
}

// Controller owns the lifecycle of one render job at a time
type Controller struct {
	backend       Backend
	observer      Observer
	logger        *slog.Logger
	pollInterval  time.Duration
	pollTimeout   time.Duration
	submitTimeout time.Duration
	pollRetries   int
	retryBackoff  time.Duration
	now           func() time.Time

	mu     sync.Mutex
	job    domain.Job
	gen    uint64 // bumped per submission; stale goroutines compare against it
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a controller in the Idle phase
func New(cfg *Config) *Controller {
	c := &Controller{
		backend:       cfg.Backend,
		observer:      cfg.Observer,
		logger:        cfg.Logger,
		pollInterval:  cfg.PollInterval,
		pollTimeout:   cfg.PollTimeout,
		submitTimeout: cfg.SubmitTimeout,
		pollRetries:   cfg.PollRetries,
		retryBackoff:  cfg.RetryBackoff,
		now:           time.Now,
	}

	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = DefaultRetryBackoff
	}
	if c.pollRetries < 0 {
		c.pollRetries = 0
	}

	c.job = domain.Job{Phase: domain.PhaseIdle, UpdatedAt: c.now()}
	return c
}

// Submit starts a new job.
//
// It returns ErrAlreadyStarted without touching any state while a job is in
// flight, and ErrControllerClosed after Close. A request without images fails
// the job immediately without contacting the backend. Otherwise the Submitting
// phase is reported before Submit returns and the network work continues in
// the background.
func (c *Controller) Submit(ctx context.Context, req domain.JobRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrControllerClosed
	}
	if !c.job.Phase.CanSubmit() {
		c.logger.Warn("Render job already started, ignoring submission",
			slog.String("job_id", c.job.ID),
			slog.String("phase", string(c.job.Phase)),
		)
		return domain.ErrAlreadyStarted
	}

	c.gen++
	c.done = make(chan struct{})

	if len(req.Images) == 0 {
		c.resetLocked(domain.Job{Phase: domain.PhaseFailed, ErrorDetail: domain.DetailNoImages})
		return domain.NewValidationError("images", domain.DetailNoImages, domain.ErrNoImages)
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.resetLocked(domain.Job{Phase: domain.PhaseSubmitting})

	c.logger.Info("Submitting render job",
		slog.Int("images", len(req.Images)),
		slog.Int("duration", req.DurationSeconds),
		slog.String("shop", req.ShopIdentifier),
	)

	c.wg.Add(1)
	go c.run(jobCtx, c.gen, req)

	return nil
}

// Snapshot returns the current job state
func (c *Controller) Snapshot() domain.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Wait blocks until the current job reaches a terminal phase, the controller
// is closed or ctx is done.
func (c *Controller) Wait(ctx context.Context) (domain.Job, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}

	return c.Snapshot(), nil
}

// Close tears the controller down. It stops polling, waits for the background
// goroutine to exit and guarantees no observer call happens after it returns.
// Work already accepted by the backend is not cancelled. Calling Close again
// has no effect.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.settleLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.logger.Debug("Render controller closed")
}

func (c *Controller) run(ctx context.Context, gen uint64, req domain.JobRequest) {
	defer c.wg.Done()

	jobID, ok := c.submit(ctx, gen, req)
	if !ok {
		return
	}

	c.pollLoop(ctx, gen, jobID)
}

func (c *Controller) submit(ctx context.Context, gen uint64, req domain.JobRequest) (string, bool) {
	submitCtx, cancel := withOptionalTimeout(ctx, c.submitTimeout)
	res, err := c.backend.Submit(submitCtx, req)
	cancel()

	if err != nil {
		c.logger.Error("Render submission failed",
			slog.String("error", err.Error()),
		)
		c.update(gen, func(j *domain.Job) {
			j.Phase = domain.PhaseFailed
			j.ErrorDetail = domain.ErrorDetail(err)
		})
		return "", false
	}

	ok := c.update(gen, func(j *domain.Job) {
		j.ID = res.JobID
		j.Phase = domain.PhaseQueued
	})

	return res.JobID, ok
}

// pollLoop re-arms its timer only after a tick fully completed, so ticks never overlap
func (c *Controller) pollLoop(ctx context.Context, gen uint64, jobID string) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Render poll loop stopped",
				slog.String("job_id", jobID),
			)
			return
		case <-timer.C:
		}

		if !c.tick(ctx, gen, jobID) {
			return
		}
		timer.Reset(c.pollInterval)
	}
}

// tick runs one status query and reconciles it. It reports whether polling continues.
func (c *Controller) tick(ctx context.Context, gen uint64, jobID string) bool {
	if !c.current(gen) {
		return false
	}

	report, err := c.poll(ctx, jobID)
	if err != nil {
		c.logger.Error("Render status query failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.update(gen, func(j *domain.Job) {
			j.Phase = domain.PhaseFailed
			j.ErrorDetail = domain.ErrorDetail(err)
		})
		return false
	}

	keepPolling := false
	origin := c.backend.Origin()
	ok := c.update(gen, func(j *domain.Job) {
		keepPolling = reconcile(j, report, origin)
	})

	return ok && keepPolling
}

func (c *Controller) poll(ctx context.Context, jobID string) (*backend.StatusReport, error) {
	var lastErr error

	for attempt := 0; attempt <= c.pollRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBackoff << (attempt - 1)
			c.logger.Warn("Retrying render status query",
				slog.String("job_id", jobID),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", c.pollRetries+1),
				slog.Duration("retry_after", delay),
			)
			if !sleep(ctx, delay) {
				return nil, ctx.Err()
			}
		}

		pollCtx, cancel := withOptionalTimeout(ctx, c.pollTimeout)
		report, err := c.backend.Poll(pollCtx, jobID)
		cancel()

		if err == nil {
			return report, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.gen
}

// update mutates the job of generation gen and reports the change. It returns
// false when the generation is stale or the controller has been closed.
func (c *Controller) update(gen uint64, fn func(j *domain.Job)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen {
		return false
	}

	prev := c.job
	fn(&c.job)
	if c.job == prev {
		return true
	}

	c.job.UpdatedAt = c.now()
	if c.job.Phase.Terminal() {
		c.settleLocked()
	}
	c.notifyLocked()

	return true
}

func (c *Controller) resetLocked(job domain.Job) {
	job.UpdatedAt = c.now()
	c.job = job
	if job.Phase.Terminal() {
		c.settleLocked()
	}
	c.notifyLocked()
}

func (c *Controller) notifyLocked() {
	c.logger.Debug("Render job transition",
		slog.String("job_id", c.job.ID),
		slog.String("phase", string(c.job.Phase)),
		slog.Int("progress", c.job.Progress),
	)
	c.observer.OnTransition(c.job)
}

// settleLocked releases waiters and the job context of the current generation
func (c *Controller) settleLocked() {
	if c.done != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
	if c.cancel != nil && c.job.Phase.Terminal() {
		c.cancel()
	}
}
