// Package session keeps one render controller per studio session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/controller"
	"github.com/cuongbtq/render-studio/internal/render/domain"
)

// Session owns the controller of one storefront render dialog
type Session struct {
	ID        string
	ShopID    string
	CreatedAt time.Time

	ctrl *controller.Controller
	now  func() time.Time

	mu           sync.Mutex
	last         domain.Job
	lastActivity time.Time
	transitions  int
}

// OnTransition records the latest job state; it is registered as the first observer
func (s *Session) OnTransition(job domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = job
	s.lastActivity = s.now()
	s.transitions++
}

// Submit starts a render on this session. The shop of the session is used
// when the request names none.
func (s *Session) Submit(ctx context.Context, req domain.JobRequest) error {
	if req.ShopIdentifier == "" {
		req.ShopIdentifier = s.ShopID
	}
	s.touch()

	return s.ctrl.Submit(ctx, req)
}

// Snapshot returns the current job state
func (s *Session) Snapshot() domain.Job {
	return s.ctrl.Snapshot()
}

// Wait blocks until the current job settles or ctx is done
func (s *Session) Wait(ctx context.Context) (domain.Job, error) {
	return s.ctrl.Wait(ctx)
}

// LastActivity is the time of the latest submission or transition
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Transitions counts the state changes observed so far
func (s *Session) Transitions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
}

// idle reports whether the session has no job in flight and was untouched for maxIdle
func (s *Session) idle(now time.Time, maxIdle time.Duration) bool {
	if s.ctrl.Snapshot().Phase.Active() {
		return false
	}
	return now.Sub(s.LastActivity()) >= maxIdle
}

func (s *Session) close() {
	s.ctrl.Close()
}
