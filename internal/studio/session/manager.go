package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/controller"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSessionNotFound is returned for unknown or closed session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when MaxSessions sessions are open
	ErrTooManySessions = errors.New("too many open sessions")
)

// ObserverFactory builds extra observers for a new session. seq returns the
// session's transition count including the one being delivered.
type ObserverFactory func(sessionID, shopID string, seq func() int) controller.Observer

// Config holds session manager configuration
type Config struct {
	Logger      *slog.Logger
	Controller  controller.Config // template; Observer and Logger are set per session
	Observers   ObserverFactory
	MaxSessions int // 0 means unlimited
}

// Manager is the registry of open sessions
type Manager struct {
	logger      *slog.Logger
	template    controller.Config
	observers   ObserverFactory
	maxSessions int
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry
func NewManager(cfg *Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		logger:      logger,
		template:    cfg.Controller,
		observers:   cfg.Observers,
		maxSessions: cfg.MaxSessions,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
}

// Create opens a session with an idle controller
func (m *Manager) Create(shopID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, ErrTooManySessions
	}

	now := m.now()
	s := &Session{
		ID:           uuid.NewString(),
		ShopID:       shopID,
		CreatedAt:    now,
		now:          m.now,
		lastActivity: now,
	}

	logger := m.logger.With(
		slog.String("session_id", s.ID),
		slog.String("shop", shopID),
	)

	observers := controller.MultiObserver{s}
	if m.observers != nil {
		observers = append(observers, m.observers(s.ID, shopID, s.Transitions))
	}

	cfg := m.template
	cfg.Observer = observers
	cfg.Logger = logger
	s.ctrl = controller.New(&cfg)

	m.sessions[s.ID] = s

	logger.Info("Session created", slog.Int("open_sessions", len(m.sessions)))
	return s, nil
}

// Get returns an open session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears a session down and forgets it
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.close()
	m.logger.Info("Session closed", slog.String("session_id", id))
	return nil
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions without a job in flight that were idle for maxIdle and
// returns how many were closed
func (m *Manager) Sweep(maxIdle time.Duration) int {
	now := m.now()

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.idle(now, maxIdle) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	closeAll(stale)

	if len(stale) > 0 {
		m.logger.Info("Idle sessions swept",
			slog.Int("closed", len(stale)),
			slog.Duration("max_idle", maxIdle),
		)
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Session sweeper started",
		slog.Duration("interval", interval),
		slog.Duration("max_idle", maxIdle),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Session sweeper stopped")
			return
		case <-ticker.C:
			m.Sweep(maxIdle)
		}
	}
}

// CloseAll tears every session down, used on shutdown
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	closeAll(all)
	m.logger.Info("All sessions closed", slog.Int("closed", len(all)))
}

func closeAll(sessions []*Session) {
	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			s.close()
			return nil
		})
	}
	_ = g.Wait()
}
