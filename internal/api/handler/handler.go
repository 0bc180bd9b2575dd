package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/render-studio/internal/studio/events"
	"github.com/cuongbtq/render-studio/internal/studio/session"
	"github.com/cuongbtq/render-studio/internal/studio/storage"
)

// HistoryStore reads the transition journal; *storage.Storage satisfies it
type HistoryStore interface {
	ListTransitions(ctx context.Context, filter storage.TransitionFilter) ([]events.TransitionEvent, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Sessions *session.Manager
	History  HistoryStore // nil when no journal is configured
}

// RenderHandler handles render session HTTP requests
type RenderHandler struct {
	logger   *slog.Logger
	sessions *session.Manager
	history  HistoryStore
}

// NewRenderHandler creates a new RenderHandler instance
func NewRenderHandler(deps *Dependencies) *RenderHandler {
	return &RenderHandler{
		logger:   deps.Logger,
		sessions: deps.Sessions,
		history:  deps.History,
	}
}
