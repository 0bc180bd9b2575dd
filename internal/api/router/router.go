package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/render-studio/internal/api/handler"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// DatabaseChecker reports whether the journal database answers
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerChecker reports whether the event broker connection is up
type BrokerChecker interface {
	IsConnected() bool
}

// Options tunes the HTTP surface
type Options struct {
	ServiceName    string
	MaxUploadBytes int64         // 0 disables the body cap
	SubmitLimiter  *rate.Limiter // nil disables submit limiting
	DB             DatabaseChecker
	Broker         BrokerChecker
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	if opts.ServiceName == "" {
		opts.ServiceName = "studio-api"
	}

	// Health check endpoint
	r.GET("/health", healthHandler(deps, opts))

	renderHandler := handler.NewRenderHandler(deps)

	submit := func(h gin.HandlerFunc) []gin.HandlerFunc {
		chain := []gin.HandlerFunc{BodyLimitMiddleware(opts.MaxUploadBytes)}
		if opts.SubmitLimiter != nil {
			chain = append(chain, RateLimitMiddleware(opts.SubmitLimiter))
		}
		return append(chain, h)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// GET /api/v1/image-cap?duration=15 - Image cap for a duration
		v1.GET("/image-cap", renderHandler.ImageCap)

		renders := v1.Group("/renders")
		{
			// POST /api/v1/renders - Open a session and submit a render
			renders.POST("", submit(renderHandler.CreateRender)...)

			// GET /api/v1/renders/:session_id - Current job state
			renders.GET("/:session_id", renderHandler.GetRender)

			// POST /api/v1/renders/:session_id/submit - Submit again on the same session
			renders.POST("/:session_id/submit", submit(renderHandler.Resubmit)...)

			// DELETE /api/v1/renders/:session_id - Tear the session down
			renders.DELETE("/:session_id", renderHandler.DeleteRender)

			// GET /api/v1/renders/:session_id/history - Journaled transitions
			renders.GET("/:session_id/history", renderHandler.History)
		}
	}

	return r
}

// healthHandler reports "degraded" with 503 when a configured dependency is down
func healthHandler(deps *handler.Dependencies, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		body := gin.H{
			"service":  opts.ServiceName,
			"sessions": deps.Sessions.Len(),
		}

		if opts.DB != nil {
			body["database"] = "up"
			if err := opts.DB.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Database health check failed", slog.String("error", err.Error()))
				body["database"] = "down"
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		if opts.Broker != nil {
			body["broker"] = "up"
			if !opts.Broker.IsConnected() {
				body["broker"] = "down"
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		body["status"] = status
		c.JSON(code, body)
	}
}
