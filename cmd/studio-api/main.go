package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/render-studio/internal/api/handler"
	"github.com/cuongbtq/render-studio/internal/api/router"
	"github.com/cuongbtq/render-studio/internal/config"
	"github.com/cuongbtq/render-studio/internal/render/backend"
	"github.com/cuongbtq/render-studio/internal/render/controller"
	"github.com/cuongbtq/render-studio/internal/studio/events"
	"github.com/cuongbtq/render-studio/internal/studio/session"
	"github.com/cuongbtq/render-studio/internal/studio/storage"
	"github.com/cuongbtq/render-studio/shared/logger"
	"github.com/cuongbtq/render-studio/shared/postgresql"
	"github.com/cuongbtq/render-studio/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("STUDIO_API_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/studio-api/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting studio API",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("render_backend", cfg.Backend.BaseURL),
	)

	renderClient, err := backend.NewClient(&backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		RequestTimeout: cfg.Backend.RequestTimeout,
		Headers:        cfg.Backend.Headers,
	}, appLogger.Component("render-backend"))
	if err != nil {
		return fmt.Errorf("failed to initialize render backend client: %w", err)
	}

	// Transition journal (optional)
	var (
		dbClient *postgresql.Client
		history  handler.HistoryStore
	)
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		if cfg.Database.AutoMigrate {
			if err := dbClient.Migrate(context.Background(), storage.Migrations, storage.MigrationsDir); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}

		history = storage.NewStorage(dbClient.GetDB())
		appLogger.Info("Database connection established")
	}

	// Transition events (optional)
	var (
		rabbitClient *rabbitmq.Client
		publisher    *events.Publisher
		observers    session.ObserverFactory
	)
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		publisher = events.NewPublisher(&events.Config{
			Broker:         rabbitClient,
			Logger:         appLogger.Component("events"),
			BufferSize:     cfg.RabbitMQ.Publish.BufferSize,
			PublishTimeout: cfg.RabbitMQ.Publish.Timeout,
		})
		observers = publisher.Observer
		appLogger.Info("RabbitMQ connection established")
	}

	sessions := session.NewManager(&session.Config{
		Logger: appLogger.Component("sessions"),
		Controller: controller.Config{
			Backend:       renderClient,
			PollInterval:  cfg.Backend.PollInterval,
			PollTimeout:   cfg.Backend.PollTimeout,
			SubmitTimeout: cfg.Backend.SubmitTimeout,
			PollRetries:   cfg.Backend.PollRetries,
			RetryBackoff:  cfg.Backend.RetryBackoff,
		},
		Observers:   observers,
		MaxSessions: cfg.Sessions.MaxSessions,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.Run(ctx, cfg.Sessions.SweepInterval, cfg.Sessions.MaxIdle)

	r := initRouter(cfg, appLogger.Logger, sessions, history, dbClient, rabbitClient)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed",
			slog.Any("error", err),
		)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Controllers first so their final transitions still reach the publisher
	cancel()
	sessions.CloseAll()
	if publisher != nil {
		publisher.Close()
		if dropped := publisher.Dropped(); dropped > 0 {
			appLogger.Warn("Transition events dropped during run",
				slog.Int("dropped", dropped),
			)
		}
	}

	if dbClient != nil {
		appLogger.Info("Database pool at shutdown",
			slog.String("stats", dbClient.Stats()),
		)
	}

	appLogger.Info("Studio API shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
		MaxSizeMB:    cfg.MaxSizeMB,
		MaxBackups:   cfg.MaxBackups,
		MaxAgeDays:   cfg.MaxAgeDays,
		Compress:     cfg.Compress,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ publishing client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, sessions *session.Manager, history handler.HistoryStore,
	dbClient *postgresql.Client, rabbitClient *rabbitmq.Client) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:   logger,
		Sessions: sessions,
		History:  history,
	}

	opts := router.Options{
		ServiceName:    cfg.App.Name,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}
	if cfg.Server.SubmitRate > 0 {
		opts.SubmitLimiter = rate.NewLimiter(rate.Limit(cfg.Server.SubmitRate), cfg.Server.SubmitBurst)
	}
	// Assigned only when set so a nil client never lands in a non-nil interface
	if dbClient != nil {
		opts.DB = dbClient
	}
	if rabbitClient != nil {
		opts.Broker = rabbitClient
	}

	return router.SetupRouter(handlerDeps, opts)
}
