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

	"github.com/cuongbtq/render-studio/internal/config"
	"github.com/cuongbtq/render-studio/internal/render/mockbackend"
	"github.com/cuongbtq/render-studio/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("MOCK_RENDER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/mock-render/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateMockConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.Logging.NoColor,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	if cfg.App.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := mockbackend.NewServer(&mockbackend.Config{
		ProgressStep: cfg.Mock.ProgressStep,
		FailShops:    cfg.Mock.FailShops,
		RejectShops:  cfg.Mock.RejectShops,
		VideoPrefix:  cfg.Mock.VideoPrefix,
	}, appLogger.Logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     engine.Router(),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	appLogger.Info("Mock render engine is running",
		slog.String("address", addr),
		slog.Int("progress_step", cfg.Mock.ProgressStep),
		slog.Any("fail_shops", cfg.Mock.FailShops),
		slog.Any("reject_shops", cfg.Mock.RejectShops),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errChan:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("mock render engine forced to shutdown: %w", err)
	}

	appLogger.Info("Mock render engine stopped",
		slog.Int("jobs_received", len(engine.Submissions())),
	)
	return nil
}
