package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cuongbtq/render-studio/internal/config"
	"github.com/cuongbtq/render-studio/internal/render/backend"
	"github.com/cuongbtq/render-studio/internal/render/controller"
	"github.com/cuongbtq/render-studio/internal/render/domain"
	"github.com/cuongbtq/render-studio/shared/logger"
	"github.com/joho/godotenv"
)

type options struct {
	configPath  string
	backendURL  string
	images      string
	title       string
	description string
	duration    int
	voice       string
	tone        string
	theme       string
	shop        string
	script      string
	musicPath   string
	voicePath   string
	verbose     bool
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	defaultConfigPath := os.Getenv("RENDER_CLI_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/render-cli/config.yaml"
	}

	var opts options
	flag.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to configuration file")
	flag.StringVar(&opts.backendURL, "backend", "", "Render engine base URL (overrides config)")
	flag.StringVar(&opts.images, "images", "", "Comma-separated image URLs")
	flag.StringVar(&opts.title, "title", "", "Product title")
	flag.StringVar(&opts.description, "desc", "", "Product description")
	flag.IntVar(&opts.duration, "duration", domain.DefaultDurationSeconds, "Video duration in seconds (10-60, step 5)")
	flag.StringVar(&opts.voice, "voice", domain.DefaultVoiceGender, "Narration voice: female or male")
	flag.StringVar(&opts.tone, "tone", domain.DefaultScriptTone, "Script tone")
	flag.StringVar(&opts.theme, "theme", domain.DefaultVideoTheme, "Video theme")
	flag.StringVar(&opts.shop, "shop", "", "Shop identifier")
	flag.StringVar(&opts.script, "script", "", "Custom narration script")
	flag.StringVar(&opts.musicPath, "music", "", "Background music file")
	flag.StringVar(&opts.voicePath, "voice-file", "", "Recorded narration file, replaces the synthesized voice")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.backendURL != "" {
		cfg.Backend.BaseURL = opts.backendURL
	}
	if err := cfg.ValidateCLIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Logging.Level
	if opts.verbose {
		level = "debug"
	}
	appLogger, err := logger.New(&logger.Config{
		Level:      level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.Kitchen,
		NoColor:    cfg.Logging.NoColor,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	req, err := buildRequest(&opts)
	if err != nil {
		return err
	}

	client, err := backend.NewClient(&backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		RequestTimeout: cfg.Backend.RequestTimeout,
		Headers:        cfg.Backend.Headers,
	}, appLogger.Component("render-backend"))
	if err != nil {
		return fmt.Errorf("failed to initialize render backend client: %w", err)
	}

	ctrl := controller.New(&controller.Config{
		Backend:       client,
		Observer:      printTransitions(appLogger.WithGroup("render").Logger),
		Logger:        appLogger.Component("controller"),
		PollInterval:  cfg.Backend.PollInterval,
		PollTimeout:   cfg.Backend.PollTimeout,
		SubmitTimeout: cfg.Backend.SubmitTimeout,
		PollRetries:   cfg.Backend.PollRetries,
		RetryBackoff:  cfg.Backend.RetryBackoff,
	})
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Submit(ctx, req); err != nil {
		return fmt.Errorf("failed to submit render: %w", err)
	}

	job, err := ctrl.Wait(ctx)
	if err != nil {
		ctrl.Close()
		appLogger.Warn("Interrupted, stopped watching the render",
			slog.String("job_id", job.ID),
			slog.String("phase", string(job.Phase)),
		)
		return errors.New("interrupted")
	}

	if job.Phase == domain.PhaseFailed {
		return fmt.Errorf("render failed: %s", job.ErrorDetail)
	}

	fmt.Println(job.ResultLocation)
	return nil
}

// buildRequest runs the selection gate over the flags and loads attachments
func buildRequest(opts *options) (domain.JobRequest, error) {
	if err := domain.ValidateDuration(opts.duration); err != nil {
		return domain.JobRequest{}, err
	}

	selection := domain.NewImageSelection(opts.duration)
	for _, image := range strings.Split(opts.images, ",") {
		image = strings.TrimSpace(image)
		if image == "" || selection.Contains(image) {
			continue
		}
		if err := selection.Toggle(image); err != nil {
			return domain.JobRequest{}, err
		}
	}
	if err := selection.Validate(); err != nil {
		return domain.JobRequest{}, err
	}

	music, err := loadAttachment(opts.musicPath)
	if err != nil {
		return domain.JobRequest{}, err
	}
	voice, err := loadAttachment(opts.voicePath)
	if err != nil {
		return domain.JobRequest{}, err
	}

	return domain.JobRequest{
		Images:             selection.Images(),
		ProductTitle:       opts.title,
		ProductDescription: opts.description,
		DurationSeconds:    opts.duration,
		VoiceGender:        opts.voice,
		ScriptTone:         opts.tone,
		VideoTheme:         opts.theme,
		CustomScript:       opts.script,
		UserVoiceAudio:     voice,
		BackgroundMusic:    music,
		ShopIdentifier:     opts.shop,
	}.WithDefaults(), nil
}

func loadAttachment(path string) (*domain.Attachment, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &domain.Attachment{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func printTransitions(l *slog.Logger) controller.Observer {
	return controller.ObserverFunc(func(job domain.Job) {
		attrs := []any{
			slog.String("phase", string(job.Phase)),
			slog.Int("progress", job.Progress),
		}
		if job.ID != "" {
			attrs = append(attrs, slog.String("job_id", job.ID))
		}

		switch job.Phase {
		case domain.PhaseDone:
			l.Info("Render finished", append(attrs, slog.String("video", job.ResultLocation))...)
		case domain.PhaseFailed:
			l.Error("Render failed", append(attrs, slog.String("error", job.ErrorDetail))...)
		default:
			l.Info("Render progress", attrs...)
		}
	})
}
