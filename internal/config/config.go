package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Sessions SessionsConfig `yaml:"sessions"`
	Mock     MockConfig     `yaml:"mock"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	SubmitRate      float64       `yaml:"submit_rate"` // submissions per second, 0 disables limiting
	SubmitBurst     int           `yaml:"submit_burst"`
}

// BackendConfig holds render engine client and polling configuration
type BackendConfig struct {
	BaseURL        string            `yaml:"base_url"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	PollInterval   time.Duration     `yaml:"poll_interval"`
	PollTimeout    time.Duration     `yaml:"poll_timeout"`
	SubmitTimeout  time.Duration     `yaml:"submit_timeout"`
	PollRetries    int               `yaml:"poll_retries"`
	RetryBackoff   time.Duration     `yaml:"retry_backoff"`
	Headers        map[string]string `yaml:"headers"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Timeout           time.Duration `yaml:"timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
	MaxSizeMB    int    `yaml:"max_size_mb"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAgeDays   int    `yaml:"max_age_days"`
	Compress     bool   `yaml:"compress"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds journal worker configuration
type WorkerConfig struct {
	ID              string        `yaml:"id"`
	Concurrency     int           `yaml:"concurrency"`
	ProcessTimeout  time.Duration `yaml:"process_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequeueDelay    time.Duration `yaml:"requeue_delay"`
}

// SessionsConfig holds studio session registry configuration
type SessionsConfig struct {
	MaxSessions   int           `yaml:"max_sessions"`
	MaxIdle       time.Duration `yaml:"max_idle"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MockConfig holds the behavior of the mock render engine
type MockConfig struct {
	ProgressStep int      `yaml:"progress_step"`
	FailShops    []string `yaml:"fail_shops"`
	RejectShops  []string `yaml:"reject_shops"`
	VideoPrefix  string   `yaml:"video_prefix"`
}

// Load reads and parses the configuration file, then applies defaults and
// environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills unset values
func (c *Config) ApplyDefaults() {
	setDuration(&c.Server.ReadTimeout, 15*time.Second)
	setDuration(&c.Server.WriteTimeout, 30*time.Second)
	setDuration(&c.Server.IdleTimeout, 60*time.Second)
	setDuration(&c.Server.ShutdownTimeout, 15*time.Second)
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 32 << 20
	}
	if c.Server.SubmitRate > 0 && c.Server.SubmitBurst <= 0 {
		c.Server.SubmitBurst = 1
	}

	setDuration(&c.Backend.RequestTimeout, 60*time.Second)
	setDuration(&c.Backend.PollInterval, 1500*time.Millisecond)
	setDuration(&c.Backend.PollTimeout, 10*time.Second)
	setDuration(&c.Backend.SubmitTimeout, 60*time.Second)
	setDuration(&c.Backend.RetryBackoff, 500*time.Millisecond)
	if c.Backend.Headers == nil {
		// tunnelled engines answer with an HTML interstitial without it
		c.Backend.Headers = map[string]string{"ngrok-skip-browser-warning": "true"}
	}

	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	setDuration(&c.Database.ConnMaxLifetime, 30*time.Minute)
	setDuration(&c.Database.ConnMaxIdleTime, 5*time.Minute)

	if c.RabbitMQ.VHost == "" {
		c.RabbitMQ.VHost = "/"
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.RabbitMQ.Connection.RetryAttempts <= 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	setDuration(&c.RabbitMQ.Connection.RetryInterval, 2*time.Second)
	setDuration(&c.RabbitMQ.Connection.Heartbeat, 10*time.Second)
	setDuration(&c.RabbitMQ.Publish.Timeout, 5*time.Second)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 4
	}
	setDuration(&c.Worker.ProcessTimeout, 10*time.Second)
	setDuration(&c.Worker.ShutdownTimeout, 30*time.Second)
	setDuration(&c.Worker.RequeueDelay, time.Second)

	setDuration(&c.Sessions.MaxIdle, 30*time.Minute)
	setDuration(&c.Sessions.SweepInterval, time.Minute)
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// applyEnv lets secrets and deployment specifics override the file
func (c *Config) applyEnv() error {
	if v := os.Getenv("RENDER_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// ValidateAPIConfig checks the studio API configuration
func (c *Config) ValidateAPIConfig() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if c.Database.Enabled {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}
	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(false); err != nil {
			return err
		}
	}
	if c.Sessions.MaxSessions < 0 {
		return errors.New("sessions max_sessions must not be negative")
	}
	return nil
}

// ValidateWorkerConfig checks the journal worker configuration
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(true); err != nil {
		return err
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be greater than 0")
	}
	if c.Worker.ProcessTimeout <= 0 {
		return errors.New("worker process_timeout must be greater than 0")
	}
	if c.Worker.ShutdownTimeout <= 0 {
		return errors.New("worker shutdown_timeout must be greater than 0")
	}
	return nil
}

// ValidateCLIConfig checks the render CLI configuration
func (c *Config) ValidateCLIConfig() error {
	return c.validateBackend()
}

// ValidateMockConfig checks the mock render engine configuration
func (c *Config) ValidateMockConfig() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if c.Mock.ProgressStep < 0 || c.Mock.ProgressStep > 100 {
		return fmt.Errorf("mock progress_step must be between 0 and 100, got %d", c.Mock.ProgressStep)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend base_url must be an absolute URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.PollInterval <= 0 {
		return errors.New("backend poll_interval must be greater than 0")
	}
	if c.Backend.PollRetries < 0 {
		return errors.New("backend poll_retries must not be negative")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}
	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}
	if c.Database.Database == "" {
		return errors.New("database name is required")
	}
	return nil
}

func (c *Config) validateRabbitMQ(needQueue bool) error {
	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}
	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}
	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}
	if needQueue && c.RabbitMQ.Queue.Name == "" {
		return errors.New("rabbitmq queue name is required")
	}
	return nil
}
