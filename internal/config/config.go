package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// MaxWaitSeconds is the longest long-poll wait SQS accepts
	MaxWaitSeconds = 20
)

// Processing step modes
const (
	StepBlur      = "blur"
	StepInference = "inference"
)

// Config represents the complete application configuration. The api-service
// and worker-service each read their own file; sections irrelevant to a
// binary are simply left empty there.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Queue      QueueConfig      `yaml:"queue"`
	Storage    StorageConfig    `yaml:"storage"`
	Control    ControlConfig    `yaml:"control"`
	Callback   CallbackConfig   `yaml:"callback"`
	Assets     AssetsConfig     `yaml:"assets"`
	Processing ProcessingConfig `yaml:"processing"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration (api-service)
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration (api-service)
type DatabaseConfig struct {
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
}

// RabbitMQConfig holds the scan-event exchange configuration (api-service)
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// QueueConfig holds the SQS job queue configuration. The visibility timeout
// is the lease window; set it well above worst-case processing time, and
// configure the dead-letter redrive policy (max receive count) on the queue
// itself.
type QueueConfig struct {
	Region            string `yaml:"region"`
	QueueURL          string `yaml:"queue_url"`
	WaitSeconds       int32  `yaml:"wait_seconds"`
	VisibilityTimeout int32  `yaml:"visibility_timeout"`
}

// StorageConfig holds the scan bucket settings (api-service presigning)
type StorageConfig struct {
	Region        string        `yaml:"region"`
	ScanBucket    string        `yaml:"scan_bucket"`
	BlurredPrefix string        `yaml:"blurred_prefix"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// ControlConfig points the worker at the control service that issues
// presigned transfer URLs
type ControlConfig struct {
	BaseURL string `yaml:"base_url"`
}

// CallbackConfig holds the completion callback endpoint. An empty URL
// disables reporting; that is a configuration state, not an error.
type CallbackConfig struct {
	URL string `yaml:"url"`
}

// AssetsConfig holds the model asset bucket and manifest (worker-service,
// inference deployments only)
type AssetsConfig struct {
	Bucket   string   `yaml:"bucket"`
	Prefix   string   `yaml:"prefix"`
	Manifest []string `yaml:"manifest"`
	LocalDir string   `yaml:"local_dir"`
}

// ProcessingConfig selects and tunes the processing step
type ProcessingConfig struct {
	Step      string  `yaml:"step"`
	BlurSigma float64 `yaml:"blur_sigma"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker-service settings
type WorkerConfig struct {
	ScratchDir  string        `yaml:"scratch_dir"`
	PollBackoff time.Duration `yaml:"poll_backoff"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// validateQueue checks the SQS settings shared by both binaries
func (c *Config) validateQueue() error {
	if c.Queue.Region == "" {
		return fmt.Errorf("queue region is required")
	}

	if c.Queue.QueueURL == "" {
		return fmt.Errorf("queue url is required")
	}

	if c.Queue.WaitSeconds < 0 || c.Queue.WaitSeconds > MaxWaitSeconds {
		return fmt.Errorf("invalid queue wait_seconds: %d (must be between 0 and %d)", c.Queue.WaitSeconds, MaxWaitSeconds)
	}

	if c.Queue.VisibilityTimeout <= 0 {
		return fmt.Errorf("queue visibility_timeout must be greater than 0")
	}

	return nil
}

// ValidateAPIConfig checks the configuration the api-service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if c.Storage.ScanBucket == "" {
		return fmt.Errorf("storage scan_bucket is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}

// ValidateWorkerConfig checks the configuration the worker-service needs.
// A missing callback URL is allowed; reporting is then disabled.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateQueue(); err != nil {
		return err
	}

	if c.Control.BaseURL == "" {
		return fmt.Errorf("control base_url is required")
	}

	switch c.Processing.Step {
	case StepBlur:
		if c.Processing.BlurSigma <= 0 {
			return fmt.Errorf("processing blur_sigma must be greater than 0")
		}
	case StepInference:
		if c.Assets.Bucket == "" {
			return fmt.Errorf("assets bucket is required for the inference step")
		}
		if len(c.Assets.Manifest) == 0 {
			return fmt.Errorf("assets manifest is required for the inference step")
		}
	default:
		return fmt.Errorf("unknown processing step: %q (must be %q or %q)", c.Processing.Step, StepBlur, StepInference)
	}

	if c.Worker.PollBackoff <= 0 {
		return fmt.Errorf("worker poll_backoff must be greater than 0")
	}

	return nil
}
