package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid worker config file",
			filePath: "testdata/valid_worker.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, "eu-west-1", cfg.Queue.Region)
				assert.Equal(t, int32(20), cfg.Queue.WaitSeconds)
				assert.Equal(t, int32(300), cfg.Queue.VisibilityTimeout)
				assert.Equal(t, "http://localhost:4000", cfg.Control.BaseURL)
				assert.Equal(t, StepBlur, cfg.Processing.Step)
				assert.Equal(t, 6.0, cfg.Processing.BlurSigma)
				assert.Equal(t, 5*time.Second, cfg.Worker.PollBackoff)
				assert.Equal(t, "scan-worker-service", cfg.App.Name)
			}
		})
	}
}

func validWorkerConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			Region:            "eu-west-1",
			QueueURL:          "https://sqs.eu-west-1.amazonaws.com/123456789012/scan-jobs",
			WaitSeconds:       20,
			VisibilityTimeout: 300,
		},
		Control: ControlConfig{BaseURL: "http://localhost:4000"},
		Processing: ProcessingConfig{
			Step:      StepBlur,
			BlurSigma: 6.0,
		},
		Worker: WorkerConfig{PollBackoff: 5 * time.Second},
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid blur config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing callback url is allowed",
			mutate:  func(c *Config) { c.Callback.URL = "" },
			wantErr: false,
		},
		{
			name:      "missing queue region",
			mutate:    func(c *Config) { c.Queue.Region = "" },
			wantErr:   true,
			errString: "queue region is required",
		},
		{
			name:      "missing queue url",
			mutate:    func(c *Config) { c.Queue.QueueURL = "" },
			wantErr:   true,
			errString: "queue url is required",
		},
		{
			name:      "wait seconds above long-poll maximum",
			mutate:    func(c *Config) { c.Queue.WaitSeconds = 21 },
			wantErr:   true,
			errString: "invalid queue wait_seconds",
		},
		{
			name:      "zero visibility timeout",
			mutate:    func(c *Config) { c.Queue.VisibilityTimeout = 0 },
			wantErr:   true,
			errString: "visibility_timeout must be greater than 0",
		},
		{
			name:      "missing control base url",
			mutate:    func(c *Config) { c.Control.BaseURL = "" },
			wantErr:   true,
			errString: "control base_url is required",
		},
		{
			name:      "unknown processing step",
			mutate:    func(c *Config) { c.Processing.Step = "sharpen" },
			wantErr:   true,
			errString: "unknown processing step",
		},
		{
			name:      "blur step with zero sigma",
			mutate:    func(c *Config) { c.Processing.BlurSigma = 0 },
			wantErr:   true,
			errString: "blur_sigma must be greater than 0",
		},
		{
			name: "inference step without asset bucket",
			mutate: func(c *Config) {
				c.Processing.Step = StepInference
				c.Assets.Manifest = []string{"model/weights.bin"}
			},
			wantErr:   true,
			errString: "assets bucket is required",
		},
		{
			name: "inference step without manifest",
			mutate: func(c *Config) {
				c.Processing.Step = StepInference
				c.Assets.Bucket = "scan-models"
			},
			wantErr:   true,
			errString: "assets manifest is required",
		},
		{
			name: "valid inference config",
			mutate: func(c *Config) {
				c.Processing.Step = StepInference
				c.Assets.Bucket = "scan-models"
				c.Assets.Manifest = []string{"model/weights.bin", "model/config.json"}
			},
			wantErr: false,
		},
		{
			name:      "zero poll backoff",
			mutate:    func(c *Config) { c.Worker.PollBackoff = 0 },
			wantErr:   true,
			errString: "poll_backoff must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorkerConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateAPIConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 4000},
			Database: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "scans_db",
			},
			Queue: QueueConfig{
				Region:            "eu-west-1",
				QueueURL:          "https://sqs.eu-west-1.amazonaws.com/123456789012/scan-jobs",
				VisibilityTimeout: 300,
			},
			Storage: StorageConfig{ScanBucket: "scan-uploads"},
			RabbitMQ: RabbitMQConfig{
				Host:     "localhost",
				Exchange: ExchangeConfig{Name: "scan_events"},
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty scan bucket",
			mutate:    func(c *Config) { c.Storage.ScanBucket = "" },
			wantErr:   true,
			errString: "scan_bucket is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate worker config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_worker.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load and validate api config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_api.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ValidateAPIConfig())
		assert.Equal(t, "scan-uploads", cfg.Storage.ScanBucket)
		assert.Equal(t, "blurred/", cfg.Storage.BlurredPrefix)
		assert.Equal(t, 15*time.Minute, cfg.Storage.PresignExpiry)
	})
}
