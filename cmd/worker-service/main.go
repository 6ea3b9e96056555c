package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/scan-pipeline/internal/config"
	"github.com/cuongbtq/scan-pipeline/internal/worker"
	"github.com/cuongbtq/scan-pipeline/shared/logger"
	"github.com/cuongbtq/scan-pipeline/shared/sqsqueue"
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

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("step", cfg.Processing.Step),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize SQS queue client
	queueClient, err := sqsqueue.NewClient(ctx, &sqsqueue.Config{
		Region:            cfg.Queue.Region,
		QueueURL:          cfg.Queue.QueueURL,
		WaitSeconds:       cfg.Queue.WaitSeconds,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	// The lease window is the queue's visibility timeout
	leaseWindow := time.Duration(cfg.Queue.VisibilityTimeout) * time.Second
	leases := worker.NewLeaseManager(queueClient, leaseWindow, appLogger.Logger)

	// Initialize processing step
	step, err := initStep(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize processing step: %w", err)
	}

	objectStore := worker.NewObjectStore(cfg.Control.BaseURL, appLogger.Logger)
	reporter := worker.NewReporter(cfg.Callback.URL, appLogger.Logger)

	loop := worker.NewLoop(&worker.Config{
		Logger:      appLogger.Logger,
		Leases:      leases,
		Store:       objectStore,
		Step:        step,
		Reporter:    reporter,
		ScratchRoot: cfg.Worker.ScratchDir,
		PollBackoff: cfg.Worker.PollBackoff,
	})

	// Start worker loop in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := loop.Run(ctx); err != nil {
			errChan <- err
		} else {
			errChan <- nil
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
			return err
		}
		return nil
	}

	// Cancel context to stop the loop; an in-flight job finishes first
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-errChan:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
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
	}

	return logger.New(loggerCfg)
}

// initStep builds the configured processing step. Inference deployments
// stage their model assets before the first poll; a worker that cannot
// stage its assets does not start.
func initStep(ctx context.Context, cfg *config.Config, logger *slog.Logger) (worker.Step, error) {
	switch cfg.Processing.Step {
	case config.StepBlur:
		return worker.NewBlurStep(cfg.Processing.BlurSigma, logger), nil

	case config.StepInference:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Queue.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		localDir := cfg.Assets.LocalDir
		if localDir == "" {
			localDir = filepath.Join(os.TempDir(), "scan-models")
		}

		fetcher := worker.NewAssetFetcher(s3.NewFromConfig(awsCfg), cfg.Assets.Bucket, cfg.Assets.Prefix, logger)
		if err := fetcher.Ensure(ctx, cfg.Assets.Manifest, localDir); err != nil {
			return nil, err
		}

		model, err := worker.LoadModel(localDir, cfg.Assets.Manifest)
		if err != nil {
			return nil, err
		}

		return worker.NewInferenceStep(model, logger), nil

	default:
		return nil, fmt.Errorf("unknown processing step: %q", cfg.Processing.Step)
	}
}
