package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
)

// Leases is the lease surface the loop drives
type Leases interface {
	PollOne(ctx context.Context) (*domain.Job, error)
	Complete(ctx context.Context, job *domain.Job) error
}

// ObjectStorage stages blobs between object storage and the scratch area
type ObjectStorage interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, originalKey string, data []byte) (string, error)
}

// OutcomeReporter posts job outcomes to the owning service
type OutcomeReporter interface {
	Report(ctx context.Context, originalKey string, outcome domain.Outcome) error
}

// Config holds the loop's collaborators and policy knobs
type Config struct {
	Logger      *slog.Logger
	Leases      Leases
	Store       ObjectStorage
	Step        Step
	Reporter    OutcomeReporter
	ScratchRoot string
	PollBackoff time.Duration
}

// Loop drives the pipeline one job at a time: poll, fetch, run, store,
// report, complete. Overlap across jobs never happens inside one process;
// horizontal scale comes from running more workers against the same queue.
type Loop struct {
	logger      *slog.Logger
	leases      Leases
	store       ObjectStorage
	step        Step
	reporter    OutcomeReporter
	scratchRoot string
	pollBackoff time.Duration
}

// NewLoop creates a worker loop
func NewLoop(cfg *Config) *Loop {
	return &Loop{
		logger:      cfg.Logger,
		leases:      cfg.Leases,
		store:       cfg.Store,
		step:        cfg.Step,
		reporter:    cfg.Reporter,
		scratchRoot: cfg.ScratchRoot,
		pollBackoff: cfg.PollBackoff,
	}
}

// Run polls until ctx is canceled. A per-job failure never stops the loop;
// only shutdown does. When the queue itself is unreachable the loop sleeps
// a fixed backoff before polling again, so an outage never becomes a hot
// failure loop.
func (l *Loop) Run(ctx context.Context) error {
	if l.scratchRoot != "" {
		if err := os.MkdirAll(l.scratchRoot, 0o755); err != nil {
			return fmt.Errorf("failed to create scratch root: %w", err)
		}
	}

	l.logger.Info("Worker loop started",
		slog.String("scratch_root", l.scratchRoot),
		slog.Duration("poll_backoff", l.pollBackoff),
	)

	for {
		if ctx.Err() != nil {
			l.logger.Info("Worker loop stopped - context canceled")
			return nil
		}

		job, err := l.leases.PollOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Worker loop stopped - context canceled")
				return nil
			}

			l.logger.Error("Queue unreachable, backing off",
				slog.Any("error", err),
				slog.Duration("backoff", l.pollBackoff),
			)

			select {
			case <-time.After(l.pollBackoff):
			case <-ctx.Done():
				l.logger.Info("Worker loop stopped - context canceled")
				return nil
			}
			continue
		}

		if job == nil {
			continue
		}

		// An accepted job always runs to completion or failure; shutdown
		// only takes effect at the next poll. The job runs on a context
		// detached from cancellation so a signal cannot abort its
		// transfers mid-flight.
		l.handle(context.WithoutCancel(ctx), job)
	}
}

// handle runs one job end to end and makes the single completion decision:
// complete only after the result is durably stored and the outcome report
// was attempted. On any failure the job is simply not completed, so the
// lease expires and the queue redelivers.
func (l *Loop) handle(ctx context.Context, job *domain.Job) {
	logger := l.logger.With(
		slog.String("original_key", job.OriginalKey),
		slog.String("message_id", job.MessageID),
	)

	storedKey, err := l.process(ctx, job)
	if err != nil {
		logger.Error("Job failed, leaving lease to expire",
			slog.Any("error", err),
		)

		if repErr := l.reporter.Report(ctx, job.OriginalKey, domain.FailureOutcome(err.Error())); repErr != nil {
			logger.Warn("Failed to report job failure",
				slog.Any("error", repErr),
			)
		}
		return
	}

	if repErr := l.reporter.Report(ctx, job.OriginalKey, domain.SuccessOutcome(storedKey)); repErr != nil {
		// reporting is best-effort and never blocks completion
		logger.Warn("Failed to report job success",
			slog.Any("error", repErr),
		)
	}

	if err := l.leases.Complete(ctx, job); err != nil {
		if errors.Is(err, domain.ErrStaleLease) {
			logger.Warn("Lease expired before completion, queue may redeliver")
		} else {
			logger.Error("Failed to complete job",
				slog.Any("error", err),
			)
		}
		return
	}

	logger.Info("Job finished",
		slog.String("stored_key", storedKey),
	)
}

// process stages the input, runs the step, and stores the result. The
// scratch directory lives exactly as long as this call, on every exit path.
func (l *Loop) process(ctx context.Context, job *domain.Job) (string, error) {
	scratch, err := os.MkdirTemp(l.scratchRoot, "job-")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			l.logger.Warn("Failed to remove scratch directory",
				slog.String("scratch", scratch),
				slog.Any("error", err),
			)
		}
	}()

	data, err := l.store.Fetch(ctx, job.OriginalKey)
	if err != nil {
		return "", err
	}

	inputPath := filepath.Join(scratch, filepath.Base(job.OriginalKey))
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to stage input: %w", err)
	}

	outputPath, err := l.step.Run(ctx, inputPath)
	if err != nil {
		return "", err
	}

	result, err := os.ReadFile(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to read step output: %w", err)
	}

	return l.store.Store(ctx, job.OriginalKey, result)
}
