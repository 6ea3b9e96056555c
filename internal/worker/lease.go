package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
	"github.com/cuongbtq/scan-pipeline/shared/sqsqueue"
)

// Queue is the receive/delete surface of the job queue
type Queue interface {
	ReceiveOne(ctx context.Context) (*sqsqueue.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// LeaseManager turns queue deliveries into leased jobs and owns the single
// failure-handling decision of the pipeline: a job is completed (deleted)
// exactly when processing succeeded, and otherwise left to expire so the
// queue's own redelivery counting governs retries.
type LeaseManager struct {
	queue       Queue
	leaseWindow time.Duration
	logger      *slog.Logger
}

// NewLeaseManager creates a lease manager. leaseWindow mirrors the queue's
// visibility timeout; the queue starts the window at receive time, the
// manager only records the deadline.
func NewLeaseManager(queue Queue, leaseWindow time.Duration, logger *slog.Logger) *LeaseManager {
	return &LeaseManager{
		queue:       queue,
		leaseWindow: leaseWindow,
		logger:      logger,
	}
}

// PollOne long-polls for the next job. Returns nil without error when the
// wait elapsed with no delivery, and also when a malformed message was
// received: those are deleted on the spot, since a body with no original
// key cannot become valid by redelivery. An error means the queue itself
// was unreachable.
func (m *LeaseManager) PollOne(ctx context.Context) (*domain.Job, error) {
	msg, err := m.queue.ReceiveOne(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to poll queue: %w", err)
	}

	if msg == nil {
		return nil, nil
	}

	body, parseErr := parseJobMessage(msg.Body)
	if parseErr != nil {
		m.logger.Error("Dropping malformed job message",
			slog.String("message_id", msg.MessageID),
			slog.String("body", msg.Body),
			slog.Any("error", parseErr),
		)

		if delErr := m.queue.Delete(ctx, msg.ReceiptHandle); delErr != nil {
			m.logger.Error("Failed to delete malformed message",
				slog.String("message_id", msg.MessageID),
				slog.Any("error", delErr),
			)
		}

		return nil, nil
	}

	job := &domain.Job{
		OriginalKey:   body.OriginalKey,
		MessageID:     msg.MessageID,
		ReceiptHandle: msg.ReceiptHandle,
		LeaseDeadline: time.Now().Add(m.leaseWindow),
	}

	m.logger.Info("Job leased",
		slog.String("original_key", job.OriginalKey),
		slog.String("message_id", job.MessageID),
		slog.Time("lease_deadline", job.LeaseDeadline),
	)

	return job, nil
}

// parseJobMessage validates a queue message body against the job contract
func parseJobMessage(raw string) (*domain.JobMessage, error) {
	var body domain.JobMessage
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedMessage, err.Error())
	}

	if body.OriginalKey == "" {
		return nil, fmt.Errorf("%w: missing original key", domain.ErrMalformedMessage)
	}

	return &body, nil
}

// Complete acknowledges the job by deleting its message. Deleting with a
// receipt handle that expired or was already acknowledged returns
// ErrStaleLease; the race with lease expiry makes that benign.
func (m *LeaseManager) Complete(ctx context.Context, job *domain.Job) error {
	err := m.queue.Delete(ctx, job.ReceiptHandle)
	if err != nil {
		if errors.Is(err, sqsqueue.ErrInvalidReceipt) {
			m.logger.Warn("Lease already expired or acknowledged",
				slog.String("original_key", job.OriginalKey),
				slog.String("message_id", job.MessageID),
			)
			return fmt.Errorf("%w: %s", domain.ErrStaleLease, err.Error())
		}
		return fmt.Errorf("failed to complete job: %w", err)
	}

	m.logger.Info("Job completed",
		slog.String("original_key", job.OriginalKey),
		slog.String("message_id", job.MessageID),
	)

	return nil
}
