package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
	"github.com/cuongbtq/scan-pipeline/shared/sqsqueue"
)

type fakeQueue struct {
	messages   []*sqsqueue.Message
	receiveErr error
	deleteErr  error

	deleted []string
}

func (q *fakeQueue) ReceiveOne(ctx context.Context) (*sqsqueue.Message, error) {
	if q.receiveErr != nil {
		return nil, q.receiveErr
	}
	if len(q.messages) == 0 {
		return nil, nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, nil
}

func (q *fakeQueue) Delete(ctx context.Context, receiptHandle string) error {
	if q.deleteErr != nil {
		return q.deleteErr
	}
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func TestLeaseManager_PollOne(t *testing.T) {
	t.Run("returns a leased job for a valid message", func(t *testing.T) {
		queue := &fakeQueue{
			messages: []*sqsqueue.Message{
				{MessageID: "m-1", Body: `{"originalKey":"scan123.nii.gz"}`, ReceiptHandle: "rh-1"},
			},
		}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		before := time.Now()
		job, err := manager.PollOne(context.Background())
		require.NoError(t, err)
		require.NotNil(t, job)

		assert.Equal(t, "scan123.nii.gz", job.OriginalKey)
		assert.Equal(t, "rh-1", job.ReceiptHandle)
		assert.Equal(t, "m-1", job.MessageID)
		assert.True(t, job.LeaseDeadline.After(before.Add(4*time.Minute)))
		assert.Empty(t, queue.deleted)
	})

	t.Run("returns nil when the wait elapses empty", func(t *testing.T) {
		queue := &fakeQueue{}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		job, err := manager.PollOne(context.Background())
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("deletes malformed json immediately", func(t *testing.T) {
		queue := &fakeQueue{
			messages: []*sqsqueue.Message{
				{MessageID: "m-2", Body: `{not json`, ReceiptHandle: "rh-2"},
			},
		}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		job, err := manager.PollOne(context.Background())
		require.NoError(t, err)
		assert.Nil(t, job)
		assert.Equal(t, []string{"rh-2"}, queue.deleted)
	})

	t.Run("deletes messages missing the original key", func(t *testing.T) {
		queue := &fakeQueue{
			messages: []*sqsqueue.Message{
				{MessageID: "m-3", Body: `{"somethingElse":"x"}`, ReceiptHandle: "rh-3"},
			},
		}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		job, err := manager.PollOne(context.Background())
		require.NoError(t, err)
		assert.Nil(t, job)
		assert.Equal(t, []string{"rh-3"}, queue.deleted)
	})

	t.Run("propagates queue transport errors", func(t *testing.T) {
		queue := &fakeQueue{receiveErr: errors.New("connection refused")}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		job, err := manager.PollOne(context.Background())
		require.Error(t, err)
		assert.Nil(t, job)
		assert.Contains(t, err.Error(), "failed to poll queue")
	})
}

func TestParseJobMessage(t *testing.T) {
	body, err := parseJobMessage(`{"originalKey":"scan123.nii.gz"}`)
	require.NoError(t, err)
	assert.Equal(t, "scan123.nii.gz", body.OriginalKey)

	_, err = parseJobMessage(`{not json`)
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)

	_, err = parseJobMessage(`{"somethingElse":"x"}`)
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestLeaseManager_Complete(t *testing.T) {
	job := &domain.Job{
		OriginalKey:   "scan123.nii.gz",
		MessageID:     "m-1",
		ReceiptHandle: "rh-1",
	}

	t.Run("deletes the message by receipt handle", func(t *testing.T) {
		queue := &fakeQueue{}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		require.NoError(t, manager.Complete(context.Background(), job))
		assert.Equal(t, []string{"rh-1"}, queue.deleted)
	})

	t.Run("maps an invalid receipt to ErrStaleLease", func(t *testing.T) {
		queue := &fakeQueue{deleteErr: sqsqueue.ErrInvalidReceipt}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		err := manager.Complete(context.Background(), job)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStaleLease)
	})

	t.Run("completing twice is benign", func(t *testing.T) {
		queue := &fakeQueue{}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		require.NoError(t, manager.Complete(context.Background(), job))

		// the queue now rejects the consumed receipt handle
		queue.deleteErr = sqsqueue.ErrInvalidReceipt
		err := manager.Complete(context.Background(), job)
		assert.ErrorIs(t, err, domain.ErrStaleLease)
	})

	t.Run("keeps other delete failures distinct", func(t *testing.T) {
		queue := &fakeQueue{deleteErr: errors.New("internal failure")}
		manager := NewLeaseManager(queue, 5*time.Minute, slog.Default())

		err := manager.Complete(context.Background(), job)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrStaleLease)
	})
}
