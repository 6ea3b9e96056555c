package sqsqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
)

// ErrInvalidReceipt is returned by Delete when the receipt handle is stale:
// the visibility window expired or the message was already deleted
var ErrInvalidReceipt = errors.New("receipt handle is invalid or expired")

// Config holds SQS queue configuration
type Config struct {
	Region            string
	QueueURL          string
	WaitSeconds       int32
	VisibilityTimeout int32
}

// API is the subset of the SQS client the queue wrapper uses.
// Tests substitute a fake implementation.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message is one delivery received from the queue. ReceiptHandle identifies
// this delivery only and is required to delete the message.
type Message struct {
	MessageID     string
	Body          string
	ReceiptHandle string
}

// Client wraps an SQS queue with receive-one semantics
type Client struct {
	api    API
	config *Config
	logger *slog.Logger
}

// NewClient resolves AWS credentials from the environment and creates a
// queue client for the configured region
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("SQS client initialized",
		slog.String("region", config.Region),
		slog.String("queue_url", config.QueueURL),
	)

	return New(sqs.NewFromConfig(awsCfg), config, logger), nil
}

// New creates a queue client around an existing SQS API implementation
func New(api API, config *Config, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		config: config,
		logger: logger,
	}
}

// ReceiveOne long-polls the queue for at most one message. Returns nil with
// no error when the wait elapses without a delivery. The visibility window
// on a returned message starts at receive time on the queue side.
func (c *Client) ReceiveOne(ctx context.Context) (*Message, error) {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.config.QueueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     c.config.WaitSeconds,
		VisibilityTimeout:   c.config.VisibilityTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	if len(out.Messages) == 0 {
		return nil, nil
	}

	msg := out.Messages[0]
	return &Message{
		MessageID:     aws.ToString(msg.MessageId),
		Body:          aws.ToString(msg.Body),
		ReceiptHandle: aws.ToString(msg.ReceiptHandle),
	}, nil
}

// Delete acknowledges a delivery by receipt handle. A stale handle maps to
// ErrInvalidReceipt so callers can treat the race with lease expiry as benign.
func (c *Client) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		var invalidHandle *types.ReceiptHandleIsInvalid
		if errors.As(err, &invalidHandle) {
			return fmt.Errorf("%w: %s", ErrInvalidReceipt, err.Error())
		}

		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidParameterValue" {
			return fmt.Errorf("%w: %s", ErrInvalidReceipt, err.Error())
		}

		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

// Send enqueues a message body
func (c *Client) Send(ctx context.Context, body []byte) error {
	out, err := c.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.config.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.logger.Debug("Message sent to SQS",
		slog.String("message_id", aws.ToString(out.MessageId)),
	)

	return nil
}
