package presign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of the S3 presign client this package uses
type API interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config holds the scan bucket and URL policy
type Config struct {
	Region        string
	ScanBucket    string
	BlurredPrefix string
	Expiry        time.Duration
}

// Client issues short-lived presigned URLs against the scan bucket. Only
// this service holds storage credentials; workers get one time-boxed URL
// per transfer, scoped to a single key.
type Client struct {
	api    API
	config *Config
	logger *slog.Logger
}

// NewClient creates a presign client from the ambient AWS credential chain
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return New(s3.NewPresignClient(s3.NewFromConfig(awsCfg)), config, logger), nil
}

// New creates a presign client around an existing API implementation
func New(api API, config *Config, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		config: config,
		logger: logger,
	}
}

// DownloadURL issues a presigned GET for the blob stored under key
func (c *Client) DownloadURL(ctx context.Context, key string) (string, error) {
	req, err := c.api.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.ScanBucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.config.Expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %q: %w", key, err)
	}

	c.logger.Debug("Download URL issued",
		slog.String("key", key),
		slog.Duration("expiry", c.config.Expiry),
	)

	return req.URL, nil
}

// UploadURL issues a presigned PUT for the processed result of originalKey.
// The service picks the destination key; callers must store under exactly
// the key returned here.
func (c *Client) UploadURL(ctx context.Context, originalKey string) (string, string, error) {
	blurredKey := c.config.BlurredPrefix + originalKey

	req, err := c.api.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.config.ScanBucket),
		Key:    aws.String(blurredKey),
	}, s3.WithPresignExpires(c.config.Expiry))
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload for %q: %w", originalKey, err)
	}

	c.logger.Debug("Upload URL issued",
		slog.String("original_key", originalKey),
		slog.String("blurred_key", blurredKey),
		slog.Duration("expiry", c.config.Expiry),
	)

	return req.URL, blurredKey, nil
}
