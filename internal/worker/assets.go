package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
)

// ObjectGetter is the subset of the S3 client the asset fetcher uses
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// AssetFetcher stages model assets from the operator-controlled asset
// bucket. Unlike scan blobs, assets are fetched with direct credentialed
// access; there is no presign step.
type AssetFetcher struct {
	s3     ObjectGetter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewAssetFetcher creates an asset fetcher for the given bucket and key prefix
func NewAssetFetcher(client ObjectGetter, bucket, prefix string, logger *slog.Logger) *AssetFetcher {
	return &AssetFetcher{
		s3:     client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}
}

// Ensure downloads every manifest entry into localDir, creating intermediate
// directories as needed. It fails fast on the first unavailable asset and
// never proceeds partially. Re-running over an already-populated directory
// overwrites, which keeps the call idempotent.
func (f *AssetFetcher) Ensure(ctx context.Context, entries []string, localDir string) error {
	for _, entry := range entries {
		if err := f.download(ctx, entry, localDir); err != nil {
			return fmt.Errorf("%w: %q: %s", domain.ErrAssetUnavailable, entry, err.Error())
		}
	}

	f.logger.Info("Model assets staged",
		slog.String("bucket", f.bucket),
		slog.Int("entries", len(entries)),
		slog.String("local_dir", localDir),
	)

	return nil
}

func (f *AssetFetcher) download(ctx context.Context, entry, localDir string) error {
	key := path.Join(f.prefix, entry)

	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get s3://%s/%s: %w", f.bucket, key, err)
	}
	defer out.Body.Close()

	dest := filepath.Join(localDir, filepath.FromSlash(entry))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create asset file: %w", err)
	}

	written, err := io.Copy(file, out.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write asset file: %w", err)
	}

	f.logger.Debug("Asset downloaded",
		slog.String("key", key),
		slog.Int64("bytes", written),
	)

	return nil
}
