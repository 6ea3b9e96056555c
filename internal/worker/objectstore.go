package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
)

const transferContentType = "application/octet-stream"

// ObjectStore moves scan blobs in and out of object storage via short-lived
// presigned URLs issued by the control service. The worker never holds
// storage credentials; the control service scopes each URL to one key.
type ObjectStore struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewObjectStore creates an object store client against the control service
func NewObjectStore(baseURL string, logger *slog.Logger) *ObjectStore {
	return &ObjectStore{
		baseURL: baseURL,
		httpClient: &http.Client{
			// scan volumes run to tens of MB; allow slow links
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

// Fetch downloads the blob stored under key. No retry happens here; a
// failed fetch fails the whole job and the queue redelivers.
func (s *ObjectStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	presignURL := fmt.Sprintf("%s/get-image-url?key=%s", s.baseURL, url.QueryEscape(key))

	var presigned struct {
		URL string `json:"url"`
	}
	if err := s.getJSON(ctx, presignURL, &presigned); err != nil {
		return nil, fmt.Errorf("%w: download url for %q: %s", domain.ErrPresignRequest, key, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, presigned.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransfer, err.Error())
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download %q: %s", domain.ErrTransfer, key, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: download %q: unexpected status %d", domain.ErrTransfer, key, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: download %q: %s", domain.ErrTransfer, key, err.Error())
	}

	s.logger.Info("Blob fetched",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)

	return data, nil
}

// Store uploads the processed result for originalKey and returns the key
// the control service assigned to it. Callers must use the returned key;
// the service chooses it, not the worker.
func (s *ObjectStore) Store(ctx context.Context, originalKey string, data []byte) (string, error) {
	presignURL := fmt.Sprintf("%s/get-blurred-upload-url?originalKey=%s", s.baseURL, url.QueryEscape(originalKey))

	var presigned struct {
		UploadURL  string `json:"uploadUrl"`
		BlurredKey string `json:"blurredKey"`
	}
	if err := s.getJSON(ctx, presignURL, &presigned); err != nil {
		return "", fmt.Errorf("%w: upload url for %q: %s", domain.ErrPresignRequest, originalKey, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrTransfer, err.Error())
	}
	req.Header.Set("Content-Type", transferContentType)
	req.ContentLength = int64(len(data))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: upload for %q: %s", domain.ErrTransfer, originalKey, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: upload for %q: unexpected status %d", domain.ErrTransfer, originalKey, resp.StatusCode)
	}

	s.logger.Info("Blob stored",
		slog.String("original_key", originalKey),
		slog.String("stored_key", presigned.BlurredKey),
		slog.Int("bytes", len(data)),
	)

	return presigned.BlurredKey, nil
}

// getJSON performs the control-service request of the two-step transfer
// protocol and decodes its JSON response
func (s *ObjectStore) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response body: %w", err)
	}

	return nil
}
