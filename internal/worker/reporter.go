package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/scan-pipeline/internal/worker/domain"
)

// Reporter posts job outcomes to the owning service. Reporting is
// observability, not a correctness gate: callers log its errors and move
// on, and completion of the job never depends on it.
type Reporter struct {
	callbackURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewReporter creates a reporter. An empty callback URL disables reporting
// entirely; that is a configuration state, not an error.
func NewReporter(callbackURL string, logger *slog.Logger) *Reporter {
	if callbackURL == "" {
		logger.Warn("No callback URL configured, completion reporting disabled")
	}

	return &Reporter{
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Report posts the outcome for originalKey. A no-op when reporting is
// disabled.
func (r *Reporter) Report(ctx context.Context, originalKey string, outcome domain.Outcome) error {
	if r.callbackURL == "" {
		return nil
	}

	payload := map[string]string{"originalKey": originalKey}
	if outcome.Success {
		payload["blurredKey"] = outcome.ResultKey
	} else {
		payload["error"] = outcome.Reason
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post outcome: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	r.logger.Info("Outcome reported",
		slog.String("original_key", originalKey),
		slog.Bool("success", outcome.Success),
	)

	return nil
}
