package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/scan-pipeline/internal/api/model"
	"github.com/cuongbtq/scan-pipeline/internal/api/storage"
)

// ScanStore is the ledger surface the handlers drive
type ScanStore interface {
	CreateScan(ctx context.Context, scan *model.Scan) error
	GetScanByKey(ctx context.Context, originalKey string) (*model.Scan, error)
	ListScans(ctx context.Context, filter storage.ScanFilter) ([]model.Scan, error)
	MarkScanCompleted(ctx context.Context, originalKey, blurredKey string) error
	MarkScanFailed(ctx context.Context, originalKey, reason string) error
}

// Presigner issues time-boxed transfer URLs against the scan bucket
type Presigner interface {
	DownloadURL(ctx context.Context, key string) (string, error)
	UploadURL(ctx context.Context, originalKey string) (uploadURL, blurredKey string, err error)
}

// JobQueue enqueues processing jobs for the worker fleet
type JobQueue interface {
	Send(ctx context.Context, body []byte) error
}

// EventPublisher fans scan lifecycle events out to interested consumers
type EventPublisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     ScanStore
	Presigner Presigner
	Queue     JobQueue
	Events    EventPublisher
}

// ScanHandler handles scan-related HTTP requests
type ScanHandler struct {
	logger    *slog.Logger
	store     ScanStore
	presigner Presigner
	queue     JobQueue
	events    EventPublisher
}

// NewScanHandler creates a new ScanHandler instance
func NewScanHandler(deps *Dependencies) *ScanHandler {
	return &ScanHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		presigner: deps.Presigner,
		queue:     deps.Queue,
		events:    deps.Events,
	}
}
