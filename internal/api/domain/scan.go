package domain

import (
	"errors"
)

const (
	ScanStatusPending   = "PENDING"
	ScanStatusCompleted = "COMPLETED"
	ScanStatusFailed    = "FAILED"
)

// Scan lifecycle event types published to the event exchange
const (
	EventScanSubmitted = "scan.submitted"
	EventScanCompleted = "scan.completed"
	EventScanFailed    = "scan.failed"
)

var (
	ErrScanNotFound = errors.New("scan not found")
)
