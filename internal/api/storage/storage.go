package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/scan-pipeline/internal/api/domain"
	"github.com/cuongbtq/scan-pipeline/internal/api/model"
	"github.com/cuongbtq/scan-pipeline/shared/postgresql"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// CreateScan records a pending scan. Resubmitting an existing key resets it
// to PENDING so a scan can be reprocessed after a failure.
func (s *Storage) CreateScan(ctx context.Context, scan *model.Scan) error {
	query := `
		INSERT INTO scans (
			original_key, blurred_key, status, error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (original_key) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = NULL,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		scan.OriginalKey,
		scan.BlurredKey,
		scan.Status,
		scan.ErrorMessage,
		scan.CreatedAt,
		scan.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}

	return nil
}

func (s *Storage) GetScanByKey(ctx context.Context, originalKey string) (*model.Scan, error) {
	var scan model.Scan
	query := `
		SELECT
			original_key, blurred_key, status, error_message, created_at, updated_at
		FROM scans
		WHERE original_key = $1
	`

	err := s.db.GetContext(ctx, &scan, query, originalKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScanNotFound
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	return &scan, nil
}

// MarkScanCompleted records the stored result key and flips the scan to
// COMPLETED
func (s *Storage) MarkScanCompleted(ctx context.Context, originalKey, blurredKey string) error {
	query := `
		UPDATE scans
		SET blurred_key = $2, status = $3, error_message = NULL, updated_at = $4
		WHERE original_key = $1
	`

	res, err := s.db.ExecContext(ctx, query, originalKey, blurredKey, domain.ScanStatusCompleted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark scan completed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark scan completed: %w", err)
	}
	if affected == 0 {
		return domain.ErrScanNotFound
	}

	return nil
}

// MarkScanFailed records the failure reason and flips the scan to FAILED
func (s *Storage) MarkScanFailed(ctx context.Context, originalKey, reason string) error {
	query := `
		UPDATE scans
		SET status = $2, error_message = $3, updated_at = $4
		WHERE original_key = $1
	`

	res, err := s.db.ExecContext(ctx, query, originalKey, domain.ScanStatusFailed, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark scan failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark scan failed: %w", err)
	}
	if affected == 0 {
		return domain.ErrScanNotFound
	}

	return nil
}

type ScanFilter struct {
	Status   string
	PageSize int
	Cursor   *ScanCursor
}

type ScanCursor struct {
	CreatedAt   time.Time
	OriginalKey string
}

func (s *Storage) ListScans(ctx context.Context, filter ScanFilter) ([]model.Scan, error) {
	query := `
        SELECT
            original_key, blurred_key, status, error_message, created_at, updated_at
        FROM scans
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, original_key) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.OriginalKey)
		argIdx += 2
	}

	// Order by created_at DESC, original_key DESC for consistent pagination
	query += " ORDER BY created_at DESC, original_key DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var scans []model.Scan
	err := s.db.SelectContext(ctx, &scans, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}

	return scans, nil
}
