package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/scan-pipeline/internal/api/domain"
	"github.com/cuongbtq/scan-pipeline/internal/api/dto"
	"github.com/cuongbtq/scan-pipeline/internal/api/model"
	"github.com/cuongbtq/scan-pipeline/internal/api/storage"
)

// scanEvent is the lifecycle event body published to the event exchange
type scanEvent struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	OriginalKey string `json:"original_key"`
	BlurredKey  string `json:"blurred_key,omitempty"`
	Error       string `json:"error,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

// GetImageURL handles GET /get-image-url?key=
// Issues a presigned download URL for the blob stored under key
func (h *ScanHandler) GetImageURL(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "key is required",
		})
		return
	}

	url, err := h.presigner.DownloadURL(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("Failed to presign download", slog.String("key", key), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to issue download URL",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url": url,
	})
}

// GetBlurredUploadURL handles GET /get-blurred-upload-url?originalKey=
// Issues a presigned upload URL for the processed result and tells the
// caller the key it must store under
func (h *ScanHandler) GetBlurredUploadURL(c *gin.Context) {
	originalKey := c.Query("originalKey")
	if originalKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "originalKey is required",
		})
		return
	}

	uploadURL, blurredKey, err := h.presigner.UploadURL(c.Request.Context(), originalKey)
	if err != nil {
		h.logger.Error("Failed to presign upload", slog.String("original_key", originalKey), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to issue upload URL",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uploadUrl":  uploadURL,
		"blurredKey": blurredKey,
	})
}

// JobComplete handles POST /job-complete
// Worker completion callback: records the outcome in the ledger and
// publishes a lifecycle event
func (h *ScanHandler) JobComplete(c *gin.Context) {
	var req dto.JobCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid callback body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	var err error
	if req.Error != "" {
		err = h.store.MarkScanFailed(c.Request.Context(), req.OriginalKey, req.Error)
	} else if req.BlurredKey != "" {
		err = h.store.MarkScanCompleted(c.Request.Context(), req.OriginalKey, req.BlurredKey)
	} else {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "either blurredKey or error is required",
		})
		return
	}

	if err != nil {
		if errors.Is(err, domain.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "scan not found",
			})
			return
		}
		h.logger.Error("Failed to record outcome", slog.String("original_key", req.OriginalKey), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to record outcome",
		})
		return
	}

	if req.Error != "" {
		h.publishEvent(c, domain.EventScanFailed, req.OriginalKey, "", req.Error)
	} else {
		h.publishEvent(c, domain.EventScanCompleted, req.OriginalKey, req.BlurredKey, "")
	}

	h.logger.Info("Outcome recorded",
		slog.String("original_key", req.OriginalKey),
		slog.Bool("success", req.Error == ""),
	)

	c.JSON(http.StatusOK, gin.H{
		"status": "recorded",
	})
}

// SubmitScan handles POST /api/v1/scans
// Records a pending scan and enqueues a processing job
func (h *ScanHandler) SubmitScan(c *gin.Context) {
	var req dto.SubmitScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	now := time.Now()
	scan := model.Scan{
		OriginalKey: req.OriginalKey,
		Status:      domain.ScanStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.CreateScan(c.Request.Context(), &scan); err != nil {
		h.logger.Error("Failed to create scan", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create scan",
		})
		return
	}

	// the queue message is the worker's whole job description
	body, err := json.Marshal(map[string]string{"originalKey": req.OriginalKey})
	if err != nil {
		h.logger.Error("Failed to marshal job message", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue scan",
		})
		return
	}

	if err := h.queue.Send(c.Request.Context(), body); err != nil {
		h.logger.Error("Failed to enqueue scan", slog.String("original_key", req.OriginalKey), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue scan",
		})
		return
	}

	h.publishEvent(c, domain.EventScanSubmitted, req.OriginalKey, "", "")

	h.logger.Info("Scan submitted",
		slog.String("original_key", req.OriginalKey),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"original_key": scan.OriginalKey,
		"status":       scan.Status,
		"created_at":   scan.CreatedAt,
	})
}

// GetScan handles GET /api/v1/scans/:original_key
// Retrieves the ledger entry for a single scan
func (h *ScanHandler) GetScan(c *gin.Context) {
	originalKey := c.Param("original_key")
	if originalKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "original_key is required",
		})
		return
	}

	scan, err := h.store.GetScanByKey(c.Request.Context(), originalKey)
	if err != nil {
		if errors.Is(err, domain.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "scan not found",
			})
			return
		}
		h.logger.Error("Failed to get scan", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get scan",
		})
		return
	}

	c.JSON(http.StatusOK, toScanDTO(scan))
}

// ListScans handles GET /api/v1/scans
// Lists scans with optional status filtering and cursor pagination
func (h *ScanHandler) ListScans(c *gin.Context) {
	var req dto.ListScansRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeScanCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.ScanFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	scans, err := h.store.ListScans(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list scans", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list scans",
		})
		return
	}

	hasMore := len(scans) > req.PageSize
	if hasMore {
		scans = scans[:req.PageSize]
	}

	scanResponse := make([]dto.ScanDTO, len(scans))
	for i, scan := range scans {
		scanResponse[i] = toScanDTO(&scan)
	}

	var nextCursor string
	if hasMore {
		lastScan := scans[len(scans)-1]
		nextCursor = EncodeScanCursor(&storage.ScanCursor{
			CreatedAt:   lastScan.CreatedAt,
			OriginalKey: lastScan.OriginalKey,
		})
	}

	c.JSON(http.StatusOK, dto.ListScansResponse{
		Scans:      scanResponse,
		NextCursor: nextCursor,
	})
}

// publishEvent publishes a lifecycle event. Event fan-out is best-effort;
// a publish failure never fails the request.
func (h *ScanHandler) publishEvent(c *gin.Context, eventType, originalKey, blurredKey, errMsg string) {
	if h.events == nil {
		return
	}

	body, err := json.Marshal(scanEvent{
		EventID:     uuid.New().String(),
		Type:        eventType,
		OriginalKey: originalKey,
		BlurredKey:  blurredKey,
		Error:       errMsg,
		OccurredAt:  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Warn("Failed to marshal event", slog.Any("error", err))
		return
	}

	if err := h.events.Publish(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Warn("Failed to publish event",
			slog.String("type", eventType),
			slog.String("original_key", originalKey),
			slog.Any("error", err),
		)
	}
}

func toScanDTO(scan *model.Scan) dto.ScanDTO {
	out := dto.ScanDTO{
		OriginalKey: scan.OriginalKey,
		Status:      scan.Status,
		CreatedAt:   scan.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   scan.UpdatedAt.Format(time.RFC3339),
	}
	if scan.BlurredKey.Valid {
		out.BlurredKey = scan.BlurredKey.String
	}
	if scan.ErrorMessage.Valid {
		out.ErrorMessage = scan.ErrorMessage.String
	}
	return out
}
