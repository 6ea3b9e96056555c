package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/scan-pipeline/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "scan-api-service",
		})
	})

	// Initialize scan handler
	scanHandler := handler.NewScanHandler(deps)

	// Transfer protocol endpoints used by workers
	r.GET("/get-image-url", scanHandler.GetImageURL)
	r.GET("/get-blurred-upload-url", scanHandler.GetBlurredUploadURL)
	r.POST("/job-complete", scanHandler.JobComplete)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		scans := v1.Group("/scans")
		{
			// POST /api/v1/scans - Submit a scan for processing
			scans.POST("", scanHandler.SubmitScan)

			// GET /api/v1/scans - List scans with filtering and pagination
			scans.GET("", scanHandler.ListScans)

			// GET /api/v1/scans/:original_key - Get ledger entry for one scan
			scans.GET("/:original_key", scanHandler.GetScan)
		}
	}

	return r
}
