package api

import (
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"vidconv/config"
	"vidconv/service"
)

func SetupRouter(svc *service.Service, cfg *config.Config, logger hclog.Logger) *gin.Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	h := NewHandler(svc, logger)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.GET("/info", h.handleInfo)

		// Working set
		v1.GET("/files", h.handleListFiles)
		v1.POST("/files", h.handleAddFiles)
		v1.DELETE("/files", h.handleClearFiles)
		v1.POST("/files/remove", h.handleRemoveFile)
		v1.POST("/files/metadata", h.handleLoadMetadata)
		v1.GET("/files/duration-check", h.handleDurationCheck)

		v1.GET("/selection", h.handleGetSelection)
		v1.POST("/selection/toggle", h.handleToggleSelection)
		v1.POST("/selection/all", h.handleSelectAll)
		v1.DELETE("/selection", h.handleDeselectAll)

		// Settings
		v1.GET("/presets", h.handleListPresets)
		v1.PUT("/presets/selected", h.handleSelectPreset)
		v1.GET("/output-folder", h.handleGetOutputFolder)
		v1.PUT("/output-folder", h.handleSetOutputFolder)
		v1.GET("/encoders", h.handleListEncoders)
		v1.PUT("/encoders/selected", h.handleSelectEncoder)

		// Encoding
		v1.GET("/encoding", h.handleEncodingState)
		v1.POST("/encoding", h.handleStartEncoding)
		v1.DELETE("/encoding", h.handleCancelEncoding)
		v1.GET("/jobs", h.handleListJobs)
		v1.GET("/jobs/:jobId", h.handleGetJob)
		v1.PATCH("/jobs/:jobId/cancel", h.handleCancelJob)
		v1.GET("/history", h.handleHistory)

		v1.GET("/events", h.handleEvents)
	}
	return r
}
