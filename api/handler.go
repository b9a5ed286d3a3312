package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"vidconv/service"
	"vidconv/task"
	"vidconv/workspace"
)

type Handler struct {
	svc    *service.Service
	logger hclog.Logger
}

func NewHandler(svc *service.Service, logger hclog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

type AddFilesRequest struct {
	Paths []string `json:"paths" binding:"required"`
}

type PathRequest struct {
	Path string `json:"path" binding:"required"`
}

type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

type IDRequest struct {
	ID string `json:"id" binding:"required"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrBatchRunning):
		return http.StatusConflict
	case errors.Is(err, service.ErrPresetNotFound), errors.Is(err, task.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrNoFiles),
		errors.Is(err, workspace.ErrEncoderUnavailable),
		errors.Is(err, service.ErrNotDirectory),
		errors.Is(err, os.ErrNotExist):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *Handler) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Info(c.Request.Context()))
}

func (h *Handler) handleListFiles(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Files())
}

// handleAddFiles adds files by path. Rejected paths are reported in the
// response body, not as an error status.
func (h *Handler) handleAddFiles(c *gin.Context) {
	var req AddFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.svc.AddFiles(req.Paths))
}

func (h *Handler) handleClearFiles(c *gin.Context) {
	h.svc.ClearFiles()
	c.JSON(http.StatusOK, gin.H{"message": "Files cleared"})
}

func (h *Handler) handleRemoveFile(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.svc.RemoveFile(req.Path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File removed"})
}

func (h *Handler) handleLoadMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.LoadAllMetadata(c.Request.Context()))
}

func (h *Handler) handleDurationCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.CheckDurationMismatch())
}

func (h *Handler) handleGetSelection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"paths": h.svc.SelectedPaths()})
}

func (h *Handler) handleToggleSelection(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.svc.ToggleSelection(req.Path)
	c.JSON(http.StatusOK, gin.H{"paths": h.svc.SelectedPaths()})
}

func (h *Handler) handleSelectAll(c *gin.Context) {
	h.svc.SelectAll()
	c.JSON(http.StatusOK, gin.H{"paths": h.svc.SelectedPaths()})
}

func (h *Handler) handleDeselectAll(c *gin.Context) {
	h.svc.DeselectAll()
	c.JSON(http.StatusOK, gin.H{"paths": h.svc.SelectedPaths()})
}

func (h *Handler) handleListPresets(c *gin.Context) {
	selected := ""
	if p, ok := h.svc.SelectedPreset(); ok {
		selected = p.Name
	}
	c.JSON(http.StatusOK, gin.H{"presets": h.svc.Presets(), "selected": selected})
}

func (h *Handler) handleSelectPreset(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SelectPreset(req.Name); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": req.Name})
}

func (h *Handler) handleGetOutputFolder(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"path": h.svc.OutputFolder()})
}

func (h *Handler) handleSetOutputFolder(c *gin.Context) {
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SetOutputFolder(req.Path); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": h.svc.OutputFolder()})
}

// handleListEncoders runs detection; ?refresh=true bypasses the cache.
func (h *Handler) handleListEncoders(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	encoders := h.svc.DetectEncoders(c.Request.Context(), refresh)
	c.JSON(http.StatusOK, gin.H{"encoders": encoders, "selected": h.svc.SelectedEncoder()})
}

func (h *Handler) handleSelectEncoder(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.SelectEncoder(req.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": req.ID})
}

func (h *Handler) handleEncodingState(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.EncodingState())
}

// handleStartEncoding starts a batch over the selected files. An empty body
// uses the selected preset and encoder.
func (h *Handler) handleStartEncoding(c *gin.Context) {
	var req service.StartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	batch, err := h.svc.StartEncoding(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"batchId": batch.ID, "jobs": batch.Jobs})
}

func (h *Handler) handleCancelEncoding(c *gin.Context) {
	if !h.svc.CancelEncoding() {
		c.JSON(http.StatusConflict, gin.H{"error": "No encoding in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Encoding cancellation requested"})
}

func (h *Handler) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Jobs())
}

func (h *Handler) handleGetJob(c *gin.Context) {
	job, found := h.svc.Job(c.Param("jobId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) handleCancelJob(c *gin.Context) {
	if err := h.svc.CancelJob(c.Param("jobId")); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job cancellation requested"})
}

func (h *Handler) handleHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	records, err := h.svc.History(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}
