package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lapor-kita/backend/internal/db"
	"github.com/lapor-kita/backend/internal/service"
)

type Handler struct {
	Store     *db.Store
	Processor *service.Processor
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createReportRequest struct {
	ThreadID   string  `json:"thread_id" validate:"required,uuid"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	UserID     *string `json:"user_id"`
	Platform   *string `json:"platform"`
}

// CreateReport registers a submitted conversation for processing: a pending
// report plus its queue job. The pipeline picks the job up on the next tick.
func (h *Handler) CreateReport(c *gin.Context) {
	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Malformed request body", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}
	threadID, err := uuid.Parse(req.ThreadID)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "thread_id must be a UUID", nil)
		return
	}

	ctx := c.Request.Context()
	report, err := h.Store.CreateReport(ctx, threadID, req.UserID, req.Platform)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to create report")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create report", err.Error())
		return
	}
	job, err := h.Store.CreateJob(ctx, report.ID, req.Confidence)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to enqueue job")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to enqueue processing job", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"report": report, "job": job})
}

func (h *Handler) JobStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "job id must be a UUID", nil)
		return
	}
	job, err := h.Store.GetJob(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) ClustersList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	clusters, err := h.Store.ListClusters(c.Request.Context(), limit)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to list clusters")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list clusters", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

// ProcessRun triggers one batch outside the schedule, for operators who do
// not want to wait out the tick interval.
func (h *Handler) ProcessRun(c *gin.Context) {
	n, err := h.Processor.ProcessBatch(c.Request.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("manual batch failed")
		writeError(c, http.StatusInternalServerError, "PROCESSING_ERROR", "Batch processing failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs_claimed": n})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
