package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/repository"
	"github.com/timmy/catalogetl/internal/service"
	"github.com/timmy/catalogetl/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// jobResponse adds a done flag so pollers need not know the status values.
type jobResponse struct {
	*domain.ETLJob
	Done bool `json:"done"`
}

func newJobResponse(job *domain.ETLJob) jobResponse {
	return jobResponse{ETLJob: job, Done: job.Status.IsTerminal()}
}

// JobHandler handles ETL job endpoints.
type JobHandler struct {
	ingestService *service.IngestService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - ingestService: ingest service instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(ingestService *service.IngestService) *JobHandler {
	return &JobHandler{ingestService: ingestService}
}

// StartJob handles POST /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) StartJob(c *gin.Context) {
	var req service.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	job, err := h.ingestService.StartJob(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, job)
	case errors.Is(err, storage.ErrObjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start job: " + err.Error(),
		})
	}
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, offset := page(c)
	jobs, err := h.ingestService.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"limit":  limit,
		"offset": offset,
	})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.ingestService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeLookupError(c, err, repository.ErrJobNotFound, "Job not found")
		return
	}
	c.JSON(http.StatusOK, newJobResponse(job))
}

// ListInvalidItems handles GET /api/v1/jobs/:id/invalid-items.
func (h *JobHandler) ListInvalidItems(c *gin.Context) {
	limit, offset := page(c)
	result, err := h.ingestService.ListInvalidItems(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		writeLookupError(c, err, repository.ErrJobNotFound, "Job not found")
		return
	}
	c.JSON(http.StatusOK, result)
}

// page reads limit/offset query parameters, falling back to defaults for
// missing or malformed values.
func page(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeLookupError(c *gin.Context, err, notFound error, msg string) {
	if errors.Is(err, notFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
