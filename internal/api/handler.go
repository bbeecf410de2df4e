package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/devops-ingest/internal/aggregator"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	apperrors "github.com/kurihiro0119/devops-ingest/internal/errors"
	"github.com/kurihiro0119/devops-ingest/internal/storage"
)

const defaultScanLimit = 20

// Handler handles API requests
type Handler struct {
	aggregator aggregator.Aggregator
	storage    storage.Storage
}

// NewHandler creates a new API handler
func NewHandler(agg aggregator.Aggregator, store storage.Storage) *Handler {
	return &Handler{
		aggregator: agg,
		storage:    store,
	}
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// GetSummary returns the ingestion summary of an integration
// GET /api/v1/integrations/:tenant/:integration/summary
func (h *Handler) GetSummary(c *gin.Context) {
	summary, err := h.aggregator.Summarize(c.Request.Context(), integrationKey(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summary,
	})
}

// GetProjectSummary returns the item counts of one project
// GET /api/v1/integrations/:tenant/:integration/projects/:organization/:project
func (h *Handler) GetProjectSummary(c *gin.Context) {
	summary, err := h.aggregator.ProjectSummary(c.Request.Context(), integrationKey(c),
		c.Param("organization"), c.Param("project"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summary,
	})
}

// GetRecords lists stored records
// GET /api/v1/integrations/:tenant/:integration/records?resource=&project=&limit=&offset=
func (h *Handler) GetRecords(c *gin.Context) {
	filter := storage.RecordFilter{
		Project: c.Query("project"),
		Limit:   parseIntQuery(c, "limit", storage.DefaultRecordLimit),
		Offset:  parseIntQuery(c, "offset", 0),
	}
	if resource := c.Query("resource"); resource != "" {
		stage, err := domain.ParseStage(resource)
		if err != nil {
			respondError(c, apperrors.NewBadRequestError(err.Error()))
			return
		}
		filter.Resource = stage
	}

	records, err := h.storage.GetRecords(c.Request.Context(), integrationKey(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []*domain.StoredRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   records,
		"limit":  filter.EffectiveLimit(),
		"offset": filter.Offset,
	})
}

// GetCheckpoint returns the pending checkpoint of an integration
// GET /api/v1/integrations/:tenant/:integration/checkpoint
func (h *Handler) GetCheckpoint(c *gin.Context) {
	cp, err := h.storage.GetCheckpoint(c.Request.Context(), integrationKey(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    cp,
		"pending": !cp.IsZero(),
	})
}

// GetScanRuns lists the latest scan runs of an integration
// GET /api/v1/integrations/:tenant/:integration/scans?limit=
func (h *Handler) GetScanRuns(c *gin.Context) {
	runs, err := h.storage.GetScanRuns(c.Request.Context(), integrationKey(c), parseIntQuery(c, "limit", defaultScanLimit))
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []*domain.ScanRun{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": runs,
	})
}

// GetScanRun returns one scan run
// GET /api/v1/scans/:id
func (h *Handler) GetScanRun(c *gin.Context) {
	run, err := h.storage.GetScanRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": run,
	})
}

func integrationKey(c *gin.Context) domain.IntegrationKey {
	return domain.IntegrationKey{
		TenantID:      c.Param("tenant"),
		IntegrationID: c.Param("integration"),
	}
}

// parseIntQuery parses a non-negative integer query parameter with a default value
func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	message := appErr.Message
	if appErr.Code == apperrors.ErrCodeInternal {
		message = err.Error()
	}
	c.JSON(appErr.HTTPStatus(), gin.H{
		"error": gin.H{
			"code":    appErr.Code,
			"message": message,
		},
	})
}
