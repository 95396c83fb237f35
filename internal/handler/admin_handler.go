package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/storage"
)

// AdminHandler handles administrative endpoints.
type AdminHandler struct {
	runRepo     storage.RunRepository
	llmCallRepo storage.LLMCallRepository
	providers   []string
	logger      *zap.Logger
}

// NewAdminHandler creates a new AdminHandler. providers lists the LLM
// provider names reported in stats.
func NewAdminHandler(runRepo storage.RunRepository, llmCallRepo storage.LLMCallRepository, providers []string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		runRepo:     runRepo,
		llmCallRepo: llmCallRepo,
		providers:   providers,
		logger:      logger,
	}
}

// Stats returns generation and LLM usage totals.
// Route: GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	if !h.auditEnabled(c) {
		return
	}
	ctx := c.Request.Context()

	total, err := h.runRepo.Count(ctx)
	if err != nil {
		h.internalError(c, "counting runs", err)
		return
	}

	succeeded, err := h.runRepo.CountBySuccess(ctx, true)
	if err != nil {
		h.internalError(c, "counting successful runs", err)
		return
	}

	placeholders, err := h.runRepo.SumPlaceholders(ctx)
	if err != nil {
		h.internalError(c, "summing placeholders", err)
		return
	}

	failedCalls, err := h.llmCallRepo.CountFailed(ctx)
	if err != nil {
		h.internalError(c, "counting failed llm calls", err)
		return
	}

	callsByProvider := make(map[string]int64, len(h.providers))
	for _, p := range h.providers {
		n, err := h.llmCallRepo.CountByProvider(ctx, p)
		if err != nil {
			h.internalError(c, "counting llm calls", err)
			return
		}
		callsByProvider[p] = n
	}

	c.JSON(http.StatusOK, gin.H{
		"runs": gin.H{
			"total":     total,
			"succeeded": succeeded,
			"failed":    total - succeeded,
		},
		"placeholders": placeholders,
		"llm_calls": gin.H{
			"by_provider": callsByProvider,
			"failed":      failedCalls,
		},
	})
}

// Runs lists the most recent generation runs.
// Route: GET /api/v1/admin/runs?limit=20
func (h *AdminHandler) Runs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "limit must be between 1 and 500",
		})
		return
	}
	if !h.auditEnabled(c) {
		return
	}

	runs, err := h.runRepo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, "listing runs", err)
		return
	}
	if runs == nil {
		runs = []model.GenerationRun{}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// auditEnabled answers 503 when the service runs without an audit database.
func (h *AdminHandler) auditEnabled(c *gin.Context) bool {
	if h.runRepo != nil && h.llmCallRepo != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log disabled"})
	return false
}

func (h *AdminHandler) internalError(c *gin.Context, what string, err error) {
	h.logger.Error(what, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
