package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/generation"
	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/service"
)

// ItemGenerator runs the generation pipeline. *service.GenerateService
// satisfies it.
type ItemGenerator interface {
	Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerateResponse, error)
}

// GenerateHandler handles item generation requests.
type GenerateHandler struct {
	generator ItemGenerator
	logger    *zap.Logger
}

// NewGenerateHandler creates a new GenerateHandler.
func NewGenerateHandler(generator ItemGenerator, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		generator: generator,
		logger:    logger,
	}
}

// Generate creates a themed item list with an image per item.
// Route: POST /api/v1/generate
//
// Body: {"topic": "kahvaltı", "count": 20, "customPrompt": "..."}
// Only a failure to generate the list itself returns 500; items whose image
// couldn't be found come back with a placeholder.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	if strings.TrimSpace(req.Topic) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "topic is required",
		})
		return
	}

	resp, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrMissingTopic) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var genErr *generation.Error
		if errors.As(err, &genErr) {
			h.logger.Error("item generation failed",
				zap.String("topic", req.Topic),
				zap.String("provider", genErr.Provider),
				zap.Error(genErr.Err),
			)
		} else {
			h.logger.Error("item generation failed", zap.String("topic", req.Topic), zap.Error(err))
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}
