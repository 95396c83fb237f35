package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/service"
)

// Fallback modes for a failed relay.
const (
	FallbackSVG      = "svg"
	FallbackRedirect = "redirect"
)

// ImageRelay fetches upstream images. *service.RelayService satisfies it.
type ImageRelay interface {
	Fetch(ctx context.Context, rawURL string, t service.ImageTransform) (*service.RelayedImage, error)
}

// RelayHandler serves remote images through this service.
type RelayHandler struct {
	relay        ImageRelay
	fallbackMode string
	fallbackURL  string
	logger       *zap.Logger
}

// NewRelayHandler creates a new RelayHandler. An unknown fallbackMode
// behaves like FallbackSVG.
func NewRelayHandler(relay ImageRelay, fallbackMode, fallbackURL string, logger *zap.Logger) *RelayHandler {
	return &RelayHandler{
		relay:        relay,
		fallbackMode: fallbackMode,
		fallbackURL:  fallbackURL,
		logger:       logger,
	}
}

// Relay streams the image at ?url= back to the caller.
// Route: GET /api/v1/relay?url=<escaped>&w=300&bg=ffffff
//
// Any failure still yields something an <img> tag can show: an inline SVG
// placeholder or a redirect to the configured fallback image.
func (h *RelayHandler) Relay(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		h.fallback(c)
		return
	}

	transform := h.parseTransform(c)

	img, err := h.relay.Fetch(c.Request.Context(), target, transform)
	if err != nil {
		h.logger.Warn("relay failed",
			zap.String("url", target),
			zap.Error(err),
		)
		h.fallback(c)
		return
	}

	// Relayed bytes come from arbitrary hosts; never let them run as a page.
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	c.Header("Cache-Control", "public, max-age=604800")
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

// parseTransform reads w and bg. Invalid values are ignored rather than
// failing the image.
func (h *RelayHandler) parseTransform(c *gin.Context) service.ImageTransform {
	var t service.ImageTransform
	if w := c.Query("w"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			t.Width = n
		}
	}
	t.Background = c.Query("bg")

	if err := t.Validate(); err != nil {
		h.logger.Debug("ignoring invalid relay transform", zap.Error(err))
		return service.ImageTransform{}
	}
	return t
}

func (h *RelayHandler) fallback(c *gin.Context) {
	if h.fallbackMode == FallbackRedirect && h.fallbackURL != "" {
		c.Redirect(http.StatusFound, h.fallbackURL)
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "image/svg+xml", service.PlaceholderSVG())
}
