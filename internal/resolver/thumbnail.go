package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/model"
)

// ThumbnailTier falls back to the search provider's own thumbnail. These are
// small but nearly always reachable.
type ThumbnailTier struct {
	logger *zap.Logger
}

func NewThumbnailTier(logger *zap.Logger) *ThumbnailTier {
	return &ThumbnailTier{logger: logger}
}

func (t *ThumbnailTier) Name() string { return TierThumbnail }

func (t *ThumbnailTier) Resolve(_ context.Context, items []model.SearchItem) (string, bool) {
	for _, item := range items {
		if item.Thumbnail != "" {
			t.logger.Info("using search thumbnail, full-size image unavailable",
				zap.String("thumbnail", item.Thumbnail),
			)
			return item.Thumbnail, true
		}
	}
	return "", false
}
