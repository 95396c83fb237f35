package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/fleveque/itemgen-service/internal/model"
)

// maxGoogleResults is the most results the Custom Search API returns per page.
const maxGoogleResults = 10

// GoogleProvider searches images through the Google Custom Search JSON API.
// cx is the programmable search engine ID; the engine must have image search
// enabled.
type GoogleProvider struct {
	svc    *customsearch.Service
	cx     string
	logger *zap.Logger
}

// NewGoogleProvider creates a provider for the given API key and engine ID.
// Extra client options (endpoint, HTTP client) are passed through to the
// generated API client, which is how tests point it at a local server.
func NewGoogleProvider(ctx context.Context, apiKey, cx string, logger *zap.Logger, opts ...option.ClientOption) (*GoogleProvider, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("google search requires both an API key and a cx engine ID")
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating custom search client: %w", err)
	}

	return &GoogleProvider{svc: svc, cx: cx, logger: logger}, nil
}

func (g *GoogleProvider) Name() string {
	return "google"
}

// Search runs one image search. num is clamped to 1..10.
func (g *GoogleProvider) Search(ctx context.Context, query string, num int) ([]model.SearchItem, error) {
	num = min(max(num, 1), maxGoogleResults)

	resp, err := g.svc.Cse.List().
		Cx(g.cx).
		Q(query).
		SearchType("image").
		Num(int64(num)).
		Safe("active").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("google image search for %q: %w", query, err)
	}

	if len(resp.Items) == 0 {
		return nil, ErrNoResults
	}

	items := make([]model.SearchItem, 0, len(resp.Items))
	for _, r := range resp.Items {
		if r == nil || r.Link == "" {
			continue
		}

		item := model.SearchItem{
			Link:  r.Link,
			Title: r.Title,
			Mime:  r.Mime,
		}
		if r.Image != nil {
			item.Thumbnail = r.Image.ThumbnailLink
			item.ContextLink = r.Image.ContextLink
			item.Width = r.Image.Width
			item.Height = r.Image.Height
			item.ByteSize = r.Image.ByteSize
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrNoResults
	}

	g.logger.Debug("google image search",
		zap.String("query", query),
		zap.Int("results", len(items)),
	)
	return items, nil
}
