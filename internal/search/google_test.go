package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

func newGoogleTestProvider(t *testing.T, handler http.HandlerFunc) *GoogleProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewGoogleProvider(context.Background(), "test-key", "engine-id", zap.NewNop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return p
}

func TestGoogleProvider_Search(t *testing.T) {
	var query map[string]string
	p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query = map[string]string{
			"path":       r.URL.Path,
			"cx":         q.Get("cx"),
			"q":          q.Get("q"),
			"searchType": q.Get("searchType"),
			"num":        q.Get("num"),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"title": "Simit - Wikipedia",
					"link":  "https://upload.wikimedia.org/simit.jpg",
					"mime":  "image/jpeg",
					"image": map[string]any{
						"thumbnailLink": "https://encrypted-tbn0.gstatic.com/images?q=tbn:1",
						"contextLink":   "https://en.wikipedia.org/wiki/Simit",
					},
				},
				{
					"title": "Simit recipe",
					"link":  "https://cdn.example.com/simit.png",
					"mime":  "image/png",
				},
				{"title": "no link"},
			},
		})
	})

	items, err := p.Search(context.Background(), "simit food photo", 25)
	require.NoError(t, err)

	assert.Equal(t, "/customsearch/v1", query["path"])
	assert.Equal(t, "engine-id", query["cx"])
	assert.Equal(t, "simit food photo", query["q"])
	assert.Equal(t, "image", query["searchType"])
	assert.Equal(t, "10", query["num"], "num is clamped to the API maximum")

	require.Len(t, items, 2)
	assert.Equal(t, "https://upload.wikimedia.org/simit.jpg", items[0].Link)
	assert.Equal(t, "https://encrypted-tbn0.gstatic.com/images?q=tbn:1", items[0].Thumbnail)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Simit", items[0].ContextLink)
	assert.Equal(t, "https://cdn.example.com/simit.png", items[1].Link)
	assert.Empty(t, items[1].Thumbnail)
}

func TestGoogleProvider_NoResults(t *testing.T) {
	p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"searchInformation":{"totalResults":"0"}}`))
	})

	_, err := p.Search(context.Background(), "nothing at all", 10)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestGoogleProvider_ErrorStatus(t *testing.T) {
	p := newGoogleTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded"}}`))
	})

	_, err := p.Search(context.Background(), "simit", 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResults)
}

func TestNewGoogleProvider_RequiresCredentials(t *testing.T) {
	_, err := NewGoogleProvider(context.Background(), "", "engine-id", zap.NewNop())
	assert.Error(t, err)

	_, err = NewGoogleProvider(context.Background(), "key", "", zap.NewNop())
	assert.Error(t, err)
}
