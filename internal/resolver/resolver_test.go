package resolver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/config"
	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/policy"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// fakeImage is what the test image host serves for one path.
type fakeImage struct {
	contentType string
	body        []byte
	// omitLength leaves Content-Length undeclared.
	omitLength bool
	status     int
	delay      time.Duration
}

type imageHost struct {
	*httptest.Server
	hits      atomic.Int32
	userAgent atomic.Value
}

// newImageHost starts a server that serves the given paths. HEAD requests get
// headers only, GET requests get the body too.
func newImageHost(t *testing.T, images map[string]fakeImage) *imageHost {
	t.Helper()
	h := &imageHost{}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		h.userAgent.Store(r.UserAgent())

		img, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if img.delay > 0 {
			select {
			case <-time.After(img.delay):
			case <-r.Context().Done():
				return
			}
		}
		if img.contentType != "" {
			w.Header().Set("Content-Type", img.contentType)
		}
		if !img.omitLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(img.body)))
		}
		status := img.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if r.Method == http.MethodGet {
			_, _ = w.Write(img.body)
		}
	}))
	t.Cleanup(h.Close)
	return h
}

func testProbeConfig() config.ProbeConfig {
	return config.ProbeConfig{
		HeadTimeout:   time.Second,
		FetchTimeout:  time.Second,
		MinBytes:      5000,
		MaxFetchBytes: 50000,
		UserAgent:     "itemgen-test",
	}
}

func pngBytes(size int) []byte {
	return append(bytes.Clone(pngSignature), make([]byte, size-len(pngSignature))...)
}

func TestResolve_TrustedHostBeatsRank(t *testing.T) {
	// The "kahvaltı" case: rank 1 is a blacklisted pin, rank 2 a tracking
	// pixel and rank 3 sits on a trusted host.
	host := newImageHost(t, map[string]fakeImage{
		"/pixel.png": {contentType: "image/png", body: pngBytes(100)},
	})
	items := []model.SearchItem{
		{Link: "https://i.pinimg.com/originals/ab/menemen.jpg"},
		{Link: host.URL + "/pixel.png"},
		{Link: "https://upload.wikimedia.org/wikipedia/commons/a/a1/Turkish_breakfast.jpg"},
	}

	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())
	res, ok := r.Resolve(context.Background(), "kahvaltı", items)

	require.True(t, ok)
	assert.Equal(t, items[2].Link, res.URL)
	assert.Equal(t, TierTrusted, res.Tier)
	assert.True(t, res.Trusted())
	assert.Zero(t, host.hits.Load(), "trusted results are accepted without probing")
}

func TestResolve_HeadAcceptsLargeImage(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/pixel.png": {contentType: "image/png", body: pngBytes(100)},
		"/photo.jpg": {contentType: "image/jpeg", body: make([]byte, 6000)},
	})
	items := []model.SearchItem{
		{Link: host.URL + "/pixel.png"},
		{Link: host.URL + "/photo.jpg?size=large"},
	}

	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())
	res, ok := r.Resolve(context.Background(), "simit", items)

	require.True(t, ok)
	assert.Equal(t, items[1].Link, res.URL)
	assert.Equal(t, TierHead, res.Tier)
	assert.False(t, res.Trusted())
	assert.Equal(t, "itemgen-test", host.userAgent.Load())
}

func TestResolve_TinyImageNeverAccepted(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/pixel.png": {contentType: "image/png", body: pngBytes(100)},
	})
	items := []model.SearchItem{{Link: host.URL + "/pixel.png"}}

	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())
	_, ok := r.Resolve(context.Background(), "pixel", items)

	assert.False(t, ok)
}

func TestResolve_BlacklistedHostNeverContacted(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/photo.jpg": {contentType: "image/jpeg", body: make([]byte, 6000)},
	})
	pol := &policy.DomainPolicy{
		Blacklist:  []string{"127.0.0.1"},
		Extensions: []string{".jpg"},
	}
	items := []model.SearchItem{
		{Link: host.URL + "/photo.jpg", Thumbnail: "https://encrypted-tbn0.gstatic.com/images?q=tbn:abc"},
	}

	r := NewDefault(pol, testProbeConfig(), zap.NewNop())
	res, ok := r.Resolve(context.Background(), "çay", items)

	require.True(t, ok)
	assert.Equal(t, TierThumbnail, res.Tier)
	assert.Equal(t, items[0].Thumbnail, res.URL)
	assert.Zero(t, host.hits.Load())
}

func TestResolve_FetchAcceptsExtensionlessURL(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/image": {contentType: "image/png", body: pngBytes(8000)},
	})
	items := []model.SearchItem{{Link: host.URL + "/image?id=42"}}

	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())
	res, ok := r.Resolve(context.Background(), "börek", items)

	require.True(t, ok)
	assert.Equal(t, TierFetch, res.Tier)
	assert.Equal(t, int32(1), host.hits.Load(), "head tier skips URLs without an image extension")
}

func TestResolve_FetchSniffsGenericContentType(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/download": {contentType: "application/octet-stream", body: pngBytes(8000)},
	})
	items := []model.SearchItem{{Link: host.URL + "/download"}}

	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())
	res, ok := r.Resolve(context.Background(), "peynir", items)

	require.True(t, ok)
	assert.Equal(t, TierFetch, res.Tier)
}

func TestResolve_FetchRejectsHTML(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/gallery": {contentType: "text/html; charset=utf-8", body: bytes.Repeat([]byte("<p>hi</p>"), 2000)},
	})
	items := []model.SearchItem{{Link: host.URL + "/gallery"}}

	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())
	_, ok := r.Resolve(context.Background(), "zeytin", items)

	assert.False(t, ok)
}

func TestResolve_SlowHostFallsBackToThumbnail(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/slow.jpg": {contentType: "image/jpeg", body: make([]byte, 6000), delay: 500 * time.Millisecond},
	})
	cfg := testProbeConfig()
	cfg.HeadTimeout = 50 * time.Millisecond
	cfg.FetchTimeout = 50 * time.Millisecond
	items := []model.SearchItem{{Link: host.URL + "/slow.jpg", Thumbnail: "https://thumbs.example.com/slow.jpg"}}

	r := NewDefault(policy.Default(), cfg, zap.NewNop())
	start := time.Now()
	res, ok := r.Resolve(context.Background(), "sucuk", items)

	require.True(t, ok)
	assert.Equal(t, TierThumbnail, res.Tier)
	assert.Less(t, time.Since(start), 450*time.Millisecond)
}

func TestResolve_NonSuccessStatus(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/gone.jpg": {contentType: "image/jpeg", body: make([]byte, 6000), status: http.StatusForbidden},
	})
	items := []model.SearchItem{{Link: host.URL + "/gone.jpg"}}

	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())
	_, ok := r.Resolve(context.Background(), "bal", items)

	assert.False(t, ok)
}

func TestResolve_NoItems(t *testing.T) {
	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())
	_, ok := r.Resolve(context.Background(), "empty", nil)
	assert.False(t, ok)
}

func TestHeadTier_RequiresDeclaredLength(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/stream.jpg": {contentType: "image/jpeg", body: make([]byte, 6000), omitLength: true},
	})
	tier := NewHeadTier(policy.Default(), http.DefaultClient, testProbeConfig(), zap.NewNop())

	_, ok := tier.Resolve(context.Background(), []model.SearchItem{{Link: host.URL + "/stream.jpg"}})
	assert.False(t, ok)
}

func TestFetchTier_ReadsAtMostCap(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/huge.png": {contentType: "image/png", body: pngBytes(2 << 20)},
	})
	tier := NewFetchTier(policy.Default(), http.DefaultClient, testProbeConfig(), zap.NewNop())

	got, ok := tier.Resolve(context.Background(), []model.SearchItem{{Link: host.URL + "/huge.png"}})
	require.True(t, ok)
	assert.Equal(t, host.URL+"/huge.png", got)
}

// stubTier records whether it ran.
type stubTier struct {
	name string
	url  string
	ran  bool
}

func (s *stubTier) Name() string { return s.name }
func (s *stubTier) Resolve(context.Context, []model.SearchItem) (string, bool) {
	s.ran = true
	return s.url, s.url != ""
}

func TestResolver_FirstAcceptingTierWins(t *testing.T) {
	first := &stubTier{name: "first"}
	second := &stubTier{name: "second", url: "https://example.com/a.jpg"}
	third := &stubTier{name: "third", url: "https://example.com/b.jpg"}

	r := New(zap.NewNop(), first, second, third)
	res, ok := r.Resolve(context.Background(), "x", []model.SearchItem{{Link: "https://example.com"}})

	require.True(t, ok)
	assert.Equal(t, Resolution{URL: "https://example.com/a.jpg", Tier: "second"}, res)
	assert.True(t, first.ran)
	assert.False(t, third.ran)
}

func TestResolve_CanceledContextKeepsOfflineTiers(t *testing.T) {
	host := newImageHost(t, map[string]fakeImage{
		"/big.jpg": {contentType: "image/jpeg", body: make([]byte, 8000)},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewDefault(policy.Default(), testProbeConfig(), zap.NewNop())

	t.Run("thumbnail", func(t *testing.T) {
		items := []model.SearchItem{{Link: host.URL + "/big.jpg", Thumbnail: "https://thumbs.example.com/pide.jpg"}}
		res, ok := r.Resolve(ctx, "pide", items)

		require.True(t, ok)
		assert.Equal(t, Resolution{URL: "https://thumbs.example.com/pide.jpg", Tier: TierThumbnail}, res)
		assert.Zero(t, host.hits.Load(), "probing tiers stop on a done context")
	})

	t.Run("trusted", func(t *testing.T) {
		items := []model.SearchItem{{Link: "https://upload.wikimedia.org/pide.jpg"}}
		res, ok := r.Resolve(ctx, "pide", items)

		require.True(t, ok)
		assert.Equal(t, TierTrusted, res.Tier)
	})
}
