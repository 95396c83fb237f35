package service

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/h2non/bimg"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/config"
)

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		Timeout:           2 * time.Second,
		MaxBytes:          1 << 20,
		CacheTTL:           time.Minute,
		CacheMaxEntryBytes: 256 << 10,
		CacheMaxItems:      16,
		FallbackMode:       "svg",
		AllowPrivateHosts:  true,
	}
}

func newUpstream(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRelayService_FetchAndCache(t *testing.T) {
	pngData := createTestPNG(32, 32, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	var gotUA atomic.Value
	srv, hits := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngData)
	})

	relay := NewRelayService(testRelayConfig(), "itemgen-test", zap.NewNop())

	for i := 0; i < 3; i++ {
		img, err := relay.Fetch(context.Background(), srv.URL+"/a.png", ImageTransform{})
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if img.ContentType != "image/png" {
			t.Errorf("expected image/png, got %s", img.ContentType)
		}
		if len(img.Data) != len(pngData) {
			t.Errorf("expected %d bytes, got %d", len(pngData), len(img.Data))
		}
	}

	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream request, got %d", hits.Load())
	}
	if ua, _ := gotUA.Load().(string); ua != "itemgen-test" {
		t.Errorf("expected user agent itemgen-test, got %q", ua)
	}
}

func TestRelayService_SniffsMissingContentType(t *testing.T) {
	pngData := createTestPNG(16, 16, color.Black)
	srv, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngData)
	})

	relay := NewRelayService(testRelayConfig(), "itemgen-test", zap.NewNop())
	img, err := relay.Fetch(context.Background(), srv.URL+"/download", ImageTransform{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if img.ContentType != "image/png" {
		t.Errorf("expected sniffed image/png, got %s", img.ContentType)
	}
}

func TestRelayService_ResizesSeparately(t *testing.T) {
	pngData := createTestPNG(200, 100, color.RGBA{R: 200, A: 255})
	srv, hits := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngData)
	})

	relay := NewRelayService(testRelayConfig(), "itemgen-test", zap.NewNop())

	full, err := relay.Fetch(context.Background(), srv.URL+"/a.png", ImageTransform{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	small, err := relay.Fetch(context.Background(), srv.URL+"/a.png", ImageTransform{Width: 50})
	if err != nil {
		t.Fatalf("Fetch with width failed: %v", err)
	}

	fullSize, err := bimg.NewImage(full.Data).Size()
	if err != nil {
		t.Fatalf("getting full size: %v", err)
	}
	smallSize, err := bimg.NewImage(small.Data).Size()
	if err != nil {
		t.Fatalf("getting resized size: %v", err)
	}
	if fullSize.Width != 200 || smallSize.Width != 50 || smallSize.Height != 25 {
		t.Errorf("unexpected sizes: full %dx%d, resized %dx%d",
			fullSize.Width, fullSize.Height, smallSize.Width, smallSize.Height)
	}
	if hits.Load() != 2 {
		t.Errorf("expected each variant to be fetched once, got %d requests", hits.Load())
	}
}

func TestRelayService_Errors(t *testing.T) {
	srv, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.jpg":
			http.NotFound(w, r)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>not an image</body></html>"))
		case "/huge.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(make([]byte, 2<<20))
		}
	})

	relay := NewRelayService(testRelayConfig(), "itemgen-test", zap.NewNop())

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"not found", srv.URL + "/missing.jpg", nil},
		{"html", srv.URL + "/page", ErrNotImage},
		{"too large", srv.URL + "/huge.png", ErrTooLarge},
		{"bad scheme", "ftp://example.com/a.png", ErrUnsafeTarget},
		{"relative", "/a.png", ErrUnsafeTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := relay.Fetch(context.Background(), tt.url, ImageTransform{})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRelayService_BlocksPrivateHosts(t *testing.T) {
	srv, hits := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(createTestPNG(8, 8, color.White))
	})

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	port := u.Port()

	cfg := testRelayConfig()
	cfg.AllowPrivateHosts = false
	relay := NewRelayService(cfg, "itemgen-test", zap.NewNop())

	for _, target := range []string{
		srv.URL + "/a.png",
		"http://10.0.0.5/a.png",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/a.png",
		// Passes the URL check; refused when the dialer sees 127.0.0.1.
		"http://localhost:" + port + "/a.png",
	} {
		if _, err := relay.Fetch(context.Background(), target, ImageTransform{}); !errors.Is(err, ErrUnsafeTarget) {
			t.Errorf("%s: expected ErrUnsafeTarget, got %v", target, err)
		}
	}
	if hits.Load() != 0 {
		t.Errorf("expected no upstream requests, got %d", hits.Load())
	}
}

func TestRelayService_LargeImagesAreNotCached(t *testing.T) {
	big := append(createTestPNG(8, 8, color.White), make([]byte, 300<<10)...)
	srv, hits := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(big)
	})

	relay := NewRelayService(testRelayConfig(), "itemgen-test", zap.NewNop())

	for i := 0; i < 2; i++ {
		img, err := relay.Fetch(context.Background(), srv.URL+"/big.png", ImageTransform{})
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if len(img.Data) != len(big) {
			t.Errorf("expected %d bytes, got %d", len(big), len(img.Data))
		}
	}

	if hits.Load() != 2 {
		t.Errorf("expected every request to reach upstream, got %d", hits.Load())
	}
	if n := relay.cache.ItemCount(); n != 0 {
		t.Errorf("expected empty cache, got %d items", n)
	}
}

func TestRelayService_CacheItemLimit(t *testing.T) {
	pngData := createTestPNG(8, 8, color.White)
	srv, hits := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngData)
	})

	cfg := testRelayConfig()
	cfg.CacheMaxItems = 2
	relay := NewRelayService(cfg, "itemgen-test", zap.NewNop())

	for _, path := range []string{"/a.png", "/b.png", "/c.png", "/c.png", "/a.png"} {
		if _, err := relay.Fetch(context.Background(), srv.URL+path, ImageTransform{}); err != nil {
			t.Fatalf("Fetch %s failed: %v", path, err)
		}
	}

	if n := relay.cache.ItemCount(); n != 2 {
		t.Errorf("expected 2 cached items, got %d", n)
	}
	// a and b are cached; c overflowed and is fetched each time.
	if hits.Load() != 4 {
		t.Errorf("expected 4 upstream requests, got %d", hits.Load())
	}
}

func TestGuardDial(t *testing.T) {
	tests := []struct {
		address string
		allowed bool
	}{
		{"93.184.216.34:443", true},
		{"[2606:2800:220:1:248:1893:25c8:1946]:80", true},
		{"127.0.0.1:80", false},
		{"[::1]:443", false},
		{"10.1.2.3:80", false},
		{"192.168.0.10:8080", false},
		{"169.254.169.254:80", false},
		{"0.0.0.0:80", false},
		{"not-an-address", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			err := guardDial("tcp", tt.address, nil)
			if tt.allowed && err != nil {
				t.Errorf("expected %s to be allowed, got %v", tt.address, err)
			}
			if !tt.allowed && !errors.Is(err, ErrUnsafeTarget) {
				t.Errorf("expected ErrUnsafeTarget for %s, got %v", tt.address, err)
			}
		})
	}
}

func TestPlaceholderSVG(t *testing.T) {
	svg := string(PlaceholderSVG())
	if len(svg) == 0 || svg[:4] != "<svg" {
		t.Errorf("expected an svg document, got %q", svg)
	}
}
