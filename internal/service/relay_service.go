package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/config"
)

var (
	// ErrUnsafeTarget is returned for non-http(s) URLs and for hosts that
	// resolve to private, loopback or link-local addresses.
	ErrUnsafeTarget = errors.New("relay target not allowed")
	// ErrTooLarge is returned when the upstream body exceeds the relay cap.
	ErrTooLarge = errors.New("upstream image too large")
	// ErrNotImage is returned when the upstream body isn't an image.
	ErrNotImage = errors.New("upstream content is not an image")
)

// RelayedImage is an upstream image ready to be served.
type RelayedImage struct {
	Data        []byte
	ContentType string
}

// RelayService fetches remote images on behalf of clients whose browsers
// can't load them directly (hotlink protection, missing CORS headers).
// Small fetched images are kept in a bounded in-memory cache keyed by URL
// and transform.
type RelayService struct {
	client *http.Client
	cache  *cache.Cache
	cfg    config.RelayConfig
	ua     string
	logger *zap.Logger
}

// NewRelayService creates a relay. userAgent is sent upstream so hosts see
// the same client as the resolver's probes.
func NewRelayService(cfg config.RelayConfig, userAgent string, logger *zap.Logger) *RelayService {
	s := &RelayService{
		cache:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:    cfg,
		ua:     userAgent,
		logger: logger,
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	if !cfg.AllowPrivateHosts {
		// Checked on the address actually dialed, so a name that re-resolves
		// to a private IP after checkTarget is still refused.
		dialer.Control = guardDial
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	// A proxy would make the dialed address the proxy's, not the target's.
	transport.Proxy = nil

	s.client = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		// Every redirect hop is checked like the original URL.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return s.checkTarget(req.URL.String())
		},
	}
	return s
}

// Fetch returns the image at rawURL with t applied. A failed transform
// falls back to the original bytes.
func (s *RelayService) Fetch(ctx context.Context, rawURL string, t ImageTransform) (*RelayedImage, error) {
	key := rawURL + "#" + t.cacheKey()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*RelayedImage), nil
	}

	if err := s.checkTarget(rawURL); err != nil {
		return nil, err
	}

	img, err := s.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if !t.IsZero() {
		processed, err := ProcessImage(img.Data, t)
		if err != nil {
			s.logger.Warn("relay transform failed, serving original",
				zap.String("url", rawURL),
				zap.Error(err),
			)
		} else {
			img = &RelayedImage{Data: processed, ContentType: mimetype.Detect(processed).String()}
		}
	}

	s.store(key, img)
	return img, nil
}

// store caches img unless it is over the entry size or the cache is full.
func (s *RelayService) store(key string, img *RelayedImage) {
	if int64(len(img.Data)) > s.cfg.CacheMaxEntryBytes {
		return
	}
	if s.cache.ItemCount() >= s.cfg.CacheMaxItems {
		s.logger.Debug("relay cache full, not caching", zap.Int("items", s.cache.ItemCount()))
		return
	}
	s.cache.Set(key, img, cache.DefaultExpiration)
}

func (s *RelayService) download(ctx context.Context, rawURL string) (*RelayedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.ua)
	req.Header.Set("Accept", "image/*")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > s.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrTooLarge, resp.ContentLength)
	}

	// Read one byte past the cap so an oversized body is detectable.
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upstream body: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || !strings.HasPrefix(mediaType, "image/") {
		// Many CDNs send octet-stream or nothing at all; trust the bytes.
		contentType = mimetype.Detect(data).String()
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	s.logger.Debug("relayed upstream image",
		zap.String("url", rawURL),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return &RelayedImage{Data: data, ContentType: contentType}, nil
}

// checkTarget rejects URLs the relay must never fetch. Host names are
// checked again at dial time by guardDial.
func (s *RelayService) checkTarget(rawURL string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeTarget, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrUnsafeTarget)
	}
	if s.cfg.AllowPrivateHosts {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil && blockedIP(ip) {
		return fmt.Errorf("%w: %s", ErrUnsafeTarget, ip)
	}
	return nil
}

// guardDial is a net.Dialer Control hook that refuses connections to
// private, loopback, link-local and unspecified addresses.
func guardDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeTarget, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || blockedIP(ip) {
		return fmt.Errorf("%w: connecting to %s", ErrUnsafeTarget, address)
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// PlaceholderSVG renders the image served when the relay can't deliver.
func PlaceholderSVG() []byte {
	return []byte(placeholderSVG)
}

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="400" viewBox="0 0 400 400">` +
	`<rect width="400" height="400" fill="#e5e7eb"/>` +
	`<path d="M140 250l45-60 35 45 25-30 55 45z" fill="#9ca3af"/>` +
	`<circle cx="245" cy="160" r="18" fill="#9ca3af"/>` +
	`<text x="200" y="310" font-family="sans-serif" font-size="20" fill="#6b7280" text-anchor="middle">No Image</text>` +
	`</svg>`
