package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/config"
	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/policy"
)

// Reasons a probe declines a URL. Timeouts and rejections lead to the same
// outcome (try the next result) but are logged apart.
const (
	reasonBlacklisted = "blacklisted"
	reasonExtension   = "no image extension"
	reasonTimeout     = "timeout"
	reasonTransport   = "transport error"
	reasonStatus      = "non-2xx status"
	reasonType        = "not an image"
	reasonSize        = "too small"
)

// probeError carries why a probe declined a URL.
type probeError struct {
	reason string
	detail string
}

func (e *probeError) Error() string {
	if e.detail == "" {
		return e.reason
	}
	return e.reason + ": " + e.detail
}

func reject(reason, format string, args ...any) error {
	return &probeError{reason: reason, detail: fmt.Sprintf(format, args...)}
}

// transportFailure classifies an http.Client error as timeout or transport.
func transportFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &probeError{reason: reasonTimeout, detail: err.Error()}
	}
	return &probeError{reason: reasonTransport, detail: err.Error()}
}

func logDecline(logger *zap.Logger, tier, link string, err error) {
	reason := "unknown"
	var pe *probeError
	if errors.As(err, &pe) {
		reason = pe.reason
	}
	logger.Debug("probe declined url",
		zap.String("tier", tier),
		zap.String("url", link),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// isImageType reports whether a Content-Type value names an image.
func isImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}

// HeadTier sends a HEAD request to each candidate that looks like an image
// file and accepts the first that declares an image body of useful size.
type HeadTier struct {
	policy *policy.DomainPolicy
	client *http.Client
	cfg    config.ProbeConfig
	logger *zap.Logger
}

func NewHeadTier(pol *policy.DomainPolicy, client *http.Client, cfg config.ProbeConfig, logger *zap.Logger) *HeadTier {
	return &HeadTier{policy: pol, client: client, cfg: cfg, logger: logger}
}

func (t *HeadTier) Name() string { return TierHead }

func (t *HeadTier) Resolve(ctx context.Context, items []model.SearchItem) (string, bool) {
	for _, item := range items {
		if ctx.Err() != nil {
			return "", false
		}
		if item.Link == "" {
			continue
		}

		var err error
		switch {
		case t.policy.IsBlacklisted(item.Link):
			err = &probeError{reason: reasonBlacklisted}
		case !t.policy.HasImageExtension(item.Link):
			err = &probeError{reason: reasonExtension}
		default:
			err = t.probe(ctx, item.Link)
		}

		if err == nil {
			return item.Link, true
		}
		logDecline(t.logger, TierHead, item.Link, err)
	}
	return "", false
}

func (t *HeadTier) probe(ctx context.Context, link string) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.HeadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return reject(reasonTransport, "building request: %v", err)
	}
	req.Header.Set("User-Agent", t.cfg.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return reject(reasonStatus, "HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !isImageType(ct) {
		return reject(reasonType, "content type %q", ct)
	}
	// ContentLength is -1 when the server doesn't declare it; that fails too.
	if resp.ContentLength <= t.cfg.MinBytes {
		return reject(reasonSize, "declared %d bytes", resp.ContentLength)
	}
	return nil
}

// FetchTier downloads the start of each non-blacklisted candidate and checks
// the bytes themselves. It catches servers that reject HEAD or omit headers.
type FetchTier struct {
	policy *policy.DomainPolicy
	client *http.Client
	cfg    config.ProbeConfig
	logger *zap.Logger
}

func NewFetchTier(pol *policy.DomainPolicy, client *http.Client, cfg config.ProbeConfig, logger *zap.Logger) *FetchTier {
	return &FetchTier{policy: pol, client: client, cfg: cfg, logger: logger}
}

func (t *FetchTier) Name() string { return TierFetch }

func (t *FetchTier) Resolve(ctx context.Context, items []model.SearchItem) (string, bool) {
	for _, item := range items {
		if ctx.Err() != nil {
			return "", false
		}
		if item.Link == "" {
			continue
		}

		var err error
		if t.policy.IsBlacklisted(item.Link) {
			err = &probeError{reason: reasonBlacklisted}
		} else {
			err = t.probe(ctx, item.Link)
		}

		if err == nil {
			return item.Link, true
		}
		logDecline(t.logger, TierFetch, item.Link, err)
	}
	return "", false
}

func (t *FetchTier) probe(ctx context.Context, link string) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return reject(reasonTransport, "building request: %v", err)
	}
	req.Header.Set("User-Agent", t.cfg.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return reject(reasonStatus, "HTTP %d", resp.StatusCode)
	}

	// Only the first MaxFetchBytes are read; anything past the cap already
	// proves the image is big enough.
	data, err := io.ReadAll(io.LimitReader(resp.Body, t.cfg.MaxFetchBytes))
	if err != nil {
		return transportFailure(err)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isImageType(contentType) && isGenericType(contentType) {
		contentType = mimetype.Detect(data).String()
	}
	if !isImageType(contentType) {
		return reject(reasonType, "content type %q", contentType)
	}
	if int64(len(data)) <= t.cfg.MinBytes {
		return reject(reasonSize, "read %d bytes", len(data))
	}
	return nil
}

// isGenericType reports whether a declared Content-Type says nothing useful
// about the body, in which case the bytes are sniffed instead.
func isGenericType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	switch strings.ToLower(mediaType) {
	case "", "application/octet-stream", "binary/octet-stream", "application/binary":
		return true
	}
	return false
}
