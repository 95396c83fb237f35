// Package resolver picks a usable image URL from ranked search results.
//
// Resolution is a chain of independent tiers tried in order; the first tier
// that accepts a URL wins:
//
//	trusted   — first result on a trusted host, no network check
//	head      — HEAD probe of results with an image extension
//	fetch     — capped GET of the remaining results, content sniffed
//	thumbnail — the search provider's thumbnail, degraded but reliable
//
// When every tier declines, the caller substitutes a placeholder.
package resolver

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/config"
	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/policy"
)

// Tier names, also used as log fields.
const (
	TierTrusted   = "trusted"
	TierHead      = "head"
	TierFetch     = "fetch"
	TierThumbnail = "thumbnail"
)

// Tier is one strategy in the resolution chain. Resolve returns the accepted
// URL, or false to let the next tier try. Tiers never return errors: probe
// failures are a normal "not this one".
type Tier interface {
	Name() string
	Resolve(ctx context.Context, items []model.SearchItem) (string, bool)
}

// Resolution is the URL a tier accepted and which tier accepted it.
type Resolution struct {
	URL  string
	Tier string
}

// Trusted reports whether the URL came from a trusted host and may be used
// without going through the relay.
func (r Resolution) Trusted() bool {
	return r.Tier == TierTrusted
}

// Resolver runs tiers in order. It holds no per-request state and is safe
// for concurrent use.
type Resolver struct {
	tiers  []Tier
	logger *zap.Logger
}

// New creates a resolver from an explicit tier chain.
func New(logger *zap.Logger, tiers ...Tier) *Resolver {
	return &Resolver{tiers: tiers, logger: logger}
}

// NewDefault builds the standard trusted → head → fetch → thumbnail chain.
// One HTTP client is shared by both probe tiers; per-probe deadlines come
// from cfg, not from the client.
func NewDefault(pol *policy.DomainPolicy, cfg config.ProbeConfig, logger *zap.Logger) *Resolver {
	client := &http.Client{}

	return New(logger,
		NewTrustedTier(pol),
		NewHeadTier(pol, client, cfg, logger),
		NewFetchTier(pol, client, cfg, logger),
		NewThumbnailTier(logger),
	)
}

// Resolve returns the first URL any tier accepts for the named item.
// false means the caller should fall back to a placeholder. A done ctx only
// stops the probing tiers; trusted links and thumbnails still resolve.
func (r *Resolver) Resolve(ctx context.Context, name string, items []model.SearchItem) (Resolution, bool) {
	if len(items) == 0 {
		return Resolution{}, false
	}

	for _, tier := range r.tiers {
		if u, ok := tier.Resolve(ctx, items); ok {
			r.logger.Debug("image resolved",
				zap.String("name", name),
				zap.String("tier", tier.Name()),
				zap.String("url", u),
			)
			return Resolution{URL: u, Tier: tier.Name()}, true
		}
	}

	r.logger.Debug("no tier accepted any result",
		zap.String("name", name),
		zap.Int("results", len(items)),
	)
	return Resolution{}, false
}
