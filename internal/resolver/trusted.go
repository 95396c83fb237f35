package resolver

import (
	"context"

	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/policy"
)

// TrustedTier accepts the highest-ranked result on a trusted host without
// touching the network. It runs before any probe, so a trusted result at
// rank 3 beats an untrusted one at rank 1.
type TrustedTier struct {
	policy *policy.DomainPolicy
}

func NewTrustedTier(pol *policy.DomainPolicy) *TrustedTier {
	return &TrustedTier{policy: pol}
}

func (t *TrustedTier) Name() string { return TierTrusted }

func (t *TrustedTier) Resolve(_ context.Context, items []model.SearchItem) (string, bool) {
	for _, item := range items {
		if item.Link != "" && t.policy.IsTrusted(item.Link) {
			return item.Link, true
		}
	}
	return "", false
}
