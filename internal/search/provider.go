// Package search finds ranked image results for generated candidates and
// fans the per-candidate work out across goroutines.
package search

import (
	"context"
	"errors"

	"github.com/fleveque/itemgen-service/internal/model"
)

// ErrNoResults is returned when a search succeeds but finds nothing.
var ErrNoResults = errors.New("search returned no results")

// Provider is an image search backend. Implementations must return items in
// the backend's relevance order.
type Provider interface {
	// Search returns up to num ranked image results for query.
	Search(ctx context.Context, query string, num int) ([]model.SearchItem, error)

	// Name returns a human-readable name for the provider.
	Name() string
}
