package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/resolver"
)

// ImageResolver picks an image from ranked results. *resolver.Resolver
// satisfies it.
type ImageResolver interface {
	Resolve(ctx context.Context, name string, items []model.SearchItem) (resolver.Resolution, bool)
}

// Outcome is the per-candidate result of a run. Resolved is false when the
// search failed, found nothing, or no tier accepted a result; Err holds the
// search error in the first two cases.
type Outcome struct {
	Candidate  model.Candidate
	Resolution resolver.Resolution
	Resolved   bool
	Err        error
}

// Orchestrator runs one search plus resolution per candidate, concurrently,
// with staggered start times so the search backend isn't hit in a burst.
type Orchestrator struct {
	provider   Provider
	resolver   ImageResolver
	stagger    time.Duration
	timeout    time.Duration
	maxResults int
	logger     *zap.Logger
}

// NewOrchestrator creates an orchestrator. timeout bounds each search call;
// it does not cover resolution, which has its own probe deadlines.
func NewOrchestrator(
	provider Provider,
	res ImageResolver,
	stagger time.Duration,
	timeout time.Duration,
	maxResults int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		provider:   provider,
		resolver:   res,
		stagger:    stagger,
		timeout:    timeout,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Run returns one Outcome per candidate, in input order. A failing candidate
// never affects its siblings: tasks report through their own slot and the
// group itself never sees an error.
func (o *Orchestrator) Run(ctx context.Context, candidates []model.Candidate) []Outcome {
	outcomes := make([]Outcome, len(candidates))

	var g errgroup.Group
	for i, candidate := range candidates {
		g.Go(func() error {
			outcomes[i] = o.runOne(ctx, i, candidate)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) runOne(ctx context.Context, index int, candidate model.Candidate) Outcome {
	out := Outcome{Candidate: candidate}

	// Candidate i starts i × stagger after the batch.
	if delay := time.Duration(index) * o.stagger; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			out.Err = fmt.Errorf("waiting for search slot: %w", ctx.Err())
			o.logFailure(index, candidate, out.Err)
			return out
		}
	}

	items, err := o.search(ctx, candidate.SearchTerm)
	if err != nil {
		out.Err = err
		o.logFailure(index, candidate, err)
		return out
	}

	out.Resolution, out.Resolved = o.resolver.Resolve(ctx, candidate.Name, items)
	return out
}

func (o *Orchestrator) search(ctx context.Context, query string) ([]model.SearchItem, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	items, err := o.provider.Search(ctx, query, o.maxResults)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoResults
	}
	return items, nil
}

func (o *Orchestrator) logFailure(index int, candidate model.Candidate, err error) {
	fields := []zap.Field{
		zap.Int("index", index),
		zap.String("name", candidate.Name),
		zap.String("search_term", candidate.SearchTerm),
		zap.String("provider", o.provider.Name()),
	}
	if errors.Is(err, ErrNoResults) {
		o.logger.Info("search found no images", fields...)
		return
	}
	o.logger.Warn("search failed", append(fields, zap.Error(err))...)
}
