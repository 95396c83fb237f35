// Package service contains the core business logic of the generation
// pipeline. GenerateService turns a topic into a list of items with images:
//
//	1. Build the model prompt for the requested topic and count
//	2. Generate (name, search term) candidates with the LLM
//	3. Search and resolve an image for every candidate concurrently
//	4. Rewrite untrusted URLs through the relay, fill gaps with placeholders
//
// Only step 2 can fail the request. Every later failure degrades a single
// item to a placeholder.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/prompt"
	"github.com/fleveque/itemgen-service/internal/resolver"
	"github.com/fleveque/itemgen-service/internal/search"
	"github.com/fleveque/itemgen-service/internal/storage"
)

// defaultItemCount applies when neither the request nor the options set a count.
const defaultItemCount = 32

// ErrMissingTopic is returned when the request has no usable topic.
var ErrMissingTopic = errors.New("topic is required")

// CandidateGenerator produces candidates for a prompt. *generation.Generator
// satisfies it.
type CandidateGenerator interface {
	Generate(ctx context.Context, topic string, prompt string) ([]model.Candidate, error)
}

// ImageSearcher finds and resolves an image per candidate, in order.
// *search.Orchestrator satisfies it.
type ImageSearcher interface {
	Run(ctx context.Context, candidates []model.Candidate) []search.Outcome
}

// GenerateOptions are the count limits and placeholder settings.
type GenerateOptions struct {
	DefaultCount       int
	MaxCount           int
	PlaceholderBaseURL string
	MaxNameLength      int
}

// GenerateService is the main entry point for item generation.
type GenerateService struct {
	generator CandidateGenerator
	searcher  ImageSearcher
	rewriter  *resolver.ProxyRewriter
	opts      GenerateOptions
	runRepo   storage.RunRepository // nil disables run auditing
	logger    *zap.Logger
}

// NewGenerateService creates a service with every pipeline stage wired up.
func NewGenerateService(
	generator CandidateGenerator,
	searcher ImageSearcher,
	rewriter *resolver.ProxyRewriter,
	opts GenerateOptions,
	runRepo storage.RunRepository,
	logger *zap.Logger,
) *GenerateService {
	return &GenerateService{
		generator: generator,
		searcher:  searcher,
		rewriter:  rewriter,
		opts:      opts,
		runRepo:   runRepo,
		logger:    logger,
	}
}

// Generate runs the full pipeline. The returned error is ErrMissingTopic or
// a *generation.Error; in both cases no items are returned.
func (s *GenerateService) Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerateResponse, error) {
	start := time.Now()

	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return nil, ErrMissingTopic
	}
	req.Count = s.normalizeCount(req.Count)

	run := &model.GenerationRun{Topic: req.Topic, RequestedCount: req.Count}

	candidates, err := s.generator.Generate(ctx, req.Topic, prompt.Build(req))
	if err != nil {
		msg := err.Error()
		run.ErrorMessage = &msg
		s.saveRun(ctx, run, start)
		return nil, err
	}

	if len(candidates) > req.Count {
		s.logger.Debug("model returned extra items, trimming",
			zap.String("topic", req.Topic),
			zap.Int("requested", req.Count),
			zap.Int("returned", len(candidates)),
		)
		candidates = candidates[:req.Count]
	}

	outcomes := s.searcher.Run(ctx, candidates)

	items := make([]model.ResolvedItem, len(outcomes))
	placeholders := 0
	for i, out := range outcomes {
		imageURL := ""
		if out.Resolved {
			imageURL = s.rewriter.Rewrite(out.Resolution)
		}
		if imageURL == "" {
			imageURL = resolver.Placeholder(s.opts.PlaceholderBaseURL, out.Candidate.Name, s.opts.MaxNameLength)
			placeholders++
		}

		items[i] = model.ResolvedItem{
			ID:             uuid.NewString(),
			Name:           out.Candidate.Name,
			ImageURL:       imageURL,
			SelectionCount: 0,
		}
	}

	s.logger.Info("generation complete",
		zap.String("topic", req.Topic),
		zap.Int("items", len(items)),
		zap.Int("resolved", len(items)-placeholders),
		zap.Int("placeholders", placeholders),
		zap.Duration("duration", time.Since(start)),
	)

	run.Success = true
	run.ItemCount = len(items)
	run.ResolvedCount = len(items) - placeholders
	run.PlaceholderCount = placeholders
	s.saveRun(ctx, run, start)

	return &model.GenerateResponse{Success: true, Data: items}, nil
}

// normalizeCount applies the default for missing counts and the upper bound.
func (s *GenerateService) normalizeCount(count int) int {
	if count <= 0 {
		count = s.opts.DefaultCount
	}
	if count <= 0 {
		count = defaultItemCount
	}
	if s.opts.MaxCount > 0 && count > s.opts.MaxCount {
		count = s.opts.MaxCount
	}
	return count
}

// saveRun writes the audit row. Failures are logged, never returned: the
// caller's response doesn't depend on the audit log.
func (s *GenerateService) saveRun(ctx context.Context, run *model.GenerationRun, start time.Time) {
	if s.runRepo == nil {
		return
	}
	run.DurationMs = time.Since(start).Milliseconds()
	if err := s.runRepo.Create(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("saving generation run",
			zap.String("topic", run.Topic),
			zap.Error(err),
		)
	}
}
