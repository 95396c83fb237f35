// Package generation turns a prompt into an ordered list of candidates by
// calling the configured LLM providers.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fleveque/itemgen-service/internal/llm"
	"github.com/fleveque/itemgen-service/internal/model"
	"github.com/fleveque/itemgen-service/internal/storage"
)

// Generator calls LLM providers in configured order. A provider counts as
// failed when its call errors, times out, or returns unparseable output; the
// next provider is tried only if one is configured.
type Generator struct {
	clients     []llm.Client
	limiter     *rate.Limiter
	timeout     time.Duration
	llmCallRepo storage.LLMCallRepository // nil disables call recording
	logger      *zap.Logger
}

// NewGenerator creates a generator. ratePerMinute <= 0 disables pacing.
func NewGenerator(
	clients []llm.Client,
	ratePerMinute int,
	timeout time.Duration,
	llmCallRepo storage.LLMCallRepository,
	logger *zap.Logger,
) *Generator {
	limit := rate.Inf
	if ratePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(ratePerMinute))
	}

	return &Generator{
		clients:     clients,
		limiter:     rate.NewLimiter(limit, 1),
		timeout:     timeout,
		llmCallRepo: llmCallRepo,
		logger:      logger,
	}
}

// Generate asks the model for candidates. topic is only used for call records.
// Every failure is returned as *Error.
func (g *Generator) Generate(ctx context.Context, topic string, prompt string) ([]model.Candidate, error) {
	if len(g.clients) == 0 {
		return nil, &Error{Err: errors.New("no LLM providers configured")}
	}

	var lastErr *Error
	for i, client := range g.clients {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &Error{Provider: client.ProviderName(), Err: fmt.Errorf("rate limit wait: %w", err)}
		}

		candidates, err := g.tryProvider(ctx, client, topic, prompt)
		if err == nil {
			g.logger.Info("generated candidates",
				zap.String("topic", topic),
				zap.String("provider", client.ProviderName()),
				zap.Int("count", len(candidates)),
			)
			return candidates, nil
		}

		lastErr = &Error{Provider: client.ProviderName(), Err: err}

		if i < len(g.clients)-1 {
			g.logger.Warn("LLM provider failed, trying next",
				zap.String("topic", topic),
				zap.String("provider", client.ProviderName()),
				zap.Error(err),
			)
		}
	}

	return nil, lastErr
}

func (g *Generator) tryProvider(ctx context.Context, client llm.Client, topic string, prompt string) ([]model.Candidate, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := client.Complete(ctx, prompt)
	duration := time.Since(start).Milliseconds()

	var candidates []model.Candidate
	if err == nil {
		candidates, err = ParseCandidates(raw)
	}

	g.recordCall(ctx, client, topic, err == nil, duration)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s: %w", g.timeout, err)
		}
		return nil, err
	}
	return candidates, nil
}

func (g *Generator) recordCall(ctx context.Context, client llm.Client, topic string, success bool, durationMs int64) {
	if g.llmCallRepo == nil {
		return
	}

	call := &model.LLMCall{
		Topic:      topic,
		Provider:   client.ProviderName(),
		Model:      client.ModelName(),
		Success:    success,
		DurationMs: &durationMs,
	}

	// The call context may already be past its deadline; the audit row should
	// still be written.
	if err := g.llmCallRepo.Create(context.WithoutCancel(ctx), call); err != nil {
		g.logger.Error("recording LLM call", zap.Error(err))
	}
}
