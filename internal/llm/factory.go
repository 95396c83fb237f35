package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fleveque/itemgen-service/internal/config"
)

// NewClients builds clients in cfg.ProviderOrder. Providers without an API
// key are skipped with a warning, so one config can list fallbacks that are
// only enabled where a key is present. An unknown provider name is an error.
func NewClients(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) ([]Client, error) {
	var clients []Client

	for _, name := range cfg.ProviderOrder {
		name = strings.ToLower(strings.TrimSpace(name))

		var (
			client Client
			err    error
			key    string
		)
		switch name {
		case "gemini":
			key = cfg.Gemini.APIKey
			if key != "" {
				client, err = NewGeminiClient(ctx, key, cfg.Gemini.Model)
			}
		case "anthropic":
			key = cfg.Anthropic.APIKey
			if key != "" {
				client = NewAnthropicClient(key, cfg.Anthropic.Model)
			}
		case "openai":
			key = cfg.OpenAI.APIKey
			if key != "" {
				client = NewOpenAIClient(key, cfg.OpenAI.Model)
			}
		default:
			return nil, fmt.Errorf("unknown LLM provider %q", name)
		}

		if err != nil {
			return nil, fmt.Errorf("creating %s client: %w", name, err)
		}
		if key == "" {
			logger.Warn("LLM provider has no API key, skipping", zap.String("provider", name))
			continue
		}

		logger.Info("LLM provider enabled",
			zap.String("provider", name),
			zap.String("model", client.ModelName()),
		)
		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM provider has an API key (order: %v)", cfg.ProviderOrder)
	}
	return clients, nil
}
