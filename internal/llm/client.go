// Package llm provides a provider-agnostic interface over generative text
// models. Each provider takes a prompt and returns the model's raw text;
// parsing the text is the caller's job.
package llm

import "context"

// Client is the interface for LLM providers. Gemini, Anthropic and OpenAI
// implement it, which lets the generator fall back from one to the next.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	ProviderName() string
	ModelName() string
}
