// Package model defines the core data types for the item generation service.
// Struct tags (the `json:"..."` and `db:"..."` annotations) tell serialization
// libraries how to map fields.
package model

import "time"

// GenerationRequest is the body accepted by the generate endpoint.
// CustomPrompt is appended to the model instruction as an override.
type GenerationRequest struct {
	Topic        string `json:"topic"`
	Count        int    `json:"count,omitempty"`
	CustomPrompt string `json:"customPrompt,omitempty"`
}

// Candidate is one generated (name, search term) pair awaiting image resolution.
type Candidate struct {
	Name       string `json:"name"`
	SearchTerm string `json:"search_term"`
}

// SearchItem is one ranked image search hit. Slices of SearchItem keep the
// provider's relevance order; the resolver relies on it.
type SearchItem struct {
	Link        string
	Thumbnail   string
	Title       string
	Mime        string
	ContextLink string
	Width       int64
	Height      int64
	ByteSize    int64
}

// ResolvedItem is a ready-to-store entry. ImageURL is never empty: it holds a
// verified URL, a relay URL, or a generated placeholder.
type ResolvedItem struct {
	ID             string `json:"id"`
	Name           string `json:"isim"`
	ImageURL       string `json:"resimUrl"`
	SelectionCount int    `json:"secilmeSayisi"`
}

// GenerateResponse is the envelope returned by the generate endpoint.
type GenerateResponse struct {
	Success bool           `json:"success"`
	Data    []ResolvedItem `json:"data"`
}

// GenerationRun records the outcome of one generate request for auditing.
type GenerationRun struct {
	ID               int64     `db:"id" json:"id"`
	Topic            string    `db:"topic" json:"topic"`
	RequestedCount   int       `db:"requested_count" json:"requested_count"`
	ItemCount        int       `db:"item_count" json:"item_count"`
	ResolvedCount    int       `db:"resolved_count" json:"resolved_count"`
	PlaceholderCount int       `db:"placeholder_count" json:"placeholder_count"`
	Success          bool      `db:"success" json:"success"`
	ErrorMessage     *string   `db:"error_message" json:"error_message,omitempty"`
	DurationMs       int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// LLMCall tracks each call to an LLM provider for cost monitoring.
type LLMCall struct {
	ID         int64     `db:"id" json:"id"`
	Topic      string    `db:"topic" json:"topic"`
	Provider   string    `db:"provider" json:"provider"`
	Model      string    `db:"model" json:"model"`
	Success    bool      `db:"success" json:"success"`
	DurationMs *int64    `db:"duration_ms" json:"duration_ms,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
