package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleveque/itemgen-service/internal/model"
)

// StripCodeFence removes a surrounding markdown code fence (``` or ```json)
// from raw model output. Text without a fence is only trimmed.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop the info string ("json", "JSON", ...) on the opening line.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseCandidates turns cleaned model output into candidates, preserving the
// model's order. Entries without a name are dropped and an empty search term
// falls back to the name.
func ParseCandidates(raw string) ([]model.Candidate, error) {
	cleaned := StripCodeFence(raw)

	var parsed []model.Candidate
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("parsing model output as JSON: %w (raw: %s)", err, truncate(cleaned, 200))
	}

	candidates := make([]model.Candidate, 0, len(parsed))
	for _, c := range parsed {
		c.Name = strings.TrimSpace(c.Name)
		c.SearchTerm = strings.TrimSpace(c.SearchTerm)
		if c.Name == "" {
			continue
		}
		if c.SearchTerm == "" {
			c.SearchTerm = c.Name
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("model output contained no items")
	}
	return candidates, nil
}

// truncate cuts s to n runes so model output never splits a UTF-8 sequence.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
