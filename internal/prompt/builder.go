// Package prompt assembles the instruction sent to the generative model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/fleveque/itemgen-service/internal/model"
)

// searchTermConventions maps an item category to the phrasing used for its
// image search term. Order is kept stable so the prompt is deterministic.
var searchTermConventions = []struct {
	category string
	pattern  string
	example  model.Candidate
}{
	{"food", "<item> food photo", model.Candidate{Name: "Menemen", SearchTerm: "menemen food photo"}},
	{"product", "<item> package product", model.Candidate{Name: "Ülker Çokoprens", SearchTerm: "Ülker Çokoprens package product"}},
	{"movie, series or game title", "<title> poster", model.Candidate{Name: "The Matrix", SearchTerm: "The Matrix 1999 poster"}},
	{"person", "<name> portrait photo", model.Candidate{Name: "Barış Manço", SearchTerm: "Barış Manço portrait photo"}},
	{"vehicle", "<make model> photo", model.Candidate{Name: "Tofaş Şahin", SearchTerm: "Tofaş Şahin photo"}},
}

// Build returns the full instruction for req. It has no side effects.
func Build(req model.GenerationRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Create a list of exactly %d items for the topic \"%s\".\n\n", req.Count, req.Topic)

	sb.WriteString("For every item return:\n")
	sb.WriteString("- \"name\": the display name of the item, short and recognizable.\n")
	sb.WriteString("- \"search_term\": the query that will be used to find a photo of the item in a web image search.\n\n")

	sb.WriteString("Search term rules:\n")
	sb.WriteString("- Be as specific and unambiguous as possible: include brand, year, model or full name when it helps.\n")
	sb.WriteString("- Never use a term that could match a different, better-known thing.\n")
	sb.WriteString("- Follow the convention for the item's category:\n")
	for _, c := range searchTermConventions {
		fmt.Fprintf(&sb, "  - %s: \"%s\"\n", c.category, c.pattern)
	}
	sb.WriteString("\n")

	sb.WriteString("Examples:\n")
	for _, c := range searchTermConventions {
		fmt.Fprintf(&sb, "  {\"name\": %q, \"search_term\": %q}\n", c.example.Name, c.example.SearchTerm)
	}
	sb.WriteString("\n")

	sb.WriteString("Output rules:\n")
	fmt.Fprintf(&sb, "1. Return exactly %d entries, no duplicates.\n", req.Count)
	sb.WriteString("2. Return ONLY a JSON array of objects with the keys \"name\" and \"search_term\".\n")
	sb.WriteString("3. No markdown, no code fences, no explanations, no text before or after the JSON.\n\n")

	sb.WriteString("Expected Output Format:\n")
	sb.WriteString("[{\"name\": \"...\", \"search_term\": \"...\"}]\n")

	if custom := strings.TrimSpace(req.CustomPrompt); custom != "" {
		sb.WriteString("\nAdditional instruction from the user (takes precedence over the rules above, except the output format):\n")
		sb.WriteString(custom)
		sb.WriteString("\n")
	}

	return sb.String()
}
