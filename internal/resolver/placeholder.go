package resolver

import (
	"net/url"
	"strings"
)

// Placeholder builds a generated-image URL that renders the item name as
// text. The name is cut to maxLen runes (0 means no limit) and query-escaped.
func Placeholder(baseURL, name string, maxLen int) string {
	text := strings.TrimSpace(name)
	if r := []rune(text); maxLen > 0 && len(r) > maxLen {
		text = strings.TrimSpace(string(r[:maxLen]))
	}
	return baseURL + "?text=" + url.QueryEscape(text)
}
