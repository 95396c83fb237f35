package resolver

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholder(t *testing.T) {
	base := "https://placehold.co/400x400/png"

	tests := []struct {
		name   string
		item   string
		maxLen int
		want   string
	}{
		{"short", "Simit", 20, base + "?text=Simit"},
		{"escaped", "Kaşar Peyniri", 20, base + "?text=" + url.QueryEscape("Kaşar Peyniri")},
		{"truncated by rune", "Çılbır with garlic yogurt", 6, base + "?text=" + url.QueryEscape("Çılbır")},
		{"trailing space after cut", "Acma Poğaça", 5, base + "?text=Acma"},
		{"no limit", "Menemen", 0, base + "?text=Menemen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Placeholder(base, tt.item, tt.maxLen))
		})
	}
}

func TestPlaceholder_DefaultLengthCap(t *testing.T) {
	got := Placeholder("https://placehold.co/400x400/png", "Traditional Turkish Breakfast Platter", 20)

	u, err := url.Parse(got)
	assert.NoError(t, err)
	assert.Equal(t, "Traditional Turkish", u.Query().Get("text"))
}

func TestProxyRewriter(t *testing.T) {
	p := NewProxyRewriter("https://api.example.com/api/v1/relay")

	trusted := Resolution{URL: "https://upload.wikimedia.org/a.jpg", Tier: TierTrusted}
	assert.Equal(t, trusted.URL, p.Rewrite(trusted))

	probed := Resolution{URL: "https://cdn.example.org/a b.jpg?x=1&y=2", Tier: TierHead}
	got := p.Rewrite(probed)
	assert.Equal(t, "https://api.example.com/api/v1/relay?url="+url.QueryEscape(probed.URL), got)

	u, err := url.Parse(got)
	assert.NoError(t, err)
	assert.Equal(t, probed.URL, u.Query().Get("url"))

	thumb := Resolution{URL: "https://encrypted-tbn0.gstatic.com/images?q=tbn:abc", Tier: TierThumbnail}
	assert.Contains(t, p.Rewrite(thumb), "/relay?url=")
}

func TestProxyRewriter_Disabled(t *testing.T) {
	p := NewProxyRewriter("")
	res := Resolution{URL: "https://cdn.example.org/a.jpg", Tier: TierFetch}
	assert.Equal(t, res.URL, p.Rewrite(res))
}
