package resolver

import "net/url"

// ProxyRewriter routes untrusted image URLs through the relay endpoint so
// clients never hotlink hosts that block cross-origin loads.
type ProxyRewriter struct {
	relayBaseURL string
}

// NewProxyRewriter creates a rewriter. An empty relayBaseURL disables
// rewriting.
func NewProxyRewriter(relayBaseURL string) *ProxyRewriter {
	return &ProxyRewriter{relayBaseURL: relayBaseURL}
}

// Rewrite returns the URL clients should use for res.
func (p *ProxyRewriter) Rewrite(res Resolution) string {
	if res.Trusted() || p.relayBaseURL == "" || res.URL == "" {
		return res.URL
	}
	return p.relayBaseURL + "?url=" + url.QueryEscape(res.URL)
}
