// Package policy holds the static domain policy consulted by the image resolver:
// which hosts are trusted to serve direct images, which hosts are never worth
// probing, and which path extensions count as image files.
package policy

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// DomainPolicy is loaded once at startup and shared read-only by all requests.
// Host entries are matched as substrings of the URL's hostname, so
// "wikimedia.org" covers "upload.wikimedia.org".
type DomainPolicy struct {
	Trusted    []string `yaml:"trusted"`
	Blacklist  []string `yaml:"blacklist"`
	Extensions []string `yaml:"extensions"`
}

// Default returns the built-in policy.
func Default() *DomainPolicy {
	return &DomainPolicy{
		Trusted: []string{
			"upload.wikimedia.org",
			"images.unsplash.com",
			"i.imgur.com",
			"image.tmdb.org",
			"m.media-amazon.com",
			"i.ytimg.com",
			"pbs.twimg.com",
			"cdn.dsmcdn.com",
			"images.pexels.com",
			"static.wikia.nocookie.net",
		},
		Blacklist: []string{
			"shutterstock.com",
			"istockphoto.com",
			"gettyimages",
			"alamy.com",
			"dreamstime.com",
			"123rf.com",
			"depositphotos.com",
			"stock.adobe.com",
			"freepik.com",
			"vecteezy.com",
			"pinimg.com",
			"pinterest.",
			"instagram.com",
			"cdninstagram.com",
			"fbcdn.net",
			"fbsbx.com",
			"tiktok.com",
			"lookaside.",
		},
		Extensions: []string{".jpg", ".jpeg", ".png", ".webp", ".gif"},
	}
}

// Load reads a YAML policy from path. Sections missing from the file keep
// their built-in defaults.
func Load(path string) (*DomainPolicy, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var fromFile DomainPolicy
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}

	p := Default()
	if fromFile.Trusted != nil {
		p.Trusted = fromFile.Trusted
	}
	if fromFile.Blacklist != nil {
		p.Blacklist = fromFile.Blacklist
	}
	if fromFile.Extensions != nil {
		p.Extensions = fromFile.Extensions
	}
	p.normalize()
	return p, nil
}

func (p *DomainPolicy) normalize() {
	for i, e := range p.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		p.Extensions[i] = e
	}
}

// IsTrusted reports whether rawURL's host contains any trusted entry.
func (p *DomainPolicy) IsTrusted(rawURL string) bool {
	return matchHost(rawURL, p.Trusted)
}

// IsBlacklisted reports whether rawURL's host contains any blacklisted entry.
func (p *DomainPolicy) IsBlacklisted(rawURL string) bool {
	return matchHost(rawURL, p.Blacklist)
}

// HasImageExtension reports whether the URL path (query and fragment ignored)
// ends in one of the accepted extensions.
func (p *DomainPolicy) HasImageExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	for _, e := range p.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Marshal renders the policy as YAML.
func (p *DomainPolicy) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

func matchHost(rawURL string, entries []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, entry := range entries {
		if entry != "" && strings.Contains(host, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}
