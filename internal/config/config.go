// Package config handles application configuration using Viper.
// Viper supports YAML files, environment variables, and defaults, merged in priority order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration struct. Nested structs organize related settings.
// `mapstructure` tags tell Viper how to map YAML/env keys to struct fields.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Auth        AuthConfig        `mapstructure:"auth"`
	CORS        CORSConfig        `mapstructure:"cors"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Generation  GenerationConfig  `mapstructure:"generation"`
	Search      SearchConfig      `mapstructure:"search"`
	Probe       ProbeConfig       `mapstructure:"probe"`
	Relay       RelayConfig       `mapstructure:"relay"`
	Placeholder PlaceholderConfig `mapstructure:"placeholder"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// RequestTimeout is the overall budget for a single request, including
	// generation and every per-item search and probe.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

type AuthConfig struct {
	APIKeys   []string `mapstructure:"api_keys"`
	AdminKeys []string `mapstructure:"admin_keys"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LLMConfig struct {
	// ProviderOrder controls which LLM providers are used and in what order.
	// First provider is primary, rest are fallbacks. Example: ["gemini", "anthropic"]
	ProviderOrder []string       `mapstructure:"provider_order"`
	Gemini        ProviderConfig `mapstructure:"gemini"`
	Anthropic     ProviderConfig `mapstructure:"anthropic"`
	OpenAI        ProviderConfig `mapstructure:"openai"`
	RatePerMinute int            `mapstructure:"rate_per_minute"`
	Timeout       time.Duration  `mapstructure:"timeout"`
}

type ProviderConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GenerationConfig struct {
	DefaultCount int `mapstructure:"default_count"`
	MaxCount     int `mapstructure:"max_count"`
}

type SearchConfig struct {
	Google     GoogleSearchConfig `mapstructure:"google"`
	Timeout    time.Duration      `mapstructure:"timeout"`
	Stagger    time.Duration      `mapstructure:"stagger"`
	MaxResults int                `mapstructure:"max_results"`
}

type GoogleSearchConfig struct {
	APIKey string `mapstructure:"api_key"`
	CX     string `mapstructure:"cx"`
}

type ProbeConfig struct {
	HeadTimeout   time.Duration `mapstructure:"head_timeout"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	MinBytes      int64         `mapstructure:"min_bytes"`
	MaxFetchBytes int64         `mapstructure:"max_fetch_bytes"`
	UserAgent     string        `mapstructure:"user_agent"`
}

type RelayConfig struct {
	// BaseURL is the public URL of the relay endpoint. Resolved URLs that are
	// not from a trusted host are rewritten to BaseURL?url=<original>.
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// Only bodies up to CacheMaxEntryBytes are cached, and at most
	// CacheMaxItems of them. Larger or overflow images are relayed uncached.
	CacheMaxEntryBytes int64 `mapstructure:"cache_max_entry_bytes"`
	CacheMaxItems      int   `mapstructure:"cache_max_items"`
	// FallbackMode is "svg" (inline placeholder) or "redirect" (302 to FallbackURL).
	FallbackMode      string `mapstructure:"fallback_mode"`
	FallbackURL       string `mapstructure:"fallback_url"`
	AllowPrivateHosts bool   `mapstructure:"allow_private_hosts"`
}

type PlaceholderConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	MaxNameLength int    `mapstructure:"max_name_length"`
}

type PolicyConfig struct {
	// Path points at a YAML domain policy. Empty means built-in defaults.
	Path string `mapstructure:"path"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 540*time.Second)
	v.SetDefault("storage.database_path", "./storage/itemgen.db")
	// Empty defaults register the keys so AutomaticEnv can fill them during Unmarshal.
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.admin_keys", []string{})
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("search.google.api_key", "")
	v.SetDefault("search.google.cx", "")
	v.SetDefault("policy.path", "")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("llm.provider_order", []string{"gemini"})
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.openai.model", "gpt-4o")
	v.SetDefault("llm.rate_per_minute", 30)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("generation.default_count", 32)
	v.SetDefault("generation.max_count", 100)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.stagger", 150*time.Millisecond)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("probe.head_timeout", 3*time.Second)
	v.SetDefault("probe.fetch_timeout", 4*time.Second)
	v.SetDefault("probe.min_bytes", 5000)
	v.SetDefault("probe.max_fetch_bytes", 50000)
	v.SetDefault("probe.user_agent", "Mozilla/5.0 (compatible; itemgen/1.0)")
	v.SetDefault("relay.base_url", "http://localhost:8080/api/v1/relay")
	v.SetDefault("relay.timeout", 10*time.Second)
	v.SetDefault("relay.max_bytes", 10<<20)
	v.SetDefault("relay.cache_ttl", 30*time.Minute)
	v.SetDefault("relay.cache_max_entry_bytes", 512<<10)
	v.SetDefault("relay.cache_max_items", 512)
	v.SetDefault("relay.fallback_mode", "svg")
	v.SetDefault("relay.fallback_url", "https://placehold.co/400x400/png?text=No+Image")
	v.SetDefault("relay.allow_private_hosts", false)
	v.SetDefault("placeholder.base_url", "https://placehold.co/400x400/png")
	v.SetDefault("placeholder.max_name_length", 20)
	v.SetDefault("rate_limit.requests_per_second", 2)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("log.level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Read config file (ignore "not found" — defaults + env are enough)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// ITEMGEN_ prefix + nested keys: ITEMGEN_SERVER_PORT=9090 → server.port=9090
	v.SetEnvPrefix("ITEMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Address returns the listen address string like "0.0.0.0:8080".
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
