// Package config loads storegate's runtime configuration from environment
// variables (the required operational secrets, spec §6.6) and an optional
// YAML file for the tunables the spec leaves to deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// Environment-sourced fields (spec §6.6).
	ShopifyAppSecret    string `yaml:"-"` // SHOPIFY_APP_SECRET
	ShopDomain          string `yaml:"shop_domain"`
	LLMAPIKey           string `yaml:"-"` // LLM_API_KEY
	AllowedOrigin       string `yaml:"allowed_origin"`
	DevBypass           bool   `yaml:"dev_bypass"`
	InternalKey         string `yaml:"-"` // INTERNAL_KEY
	CustomerTokenSecret string `yaml:"-"` // CUSTOMER_TOKEN_SECRET, verifies customer_token (spec §4.5, §9 Open Question (b))

	Server     ServerConfig     `yaml:"server"`
	Admission  AdmissionConfig  `yaml:"admission"`
	ToolClient ToolClientConfig `yaml:"tool_client"`
	LLM        LLMConfig        `yaml:"llm"`
	Session    SessionConfig    `yaml:"session"`
	Greeting   GreetingConfig   `yaml:"greeting"`
	CORS       CORSConfig       `yaml:"cors"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AdmissionConfig controls the per-shop sliding-window admission controller (C2).
type AdmissionConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// ToolClientConfig holds the C3 tool-protocol client settings. DefaultFirst
// and DefaultCtx are passed to toolclient.WithCatalogDefaults; Timeout is
// not read, and the client always uses toolclient.Timeout.
type ToolClientConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	DefaultFirst int           `yaml:"default_first"`
	DefaultCtx   string        `yaml:"default_context"`
}

// LLMConfig binds the model/sampling constants (spec §4.6: "a single
// configuration constant; not runtime-tunable at the request boundary").
type LLMConfig struct {
	Provider     string  `yaml:"provider"` // "openai" | "anthropic"
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	TopP         float64 `yaml:"top_p"`
	IncludeUsage bool    `yaml:"include_usage"`
}

// SessionConfig holds the session settings (spec §3). Only IdleEviction is
// read, by the eviction sweep; the actor's history and product-view caps,
// rate limit and replay TTL are the constants in internal/session, and
// these fields do not change them.
type SessionConfig struct {
	HistoryCap     int           `yaml:"history_cap"`
	ProductViewCap int           `yaml:"product_view_cap"`
	RateLimit      int           `yaml:"rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window"`
	ReplayTTL      time.Duration `yaml:"replay_ttl"`
	IdleEviction   time.Duration `yaml:"idle_eviction"`
}

// GreetingConfig controls the short-greeting prefilter (spec §4.5 step 3).
type GreetingConfig struct {
	MaxLength int      `yaml:"max_length"`
	Phrases   []string `yaml:"phrases"`
	Reply     string   `yaml:"reply"`
}

// CORSConfig controls the allow-list surfaced by the router (spec §4.7).
type CORSConfig struct {
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// Default returns the built-in defaults, overridden by Load.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Admission: AdmissionConfig{
			Limit:  60,
			Window: 60 * time.Second,
		},
		ToolClient: ToolClientConfig{
			Timeout:      5 * time.Second,
			DefaultFirst: 5,
			DefaultCtx:   "biżuteria",
		},
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o",
			Temperature:  0.7,
			MaxTokens:    1024,
			TopP:         1,
			IncludeUsage: true,
		},
		Session: SessionConfig{
			HistoryCap:     200,
			ProductViewCap: 10,
			RateLimit:      20,
			RateWindow:     60 * time.Second,
			ReplayTTL:      10 * time.Minute,
			IdleEviction:   30 * time.Minute,
		},
		Greeting: GreetingConfig{
			MaxLength: 15,
			Phrases:   []string{"cześć", "hej", "siema", "hello", "hi", "witam"},
			Reply:     "Cześć! W czym mogę dziś pomóc?",
		},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Shopify-Hmac-Sha256", "X-Internal-Key"},
		},
		AllowedOrigin: "*",
	}
}

// Load builds a Config from an optional YAML file and environment
// variables. Environment variables always win over file values, matching
// the layered precedence of the teacher's loader.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadYAMLInto(cfg, path); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SHOPIFY_APP_SECRET"); v != "" {
		cfg.ShopifyAppSecret = v
	}
	if v := os.Getenv("SHOP_DOMAIN"); v != "" {
		cfg.ShopDomain = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("ALLOWED_ORIGIN"); v != "" {
		cfg.AllowedOrigin = v
	}
	if v := os.Getenv("DEV_BYPASS"); v != "" {
		cfg.DevBypass = isTruthy(v)
	}
	if v := os.Getenv("INTERNAL_KEY"); v != "" {
		cfg.InternalKey = v
	}
	if v := os.Getenv("CUSTOMER_TOKEN_SECRET"); v != "" {
		cfg.CustomerTokenSecret = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
}

func isTruthy(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v != "" && strings.ToLower(v) != "false" && v != "0"
	}
	return b
}

// Validate rejects configurations that cannot serve the HMAC-protected
// chat route. DevBypass relaxes the shared-secret requirement for the
// dev /chat route only; an unconfigured LLM still surfaces as
// event: error at request time rather than failing startup (spec §4.5).
func (c *Config) Validate() error {
	if c.ShopDomain == "" {
		return fmt.Errorf("SHOP_DOMAIN is required")
	}
	if !c.DevBypass && c.ShopifyAppSecret == "" {
		return fmt.Errorf("SHOPIFY_APP_SECRET is required unless DEV_BYPASS is set")
	}
	return nil
}
