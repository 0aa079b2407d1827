package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetch     FetchConfig
	Extract   ExtractConfig
	Health    HealthConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 10

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// FetchConfig controls the retry/escalation fetch loop.
type FetchConfig struct {
	// MaxAttempts is the per-engine retry budget for transient failures.
	MaxAttempts int // default: 3

	// BaseDelay is the initial backoff delay; it doubles per retry.
	BaseDelay time.Duration // default: 2s

	// DefaultTimeout is the per-request fetch budget.
	DefaultTimeout time.Duration // default: 30s

	// MaxTimeout is the maximum timeout a client may request.
	MaxTimeout time.Duration // default: 120s

	// HostRPS is the sustained polite request rate per marketplace host.
	HostRPS float64 // default: 1

	// BreakerCooldown is how long a tripped per-host breaker stays open.
	BreakerCooldown time.Duration // default: 5m

	// EngineMode selects the fetch strategy: "auto" escalates from HTTP to
	// browser, "http" and "browser" pin a single strategy.
	EngineMode string // default: "auto"

	// EngineMemoryTTL is how long a per-host engine preference is kept.
	EngineMemoryTTL time.Duration // default: 24h

	// Proxy is the paid fetch/proxy service endpoint. Assembled from
	// TRAWL_PROXY and TRAWL_PROXY_TOKEN; the token is never hardcoded.
	Proxy string
}

// ExtractConfig controls extraction behavior.
type ExtractConfig struct {
	// ProfilePath points at the selector profile JSON document. When empty
	// or unreadable the embedded default profile is used.
	ProfilePath string

	// MaxProducts caps how many records one extraction pass may return
	// before caller limits apply.
	MaxProducts int // default: 20

	// SyntheticFallback enables the clearly-tagged placeholder records
	// returned when a marketplace blocks us. Off by default on purpose:
	// fabricated data must be opted into, never silently substituted.
	SyntheticFallback bool // default: false
}

// HealthConfig controls the selector health monitor.
type HealthConfig struct {
	// Enabled toggles the periodic probe.
	Enabled bool // default: true

	// ProbeQuery is the known-stable search used to measure yield.
	ProbeQuery string // default: "laptop"

	// Interval between probes.
	Interval time.Duration // default: 6h

	// DegradedThreshold is the yield ratio below which health degrades.
	DegradedThreshold float64 // default: 0.5

	// WebhookURL, when set, receives signed health reports.
	WebhookURL string

	// WebhookSecret signs report deliveries (HMAC-SHA256).
	WebhookSecret string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the API-layer result cache. The extraction engine
// itself is stateless; this cache lives entirely at the HTTP edge.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 1000

	// TTL is how long a cached result stays servable.
	TTL time.Duration // default: 10m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("TRAWL_HOST", "0.0.0.0"),
			Port: envIntOr("TRAWL_PORT", 8080),
			Mode: envOr("TRAWL_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("TRAWL_HEADLESS", true),
			MaxPages:   envIntOr("TRAWL_MAX_PAGES", 10),
			NoSandbox:  envBoolOr("TRAWL_NO_SANDBOX", false),
			BrowserBin: os.Getenv("TRAWL_BROWSER_BIN"),
		},
		Fetch: FetchConfig{
			MaxAttempts:     envIntOr("TRAWL_FETCH_ATTEMPTS", 3),
			BaseDelay:       envDurationOr("TRAWL_FETCH_BASE_DELAY", 2*time.Second),
			DefaultTimeout:  envDurationOr("TRAWL_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:      envDurationOr("TRAWL_MAX_TIMEOUT", 120*time.Second),
			HostRPS:         envFloatOr("TRAWL_HOST_RPS", 1.0),
			BreakerCooldown: envDurationOr("TRAWL_BREAKER_COOLDOWN", 5*time.Minute),
			EngineMode:      envOr("TRAWL_ENGINE_MODE", "auto"),
			EngineMemoryTTL: envDurationOr("TRAWL_ENGINE_MEMORY_TTL", 24*time.Hour),
			Proxy:           proxyFromEnv(),
		},
		Extract: ExtractConfig{
			ProfilePath:       os.Getenv("TRAWL_SELECTOR_PROFILE"),
			MaxProducts:       envIntOr("TRAWL_MAX_PRODUCTS", 20),
			SyntheticFallback: envBoolOr("TRAWL_SYNTHETIC_FALLBACK", false),
		},
		Health: HealthConfig{
			Enabled:           envBoolOr("TRAWL_HEALTH_ENABLED", true),
			ProbeQuery:        envOr("TRAWL_HEALTH_QUERY", "laptop"),
			Interval:          envDurationOr("TRAWL_HEALTH_INTERVAL", 6*time.Hour),
			DegradedThreshold: envFloatOr("TRAWL_HEALTH_THRESHOLD", 0.5),
			WebhookURL:        os.Getenv("TRAWL_HEALTH_WEBHOOK"),
			WebhookSecret:     os.Getenv("TRAWL_HEALTH_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("TRAWL_AUTH_ENABLED", true),
			APIKeys: envSliceOr("TRAWL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("TRAWL_RATE_RPS", 5.0),
			Burst:             envIntOr("TRAWL_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("TRAWL_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("TRAWL_CACHE_TTL", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("TRAWL_LOG_LEVEL", "info"),
			Format: envOr("TRAWL_LOG_FORMAT", "json"),
		},
	}
}

// proxyFromEnv assembles the proxy endpoint. TRAWL_PROXY may carry the full
// URL; TRAWL_PROXY_TOKEN, when set, is injected as the username so paid
// fetch services receive their credential without it living in the URL
// configuration itself.
func proxyFromEnv() string {
	raw := os.Getenv("TRAWL_PROXY")
	if raw == "" {
		return ""
	}
	token := os.Getenv("TRAWL_PROXY_TOKEN")
	if token == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = url.User(token)
	return u.String()
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
