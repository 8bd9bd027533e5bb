package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Acquire   AcquireConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 3001
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the shared browser session.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless. The default is
	// false on purpose: a human must be able to solve a challenge in the
	// visible window.
	Headless bool // default: false

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the proxy URL used for all navigation.
	DefaultProxy string

	// BlockedResourceTypes lists resource types aborted on every page
	// context. default: ["Media"]
	BlockedResourceTypes []string
}

// AcquireConfig controls the acquisition state machine.
type AcquireConfig struct {
	// NavigationTimeout is the hard budget for one navigation to settle.
	NavigationTimeout time.Duration // default: 45s

	// ChallengeTimeout is how long a detected challenge may stay unsolved
	// before the acquisition fails.
	ChallengeTimeout time.Duration // default: 120s

	// ChallengePollInterval is how often the document is re-read while a
	// challenge is pending.
	ChallengePollInterval time.Duration // default: 2s

	// ContentSelectorTimeout is the soft wait for a price-bearing element.
	// Expiry is logged, not fatal.
	ContentSelectorTimeout time.Duration // default: 15s

	// SettleDelay is the fixed pause before extraction, for late-arriving
	// dynamic content.
	SettleDelay time.Duration // default: 2s

	// MaxConcurrent bounds in-flight acquisitions against the shared
	// browser session.
	MaxConcurrent int64 // default: 3

	// HTTPFirst enables the Chrome-TLS-fingerprint HTTP fast path that
	// skips the browser when the page comes back challenge-free.
	HTTPFirst bool // default: false
}

// AuthConfig controls API key authentication. Disabled by default since the
// service normally runs next to the comparison app on localhost.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per client.
	Burst int // default: 5
}

// CacheConfig controls the record cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached records.
	MaxEntries int // default: 500

	// MaxAge is how long a cached record stays servable. 0 disables caching.
	MaxAge time.Duration // default: 10m
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("IPLUS_HOST", "127.0.0.1"),
			Port: envIntOr("IPLUS_PORT", 3001),
			Mode: envOr("IPLUS_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("IPLUS_HEADLESS", false),
			NoSandbox:            envBoolOr("IPLUS_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("IPLUS_BROWSER_BIN"),
			DefaultProxy:         os.Getenv("IPLUS_PROXY"),
			BlockedResourceTypes: envSliceOr("IPLUS_BLOCKED_RESOURCES", []string{"Media"}),
		},
		Acquire: AcquireConfig{
			NavigationTimeout:      envDurationOr("IPLUS_NAV_TIMEOUT", 45*time.Second),
			ChallengeTimeout:       envDurationOr("IPLUS_CHALLENGE_TIMEOUT", 120*time.Second),
			ChallengePollInterval:  envDurationOr("IPLUS_CHALLENGE_POLL_INTERVAL", 2*time.Second),
			ContentSelectorTimeout: envDurationOr("IPLUS_CONTENT_TIMEOUT", 15*time.Second),
			SettleDelay:            envDurationOr("IPLUS_SETTLE_DELAY", 2*time.Second),
			MaxConcurrent:          int64(envIntOr("IPLUS_MAX_CONCURRENT", 3)),
			HTTPFirst:              envBoolOr("IPLUS_HTTP_FIRST", false),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("IPLUS_AUTH_ENABLED", false),
			APIKeys: envSliceOr("IPLUS_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("IPLUS_RATE_RPS", 1.0),
			Burst:             envIntOr("IPLUS_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("IPLUS_CACHE_MAX_ENTRIES", 500),
			MaxAge:     envDurationOr("IPLUS_CACHE_MAX_AGE", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("IPLUS_LOG_LEVEL", "info"),
			Format: envOr("IPLUS_LOG_FORMAT", "text"),
		},
	}
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
