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
	Remote    RemoteConfig
	Site      SiteConfig
	Crawl     CrawlConfig
	Retry     RetryConfig
	Scrape    ScrapeConfig
	Drift     DriftConfig
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

// BrowserConfig controls the local Rod browser backend.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages bounds concurrent tabs (each holds significant memory).
	MaxPages int // default: 5

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string

	// Stealth injects anti-automation-detection JS before navigation.
	Stealth bool // default: false
}

// RemoteConfig controls the remote automation backend (MCP).
type RemoteConfig struct {
	// Transport is "stdio" (spawn Command) or "http" (connect to URL).
	Transport string // default: "stdio"

	// Command and Args spawn the automation agent for stdio transport.
	// The agent must expose the navigate / wait_for_selector / click /
	// evaluate / close tool set.
	Command string
	Args    []string

	// URL is the streamable-HTTP endpoint for http transport.
	URL string

	// CallTimeout is the deadline for a single tool call.
	CallTimeout time.Duration // default: 60s
}

// SiteConfig names the brokerage site pages the pipeline drives.
type SiteConfig struct {
	// BaseURL is the site origin, used to absolutize relative links.
	BaseURL string // default: "https://onereal.com"

	// ListingURL is the first roster search page.
	ListingURL string // default: BaseURL + "/search-agent"

	// ProfileURLTemplate builds a profile page URL from an agent ID.
	ProfileURLTemplate string // default: BaseURL + "/profile/%s"

	// VerifyURL is the roster page scraped by the verify operation when
	// no profile ID is supplied.
	VerifyURL string // default: ListingURL
}

// CrawlConfig controls pagination and per-step timeouts.
type CrawlConfig struct {
	// MaxPages is the safety cap on listing pages per crawl.
	MaxPages int // default: 25

	// StallPages is how many consecutive pages may yield zero new IDs
	// before pagination stops (guards a broken "next" control).
	StallPages int // default: 2

	// AdvanceMode is "url" (next-page URL template) or "click"
	// (a "load more" control).
	AdvanceMode string // default: "url"

	// PageURLTemplate builds page N's URL for url mode ("%d" = page number).
	PageURLTemplate string // default: ListingURL + "?page=%d"

	// LoadMoreSelector is the click target for click mode.
	LoadMoreSelector string // default: "button.load-more"

	// NavTimeout bounds a single page navigation.
	NavTimeout time.Duration // default: 30s

	// SelectorTimeout bounds a single wait-for-selector step.
	SelectorTimeout time.Duration // default: 15s
}

// RetryConfig controls the orchestrator's backoff policy for
// retryable failures.
type RetryConfig struct {
	MaxAttempts int           // default: 3
	BaseDelay   time.Duration // default: 500ms
	MaxDelay    time.Duration // default: 8s
}

// ScrapeConfig controls the full-scrape fan-out and preflight probing.
type ScrapeConfig struct {
	// ProfileConcurrency bounds concurrent profile fetches during a
	// full scrape. Must not exceed the backend pool size.
	ProfileConcurrency int // default: 3

	// Preflight enables the cheap HTTP probe before listing crawls,
	// failing fast on hard 4xx/5xx without spending a browser page.
	Preflight bool // default: true

	// PreflightTimeout bounds the probe request.
	PreflightTimeout time.Duration // default: 10s
}

// DriftConfig controls DOM-structure drift detection between crawls.
type DriftConfig struct {
	Enabled bool // default: true

	// Threshold is the Hamming distance above which a page's DOM shape
	// is reported as drifted from the previous crawl.
	Threshold int // default: 12
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// CacheConfig controls the HTTP-layer response cache.
type CacheConfig struct {
	MaxEntries int // default: 256
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	base := envOr("ROSTER_SITE_BASE", "https://onereal.com")
	listing := envOr("ROSTER_SITE_LISTING", base+"/search-agent")

	return &Config{
		Server: ServerConfig{
			Host: envOr("ROSTER_HOST", "0.0.0.0"),
			Port: envIntOr("ROSTER_PORT", 8080),
			Mode: envOr("ROSTER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("ROSTER_HEADLESS", true),
			MaxPages:     envIntOr("ROSTER_MAX_PAGES", 5),
			NoSandbox:    envBoolOr("ROSTER_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("ROSTER_BROWSER_BIN"),
			DefaultProxy: os.Getenv("ROSTER_PROXY"),
			Stealth:      envBoolOr("ROSTER_STEALTH", false),
		},
		Remote: RemoteConfig{
			Transport:   envOr("ROSTER_MCP_TRANSPORT", "stdio"),
			Command:     envOr("ROSTER_MCP_COMMAND", "roster-browser-agent"),
			Args:        envSliceOr("ROSTER_MCP_ARGS", []string{"--headless"}),
			URL:         os.Getenv("ROSTER_MCP_URL"),
			CallTimeout: envDurationOr("ROSTER_MCP_CALL_TIMEOUT", 60*time.Second),
		},
		Site: SiteConfig{
			BaseURL:            base,
			ListingURL:         listing,
			ProfileURLTemplate: envOr("ROSTER_SITE_PROFILE", base+"/profile/%s"),
			VerifyURL:          envOr("ROSTER_SITE_VERIFY", listing),
		},
		Crawl: CrawlConfig{
			MaxPages:         envIntOr("ROSTER_CRAWL_MAX_PAGES", 25),
			StallPages:       envIntOr("ROSTER_CRAWL_STALL_PAGES", 2),
			AdvanceMode:      envOr("ROSTER_CRAWL_ADVANCE", "url"),
			PageURLTemplate:  envOr("ROSTER_CRAWL_PAGE_URL", listing+"?page=%d"),
			LoadMoreSelector: envOr("ROSTER_CRAWL_LOAD_MORE", "button.load-more"),
			NavTimeout:       envDurationOr("ROSTER_NAV_TIMEOUT", 30*time.Second),
			SelectorTimeout:  envDurationOr("ROSTER_SELECTOR_TIMEOUT", 15*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: envIntOr("ROSTER_RETRY_ATTEMPTS", 3),
			BaseDelay:   envDurationOr("ROSTER_RETRY_BASE", 500*time.Millisecond),
			MaxDelay:    envDurationOr("ROSTER_RETRY_MAX", 8*time.Second),
		},
		Scrape: ScrapeConfig{
			ProfileConcurrency: envIntOr("ROSTER_PROFILE_CONCURRENCY", 3),
			Preflight:          envBoolOr("ROSTER_PREFLIGHT", true),
			PreflightTimeout:   envDurationOr("ROSTER_PREFLIGHT_TIMEOUT", 10*time.Second),
		},
		Drift: DriftConfig{
			Enabled:   envBoolOr("ROSTER_DRIFT_ENABLED", true),
			Threshold: envIntOr("ROSTER_DRIFT_THRESHOLD", 12),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("ROSTER_AUTH_ENABLED", false),
			APIKeys: envSliceOr("ROSTER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("ROSTER_RATE_RPS", 5.0),
			Burst:             envIntOr("ROSTER_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("ROSTER_CACHE_MAX_ENTRIES", 256),
		},
		Log: LogConfig{
			Level:  envOr("ROSTER_LOG_LEVEL", "info"),
			Format: envOr("ROSTER_LOG_FORMAT", "json"),
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
