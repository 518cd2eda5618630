package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all application configuration.
type Config struct {
	// HTTP surface
	HTTPAddr         string        `koanf:"http_addr"`
	HTTPReadTimeout  time.Duration `koanf:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `koanf:"http_write_timeout"`
	TrustedProxies   []string      `koanf:"trusted_proxies"`

	// Site context and landing page
	SiteContextFile string `koanf:"site_context_file"`
	LandingPageFile string `koanf:"landing_page_file"`
	LandingFallback bool   `koanf:"landing_fallback"`

	// Text generation backend
	OpenAIAPIKey        string        `koanf:"openai_api_key"`
	OpenAIBaseURL       string        `koanf:"openai_base_url"`
	OpenAIModel         string        `koanf:"openai_model"`
	GenerationTimeout   time.Duration `koanf:"generation_timeout"`
	GenerationRPS       float64       `koanf:"generation_rps"`
	GenerationBurst     int           `koanf:"generation_burst"`
	GenMaxTokensMin     int           `koanf:"gen_max_tokens_min"`
	GenMaxTokensMax     int           `koanf:"gen_max_tokens_max"`
	GenTemperatureMin   float64       `koanf:"gen_temperature_min"`
	GenTemperatureMax   float64       `koanf:"gen_temperature_max"`
	GenPresencePenalty  float64       `koanf:"gen_presence_penalty"`
	GenFrequencyPenalty float64       `koanf:"gen_frequency_penalty"`

	// Encyclopedia enrichment
	EnrichEnabled   bool          `koanf:"enrich_enabled"`
	EnrichBaseURL   string        `koanf:"enrich_base_url"`
	EnrichTimeout   time.Duration `koanf:"enrich_timeout"`
	EnrichUserAgent string        `koanf:"enrich_user_agent"`

	// Page cache
	CacheBackend     string        `koanf:"cache_backend"`
	CacheTTL         time.Duration `koanf:"cache_ttl"`
	CacheCheckPeriod time.Duration `koanf:"cache_check_period"`
	CacheMaxKeys     int           `koanf:"cache_max_keys"`

	// Crawler admission
	CrawlerSignatures    []string      `koanf:"crawler_signatures"`
	CrawlerRateWindow    time.Duration `koanf:"crawler_rate_window"`
	CrawlerRateLimit     int           `koanf:"crawler_rate_limit"`
	CrawlerRateKey       string        `koanf:"crawler_rate_key"`
	CrawlerWindowBackend string        `koanf:"crawler_window_backend"`

	// Admin dashboard
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`

	// Analytics
	AnalyticsBackend    string `koanf:"analytics_backend"`
	AnalyticsSQLitePath string `koanf:"analytics_sqlite_path"`
	AnalyticsDays       int    `koanf:"analytics_days"`

	// Shared Postgres
	DatabaseDSN      string `koanf:"database_dsn"`
	DatabaseMaxConns int32  `koanf:"database_max_conns"`

	// Worker Pool
	PoolWorkers    int           `koanf:"pool_workers"`
	PoolQueueDepth int           `koanf:"pool_queue_depth"`
	PoolMaxRetries int           `koanf:"pool_max_retries"`
	PoolRetryBase  time.Duration `koanf:"pool_retry_base"`

	// Storage
	DataDir string `koanf:"data_dir"`

	// Operational
	LogLevel       string `koanf:"log_level"`
	LogFormat      string `koanf:"log_format"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	MetricsAddr    string `koanf:"metrics_addr"`
	HealthAddr     string `koanf:"health_addr"`
}

// sanitise removes a single layer of matching surrounding quotes from all string
// fields and string slice elements. This normalises values from Docker --env-file
// which does not strip shell quoting.
func (c *Config) sanitise() {
	c.HTTPAddr = stripEnvQuotes(c.HTTPAddr)
	c.SiteContextFile = stripEnvQuotes(c.SiteContextFile)
	c.LandingPageFile = stripEnvQuotes(c.LandingPageFile)
	c.OpenAIAPIKey = stripEnvQuotes(c.OpenAIAPIKey)
	c.OpenAIBaseURL = stripEnvQuotes(c.OpenAIBaseURL)
	c.OpenAIModel = stripEnvQuotes(c.OpenAIModel)
	c.EnrichBaseURL = stripEnvQuotes(c.EnrichBaseURL)
	c.EnrichUserAgent = stripEnvQuotes(c.EnrichUserAgent)
	c.CacheBackend = stripEnvQuotes(c.CacheBackend)
	c.CrawlerRateKey = stripEnvQuotes(c.CrawlerRateKey)
	c.CrawlerWindowBackend = stripEnvQuotes(c.CrawlerWindowBackend)
	c.AdminUsername = stripEnvQuotes(c.AdminUsername)
	c.AdminPassword = stripEnvQuotes(c.AdminPassword)
	c.AnalyticsBackend = stripEnvQuotes(c.AnalyticsBackend)
	c.AnalyticsSQLitePath = stripEnvQuotes(c.AnalyticsSQLitePath)
	c.DatabaseDSN = stripEnvQuotes(c.DatabaseDSN)
	c.DataDir = stripEnvQuotes(c.DataDir)
	c.LogLevel = stripEnvQuotes(c.LogLevel)
	c.LogFormat = stripEnvQuotes(c.LogFormat)
	c.MetricsAddr = stripEnvQuotes(c.MetricsAddr)
	c.HealthAddr = stripEnvQuotes(c.HealthAddr)

	for i, s := range c.CrawlerSignatures {
		c.CrawlerSignatures[i] = stripEnvQuotes(s)
	}
	for i, s := range c.TrustedProxies {
		c.TrustedProxies[i] = stripEnvQuotes(s)
	}
}

// DefaultCrawlerSignatures is matched case-insensitively against User-Agent.
const DefaultCrawlerSignatures = "googlebot,bingbot,slurp,duckduckbot,baiduspider,yandexbot," +
	"sogou,exabot,facebot,facebookexternalhit,ia_archiver,applebot,petalbot,bytespider," +
	"gptbot,ccbot,ahrefsbot,semrushbot,mj12bot,dotbot,crawler,spider"

// defaults sets sensible default values.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"http_addr":              ":3000",
		"http_read_timeout":      "15s",
		"http_write_timeout":     "180s",
		"trusted_proxies":        "",
		"landing_fallback":       true,
		"openai_model":           "gpt-4o-mini",
		"generation_timeout":     "90s",
		"generation_rps":         0,
		"generation_burst":       1,
		"gen_max_tokens_min":     1000,
		"gen_max_tokens_max":     2000,
		"gen_temperature_min":    0.7,
		"gen_temperature_max":    1.0,
		"gen_presence_penalty":   0.3,
		"gen_frequency_penalty":  0.5,
		"enrich_enabled":         true,
		"enrich_base_url":        "https://en.wikipedia.org",
		"enrich_timeout":         "5s",
		"enrich_user_agent":      "pagesmith/1.0 (+https://github.com/developingchet/pagesmith)",
		"cache_backend":          "bolt",
		"cache_ttl":              "1440h",
		"cache_check_period":     "10m",
		"cache_max_keys":         1000,
		"crawler_signatures":     DefaultCrawlerSignatures,
		"crawler_rate_window":    "60s",
		"crawler_rate_limit":     60,
		"crawler_rate_key":       "ip",
		"crawler_window_backend": "memory",
		"analytics_backend":      "none",
		"analytics_sqlite_path":  "/data/analytics.db",
		"analytics_days":         30,
		"database_max_conns":     4,
		"pool_workers":           2,
		"pool_queue_depth":       1024,
		"pool_max_retries":       3,
		"pool_retry_base":        "1s",
		"data_dir":               "/data",
		"log_level":              "info",
		"log_format":             "json",
		"metrics_enabled":        true,
		"metrics_addr":           ":9090",
		"health_addr":            ":8081",
	}
}

// stripEnvQuotes removes a single layer of matching surrounding single or double
// quotes from s. Only symmetric pairs are stripped: 'x' → x, "x" → x.
// Unpaired or mismatched quotes are left as-is.
func stripEnvQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// Load reads configuration from environment variables, applying _FILE secret injection.
func Load() (*Config, error) {
	// "." as delimiter keeps env vars with "_" flat: CACHE_TTL → "cache_ttl".
	k := koanf.New(".")

	if err := k.Load(&rawProvider{data: defaults()}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := injectFileSecrets(k); err != nil {
		return nil, fmt.Errorf("inject file secrets: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// koanf won't split comma-separated list fields
	cfg.CrawlerSignatures = splitCSV(k.String("crawler_signatures"))
	cfg.TrustedProxies = splitCSV(k.String("trusted_proxies"))

	cfg.sanitise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and semantic constraints.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	if c.OpenAIBaseURL != "" {
		if err := requireHTTPURL(c.OpenAIBaseURL); err != nil {
			return fmt.Errorf("OPENAI_BASE_URL: %w", err)
		}
	}
	if c.EnrichEnabled {
		if err := requireHTTPURL(c.EnrichBaseURL); err != nil {
			return fmt.Errorf("ENRICH_BASE_URL: %w", err)
		}
	}

	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be > 0; got %s", c.GenerationTimeout)
	}
	if c.EnrichTimeout <= 0 {
		return fmt.Errorf("ENRICH_TIMEOUT must be > 0; got %s", c.EnrichTimeout)
	}
	if c.GenerationRPS < 0 {
		return fmt.Errorf("GENERATION_RPS must be >= 0; got %v", c.GenerationRPS)
	}
	if c.GenMaxTokensMin < 1 || c.GenMaxTokensMax < c.GenMaxTokensMin {
		return fmt.Errorf("GEN_MAX_TOKENS_MIN/MAX must satisfy 1 <= min <= max; got %d..%d",
			c.GenMaxTokensMin, c.GenMaxTokensMax)
	}
	if c.GenTemperatureMin < 0 || c.GenTemperatureMax > 2 || c.GenTemperatureMax < c.GenTemperatureMin {
		return fmt.Errorf("GEN_TEMPERATURE_MIN/MAX must satisfy 0 <= min <= max <= 2; got %v..%v",
			c.GenTemperatureMin, c.GenTemperatureMax)
	}

	validCacheBackends := map[string]bool{"bolt": true, "postgres": true}
	if !validCacheBackends[c.CacheBackend] {
		return fmt.Errorf("CACHE_BACKEND must be bolt or postgres; got %q", c.CacheBackend)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be > 0; got %s", c.CacheTTL)
	}
	if c.CacheCheckPeriod <= 0 {
		return fmt.Errorf("CACHE_CHECK_PERIOD must be > 0; got %s", c.CacheCheckPeriod)
	}
	if c.CacheMaxKeys < 1 {
		return fmt.Errorf("CACHE_MAX_KEYS must be >= 1; got %d", c.CacheMaxKeys)
	}

	if c.CrawlerRateWindow <= 0 {
		return fmt.Errorf("CRAWLER_RATE_WINDOW must be > 0; got %s", c.CrawlerRateWindow)
	}
	if c.CrawlerRateLimit < 1 {
		return fmt.Errorf("CRAWLER_RATE_LIMIT must be >= 1; got %d", c.CrawlerRateLimit)
	}
	if c.CrawlerRateKey != "ip" && c.CrawlerRateKey != "user_agent" {
		return fmt.Errorf("CRAWLER_RATE_KEY must be ip or user_agent; got %q", c.CrawlerRateKey)
	}
	for _, entry := range c.TrustedProxies {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES: invalid CIDR %q: %w", entry, err)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("TRUSTED_PROXIES: invalid IP address %q", entry)
		}
	}
	if c.CrawlerWindowBackend != "memory" && c.CrawlerWindowBackend != "bolt" {
		return fmt.Errorf("CRAWLER_WINDOW_BACKEND must be memory or bolt; got %q", c.CrawlerWindowBackend)
	}

	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}

	validAnalytics := map[string]bool{"none": true, "postgres": true, "sqlite": true}
	if !validAnalytics[c.AnalyticsBackend] {
		return fmt.Errorf("ANALYTICS_BACKEND must be none, postgres, or sqlite; got %q", c.AnalyticsBackend)
	}
	if c.AnalyticsDays < 1 {
		return fmt.Errorf("ANALYTICS_DAYS must be >= 1; got %d", c.AnalyticsDays)
	}
	if c.NeedsPostgres() && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required when CACHE_BACKEND or ANALYTICS_BACKEND is postgres")
	}

	if c.PoolWorkers < 1 || c.PoolWorkers > 64 {
		return fmt.Errorf("POOL_WORKERS must be 1–64; got %d", c.PoolWorkers)
	}
	if c.PoolQueueDepth < 1 {
		return fmt.Errorf("POOL_QUEUE_DEPTH must be >= 1; got %d", c.PoolQueueDepth)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.LogFormat)
	}

	return nil
}

// NeedsPostgres reports whether any backend is configured to use DATABASE_DSN.
func (c *Config) NeedsPostgres() bool {
	return c.CacheBackend == "postgres" || c.AnalyticsBackend == "postgres"
}

// AdminEnabled reports whether dashboard credentials are configured.
func (c *Config) AdminEnabled() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

func requireHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must start with http:// or https://; got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// injectFileSecrets reads _FILE env vars and injects their file contents.
var fileSecretKeys = []string{
	"openai_api_key",
	"admin_password",
	"database_dsn",
}

func injectFileSecrets(k *koanf.Koanf) error {
	for _, key := range fileSecretKeys {
		fileKey := key + "_file"
		filePath := k.String(fileKey)
		if filePath == "" {
			envKey := strings.ToUpper(key) + "_FILE"
			filePath = os.Getenv(envKey)
		}
		if filePath == "" {
			continue
		}
		filePath = stripEnvQuotes(filePath)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading secret file for %s (%s): %w", key, filePath, err)
		}
		val := strings.TrimSpace(string(content))
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("setting %s from file: %w", key, err)
		}
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// rawProvider implements koanf.Provider for a map[string]interface{}.
type rawProvider struct {
	data map[string]interface{}
}

// Read returns the config map directly (no Parser needed).
func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

// ReadBytes is not used by rawProvider; koanf calls Read() when no Parser is given.
func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}
