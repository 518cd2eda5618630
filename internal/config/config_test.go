package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, val string) {
	t.Helper()
	t.Setenv(key, val)
}

// baseEnv sets the minimum required fields for a valid config and clears
// fields that might cause spurious validation failures between test cases.
func baseEnv(t *testing.T) {
	t.Helper()
	setEnv(t, "OPENAI_API_KEY", "sk-test")
	for _, k := range []string{
		"OPENAI_BASE_URL", "LOG_LEVEL", "LOG_FORMAT", "CACHE_BACKEND", "CACHE_TTL",
		"CACHE_MAX_KEYS", "CRAWLER_RATE_KEY", "CRAWLER_RATE_LIMIT", "CRAWLER_WINDOW_BACKEND",
		"CRAWLER_SIGNATURES", "ADMIN_USERNAME", "ADMIN_PASSWORD", "ANALYTICS_BACKEND",
		"DATABASE_DSN", "POOL_WORKERS", "GEN_MAX_TOKENS_MIN", "GEN_MAX_TOKENS_MAX",
		"GEN_TEMPERATURE_MIN", "GEN_TEMPERATURE_MAX", "ENRICH_BASE_URL", "TRUSTED_PROXIES",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	baseEnv(t)
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY_FILE")

	_, err := Load()
	if err == nil {
		t.Error("expected error when OPENAI_API_KEY missing")
	}
}

func TestLoadMinimalValid(t *testing.T) {
	baseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey: got %q", cfg.OpenAIAPIKey)
	}
}

func TestDefaults(t *testing.T) {
	baseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTL != 60*24*time.Hour {
		t.Errorf("default CacheTTL: got %s", cfg.CacheTTL)
	}
	if cfg.CacheCheckPeriod != 10*time.Minute {
		t.Errorf("default CacheCheckPeriod: got %s", cfg.CacheCheckPeriod)
	}
	if cfg.CacheMaxKeys != 1000 {
		t.Errorf("default CacheMaxKeys: got %d", cfg.CacheMaxKeys)
	}
	if cfg.CrawlerRateWindow != time.Minute || cfg.CrawlerRateLimit != 60 {
		t.Errorf("default crawler window: got %s/%d", cfg.CrawlerRateWindow, cfg.CrawlerRateLimit)
	}
	if cfg.GenMaxTokensMin != 1000 || cfg.GenMaxTokensMax != 2000 {
		t.Errorf("default max tokens: got %d..%d", cfg.GenMaxTokensMin, cfg.GenMaxTokensMax)
	}
	if cfg.GenTemperatureMin != 0.7 || cfg.GenTemperatureMax != 1.0 {
		t.Errorf("default temperature: got %v..%v", cfg.GenTemperatureMin, cfg.GenTemperatureMax)
	}
	if cfg.GenPresencePenalty != 0.3 || cfg.GenFrequencyPenalty != 0.5 {
		t.Errorf("default penalties: got %v/%v", cfg.GenPresencePenalty, cfg.GenFrequencyPenalty)
	}
	if !cfg.LandingFallback {
		t.Error("default LandingFallback: expected true")
	}
	if len(cfg.CrawlerSignatures) < 10 || cfg.CrawlerSignatures[0] != "googlebot" {
		t.Errorf("default CrawlerSignatures: got %v", cfg.CrawlerSignatures)
	}
	if cfg.AdminEnabled() {
		t.Error("admin should be disabled without credentials")
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Errorf("default TrustedProxies: expected none, got %v", cfg.TrustedProxies)
	}
}

func TestTrustedProxiesCSV(t *testing.T) {
	baseEnv(t)
	setEnv(t, "TRUSTED_PROXIES", "'10.0.0.0/8', 192.0.2.1,2001:db8::/32")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"10.0.0.0/8", "192.0.2.1", "2001:db8::/32"}
	if len(cfg.TrustedProxies) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.TrustedProxies)
	}
	for i := range want {
		if cfg.TrustedProxies[i] != want[i] {
			t.Errorf("TrustedProxies[%d]: got %q, want %q", i, cfg.TrustedProxies[i], want[i])
		}
	}
}

func TestCrawlerSignaturesCSV(t *testing.T) {
	baseEnv(t)
	setEnv(t, "CRAWLER_SIGNATURES", "examplebot, otherbot ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CrawlerSignatures) != 2 {
		t.Fatalf("expected 2 signatures, got %v", cfg.CrawlerSignatures)
	}
	if cfg.CrawlerSignatures[1] != "otherbot" {
		t.Errorf("second signature: got %q", cfg.CrawlerSignatures[1])
	}
}

func TestFileSecretInjection(t *testing.T) {
	baseEnv(t)
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "openai_key.txt")
	if err := os.WriteFile(keyFile, []byte("  sk-from-file  \n"), 0600); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("OPENAI_API_KEY")
	setEnv(t, "OPENAI_API_KEY_FILE", keyFile)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with file secret: %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-from-file" {
		t.Errorf("expected trimmed file secret, got %q", cfg.OpenAIAPIKey)
	}
}

func TestStripEnvQuotes(t *testing.T) {
	cases := map[string]string{
		`"quoted"`: "quoted",
		`'single'`: "single",
		`"mixed'`:  `"mixed'`,
		`x`:        "x",
		``:         "",
	}
	for in, want := range cases {
		if got := stripEnvQuotes(in); got != want {
			t.Errorf("stripEnvQuotes(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(t *testing.T)
		wantErr bool
	}{
		{"valid_minimal", func(t *testing.T) {}, false},
		{"invalid_log_level", func(t *testing.T) { setEnv(t, "LOG_LEVEL", "invalid") }, true},
		{"valid_log_level_debug", func(t *testing.T) { setEnv(t, "LOG_LEVEL", "debug") }, false},
		{"invalid_log_format", func(t *testing.T) { setEnv(t, "LOG_FORMAT", "yaml") }, true},
		{"valid_log_format_text", func(t *testing.T) { setEnv(t, "LOG_FORMAT", "text") }, false},
		{"invalid_cache_backend", func(t *testing.T) { setEnv(t, "CACHE_BACKEND", "redis") }, true},
		{"postgres_cache_without_dsn", func(t *testing.T) { setEnv(t, "CACHE_BACKEND", "postgres") }, true},
		{"postgres_cache_with_dsn", func(t *testing.T) {
			setEnv(t, "CACHE_BACKEND", "postgres")
			setEnv(t, "DATABASE_DSN", "postgres://u:p@localhost:5432/db")
		}, false},
		{"sqlite_analytics", func(t *testing.T) { setEnv(t, "ANALYTICS_BACKEND", "sqlite") }, false},
		{"invalid_analytics_backend", func(t *testing.T) { setEnv(t, "ANALYTICS_BACKEND", "mongo") }, true},
		{"zero_max_keys", func(t *testing.T) { setEnv(t, "CACHE_MAX_KEYS", "0") }, true},
		{"invalid_rate_key", func(t *testing.T) { setEnv(t, "CRAWLER_RATE_KEY", "cookie") }, true},
		{"rate_key_user_agent", func(t *testing.T) { setEnv(t, "CRAWLER_RATE_KEY", "user_agent") }, false},
		{"invalid_window_backend", func(t *testing.T) { setEnv(t, "CRAWLER_WINDOW_BACKEND", "redis") }, true},
		{"zero_rate_limit", func(t *testing.T) { setEnv(t, "CRAWLER_RATE_LIMIT", "0") }, true},
		{"admin_username_only", func(t *testing.T) { setEnv(t, "ADMIN_USERNAME", "admin") }, true},
		{"admin_both", func(t *testing.T) {
			setEnv(t, "ADMIN_USERNAME", "admin")
			setEnv(t, "ADMIN_PASSWORD", "secret")
		}, false},
		{"invalid_openai_base_url", func(t *testing.T) { setEnv(t, "OPENAI_BASE_URL", "ftp://x") }, true},
		{"inverted_max_tokens", func(t *testing.T) {
			setEnv(t, "GEN_MAX_TOKENS_MIN", "3000")
			setEnv(t, "GEN_MAX_TOKENS_MAX", "2000")
		}, true},
		{"temperature_too_high", func(t *testing.T) { setEnv(t, "GEN_TEMPERATURE_MAX", "2.5") }, true},
		{"pool_workers_too_many", func(t *testing.T) { setEnv(t, "POOL_WORKERS", "65") }, true},
		{"trusted_proxy_hostname", func(t *testing.T) { setEnv(t, "TRUSTED_PROXIES", "proxy.internal") }, true},
		{"trusted_proxy_bad_cidr", func(t *testing.T) { setEnv(t, "TRUSTED_PROXIES", "10.0.0.0/33") }, true},
		{"trusted_proxies_valid", func(t *testing.T) { setEnv(t, "TRUSTED_PROXIES", "10.0.0.0/8,::1") }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			baseEnv(t)
			tc.setup(t)
			_, err := Load()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
