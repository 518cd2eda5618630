package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/developingchet/pagesmith/internal/config"
	"github.com/rs/zerolog"
)

// captureStdout runs fn and returns what it printed.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	oldStdout := os.Stdout
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatal(err)
	}
	return buf.String(), runErr
}

// TestRootSubcommands verifies all expected subcommands are registered.
func TestRootSubcommands(t *testing.T) {
	root := newRoot()

	registered := make(map[string]bool)
	for _, cmd := range root.Commands() {
		registered[cmd.Name()] = true
	}

	for _, want := range []string{"run", "version", "healthcheck", "prune", "cache"} {
		if !registered[want] {
			t.Errorf("subcommand %q not registered on root command", want)
		}
	}
}

// TestVersionOutput verifies the version subcommand prints the binary name.
func TestVersionOutput(t *testing.T) {
	root := newRoot()
	root.SetArgs([]string{"version"})
	out, err := captureStdout(t, root.Execute)
	if err != nil {
		t.Fatalf("version command returned error: %v", err)
	}
	if !strings.Contains(out, "pagesmith") {
		t.Errorf("version output %q does not contain %q", out, "pagesmith")
	}
}

// TestRunDaemonMissingConfig verifies runDaemon returns an error (not panics)
// when OPENAI_API_KEY is not set.
func TestRunDaemonMissingConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if err := runDaemon(); err == nil {
		t.Fatal("expected runDaemon() to return an error when OPENAI_API_KEY is missing")
	}
}

// TestLoadMissingRequired verifies config.Load returns a descriptive error
// when required environment variables are absent.
func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected config.Load() to return an error with missing required vars")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("expected error message to mention OPENAI_API_KEY; got: %v", err)
	}
}

func TestHealthHost(t *testing.T) {
	if got := healthHost(":8081"); got != "127.0.0.1:8081" {
		t.Errorf("healthHost(:8081) = %q", got)
	}
	if got := healthHost("10.0.0.5:8081"); got != "10.0.0.5:8081" {
		t.Errorf("healthHost kept host = %q", got)
	}
}

func TestOpenStoresLocalBackends(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		CacheBackend:         "bolt",
		CrawlerWindowBackend: "memory",
		AnalyticsBackend:     "sqlite",
		AnalyticsSQLitePath:  filepath.Join(dir, "analytics.db"),
		DataDir:              dir,
	}

	st, err := openStores(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	defer st.Close()

	if st.pages == nil || st.windows == nil || st.visits == nil {
		t.Fatalf("expected all stores to be set: %+v", st)
	}
	if st.sizer() == nil {
		t.Error("bolt cache should expose its size")
	}
	if err := st.ping(context.Background()); err != nil {
		t.Errorf("local backends should always be ready: %v", err)
	}
}

func TestOpenStoresWithoutAnalytics(t *testing.T) {
	cfg := &config.Config{
		CacheBackend:         "bolt",
		CrawlerWindowBackend: "bolt",
		AnalyticsBackend:     "none",
		DataDir:              t.TempDir(),
	}

	st, err := openStores(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	defer st.Close()

	if st.visits != nil {
		t.Error("analytics backend none must not open a visit store")
	}
}

func TestCacheCommands(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-0000000000000000")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("CACHE_MAX_KEYS", "25")

	root := newRoot()
	root.SetArgs([]string{"cache", "stats"})
	out, err := captureStdout(t, root.Execute)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(out, "keys=0 max_keys=25 hits=0 misses=0 evictions=0") {
		t.Errorf("unexpected stats output %q", out)
	}

	root = newRoot()
	root.SetArgs([]string{"cache", "delete", "/ships"})
	out, err = captureStdout(t, root.Execute)
	if err != nil {
		t.Fatalf("cache delete: %v", err)
	}
	if !strings.Contains(out, "deleted /ships") {
		t.Errorf("unexpected delete output %q", out)
	}
}

func TestPruneCommand(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-0000000000000000")
	t.Setenv("DATA_DIR", t.TempDir())

	root := newRoot()
	root.SetArgs([]string{"prune"})
	out, err := captureStdout(t, root.Execute)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(out, "prune complete: pages=0 windows=0") {
		t.Errorf("unexpected prune output %q", out)
	}
}
