package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/developingchet/pagesmith/internal/admission"
	"github.com/developingchet/pagesmith/internal/analytics"
	"github.com/developingchet/pagesmith/internal/blocks"
	"github.com/developingchet/pagesmith/internal/config"
	"github.com/developingchet/pagesmith/internal/enrich"
	"github.com/developingchet/pagesmith/internal/generator"
	"github.com/developingchet/pagesmith/internal/logger"
	"github.com/developingchet/pagesmith/internal/pagecache"
	"github.com/developingchet/pagesmith/internal/pool"
	"github.com/developingchet/pagesmith/internal/render"
	"github.com/developingchet/pagesmith/internal/site"
	"github.com/developingchet/pagesmith/internal/transform"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set by the build system via -ldflags.
var Version = "dev"

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "pagesmith",
		Short: "On-demand generated pages with caching and crawler admission",
	}
	root.AddCommand(
		runCmd(),
		healthcheckCmd(),
		versionCmd(),
		pruneCmd(),
		cacheCmd(),
	)
	return root
}

// runCmd is the main daemon command.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the page server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	log.Info().Str("version", Version).Msg("pagesmith starting")

	siteCtx, err := config.LoadSiteContext(cfg.SiteContextFile)
	if err != nil {
		return fmt.Errorf("load site context: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	cache := newCache(cfg, st, log)
	adm := admission.New(admission.Config{
		Signatures: cfg.CrawlerSignatures,
		Window:     cfg.CrawlerRateWindow,
		Limit:      cfg.CrawlerRateLimit,
		KeyBy:      cfg.CrawlerRateKey,
	}, st.windows, cache, log)

	backend := generator.NewOpenAIBackend(generator.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.GenerationTimeout,
	})
	var enricher generator.Enricher
	if cfg.EnrichEnabled {
		enricher = enrich.NewClient(enrich.Config{
			BaseURL:   cfg.EnrichBaseURL,
			UserAgent: cfg.EnrichUserAgent,
			Timeout:   cfg.EnrichTimeout,
			Debug:     cfg.LogLevel == "debug" || cfg.LogLevel == "trace",
		}, log)
	}
	gen := generator.New(backend, enricher, generator.Options{
		Site: siteCtx,
		Sampling: generator.Sampling{
			MaxTokensMin:     cfg.GenMaxTokensMin,
			MaxTokensMax:     cfg.GenMaxTokensMax,
			TemperatureMin:   cfg.GenTemperatureMin,
			TemperatureMax:   cfg.GenTemperatureMax,
			PresencePenalty:  cfg.GenPresencePenalty,
			FrequencyPenalty: cfg.GenFrequencyPenalty,
		},
		Timeout: cfg.GenerationTimeout,
		RPS:     cfg.GenerationRPS,
		Burst:   cfg.GenerationBurst,
	}, log)

	// Visit writes go through the pool only when a durable store exists.
	var (
		workers *pool.Pool
		queue   analytics.Enqueuer
	)
	if st.visits != nil {
		workers, err = pool.New(pool.Config{
			Workers:    cfg.PoolWorkers,
			QueueDepth: cfg.PoolQueueDepth,
			MaxRetries: cfg.PoolMaxRetries,
			RetryBase:  cfg.PoolRetryBase,
		}, pool.VisitWriter(st.visits), log)
		if err != nil {
			return fmt.Errorf("create pool: %w", err)
		}
		queue = workers
	}

	site.BinaryVersion = Version
	srv, err := site.New(cfg, site.Deps{
		Cache:     cache,
		Admission: adm,
		Generator: gen,
		Pipeline:  transform.New(blocks.Default(), siteCtx.Vocabulary(), log),
		Renderer:  render.New(),
		Recorder:  analytics.NewRecorder(analytics.NewCounter(), queue, st.visits, log),
		Pool:      workers,
		Sizer:     st.sizer(),
		Ping:      st.ping,
	}, log)
	if err != nil {
		return fmt.Errorf("build site: %w", err)
	}

	return srv.Run(ctx)
}

func newCache(cfg *config.Config, st *stores, log zerolog.Logger) *pagecache.Cache {
	return pagecache.New(st.pages, pagecache.Options{
		TTL:     cfg.CacheTTL,
		MaxKeys: cfg.CacheMaxKeys,
	}, log)
}

// healthcheckCmd exits 0 if the health endpoint answers.
func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check health endpoint and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			resp, err := http.Get("http://" + healthHost(cfg.HealthAddr) + "/healthz") //nolint:noctx
			if err != nil {
				fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(os.Stderr, "healthcheck returned %d\n", resp.StatusCode)
				os.Exit(1)
			}
			fmt.Println("healthy")
			return nil
		},
	}
}

// healthHost turns a listen address such as ":8081" into a dialable one.
func healthHost(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "127.0.0.1" + addr
	}
	return addr
}

// versionCmd prints the version and exits.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pagesmith %s\n", Version)
		},
	}
}

// pruneCmd runs a one-shot janitor sweep against the configured stores.
func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Purge expired pages and empty crawler windows, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := buildLogger(cfg)
			ctx := context.Background()

			st, err := openStores(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			cache := newCache(cfg, st, log)
			adm := admission.New(admission.Config{
				Window: cfg.CrawlerRateWindow,
				Limit:  cfg.CrawlerRateLimit,
			}, st.windows, nil, log)

			res := site.NewJanitor(cache, adm, st.sizer(), nil, cfg.CacheCheckPeriod, log).Sweep(ctx)
			fmt.Printf("prune complete: pages=%d windows=%d\n", res.PagesPurged, res.WindowsPruned)
			return nil
		},
	}
}

// cacheCmd inspects and edits the page cache.
func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or edit the page cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print the cached page count",
		RunE: func(c *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, cache *pagecache.Cache) error {
				s, err := cache.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("keys=%d max_keys=%d hits=%d misses=%d evictions=%d\n",
					s.Keys, s.MaxKeys, s.Hits, s.Misses, s.Evictions)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <path>",
		Short: "Drop one cached page so the next request regenerates it",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, cache *pagecache.Cache) error {
				if err := cache.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func withCache(fn func(ctx context.Context, cache *pagecache.Cache) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := buildLogger(cfg)
	ctx := context.Background()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, newCache(cfg, st, log))
}

// buildLogger constructs a zerolog.Logger based on config.
func buildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if cfg.LogFormat == "text" {
		cw := zerolog.NewConsoleWriter()
		cw.Out = logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(cw).Level(level).With().Timestamp().Logger()
	} else {
		redactWriter := logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(redactWriter).Level(level).With().Timestamp().Logger()
	}
	return base
}
