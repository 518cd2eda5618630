// Package generator turns a request path into raw themed markdown, either
// from static tool pages or from a text-generation backend.
package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/developingchet/pagesmith/internal/config"
	"github.com/developingchet/pagesmith/internal/enrich"
	"github.com/developingchet/pagesmith/internal/metrics"
	"github.com/developingchet/pagesmith/internal/topic"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrEmptyCompletion is returned when the backend produced no usable text.
var ErrEmptyCompletion = errors.New("backend returned an empty completion")

// Prompt is one backend request.
type Prompt struct {
	System           string
	User             string
	MaxTokens        int
	Temperature      float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Backend produces completions. Implementations must honor ctx cancellation.
type Backend interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Enricher supplies optional grounding facts for a topic.
type Enricher interface {
	Lookup(ctx context.Context, topic string) enrich.Summary
}

// Sampling bounds the per-call randomized parameters.
type Sampling struct {
	MaxTokensMin     int
	MaxTokensMax     int
	TemperatureMin   float64
	TemperatureMax   float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Options configures a Generator.
type Options struct {
	Site     config.SiteContext
	Sampling Sampling
	Timeout  time.Duration // per backend call; 0 = no extra bound
	RPS      float64       // global backend throttle; 0 = unlimited
	Burst    int
}

// Generator builds prompts and calls the backend.
type Generator struct {
	backend  Backend
	enricher Enricher // nil disables enrichment
	opts     Options
	limiter  *rate.Limiter
	rand     func() float64
	log      zerolog.Logger
}

// New builds a Generator. enricher may be nil.
func New(backend Backend, enricher Enricher, opts Options, log zerolog.Logger) *Generator {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	return &Generator{
		backend:  backend,
		enricher: enricher,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		rand:     rand.Float64,
		log:      log,
	}
}

// Generate returns raw markdown for path. Tool pages are answered without
// touching the backend.
func (g *Generator) Generate(ctx context.Context, path string) (string, error) {
	if page, ok := ToolPage(path); ok {
		metrics.Generations.WithLabelValues("tools", "ok").Inc()
		return page, nil
	}

	topicName, _ := topic.Extract(path)
	var facts string
	if g.enricher != nil && topicName != "" {
		facts = g.enricher.Lookup(ctx, topicName).Extract
	}
	prompt := g.buildPrompt(topicName, facts)

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		metrics.Generations.WithLabelValues("backend", "throttled").Inc()
		return "", fmt.Errorf("generation throttle: %w", err)
	}

	start := time.Now()
	out, err := g.backend.Complete(ctx, prompt)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Generations.WithLabelValues("backend", "error").Inc()
		return "", fmt.Errorf("generate %s: %w", path, err)
	}
	if strings.TrimSpace(out) == "" {
		metrics.Generations.WithLabelValues("backend", "empty").Inc()
		return "", fmt.Errorf("generate %s: %w", path, ErrEmptyCompletion)
	}
	metrics.Generations.WithLabelValues("backend", "ok").Inc()
	g.log.Debug().Str("path", path).Int("max_tokens", prompt.MaxTokens).
		Dur("elapsed", time.Since(start)).Msg("generator: page generated")
	return out, nil
}

func (g *Generator) buildPrompt(topicName, facts string) Prompt {
	s := g.opts.Sampling
	return Prompt{
		System:           SystemInstruction(g.opts.Site),
		User:             UserMessage(topicName, facts),
		MaxTokens:        s.MaxTokensMin + int(g.rand()*float64(s.MaxTokensMax-s.MaxTokensMin+1)),
		Temperature:      s.TemperatureMin + g.rand()*(s.TemperatureMax-s.TemperatureMin),
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
	}
}
