// Package enrich fetches optional encyclopedia summaries used to ground
// generated pages. Lookups never fail the caller.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/developingchet/pagesmith/internal/metrics"
	"github.com/rs/zerolog"
)

// Summary is the enrichment result. Extract is empty when nothing was found.
type Summary struct {
	Title   string
	Extract string
	URL     string
}

// Config holds parameters for the encyclopedia client.
type Config struct {
	BaseURL   string // e.g. https://en.wikipedia.org
	UserAgent string
	Timeout   time.Duration
	Debug     bool
}

// Client looks up topic summaries through the Wikipedia REST and action APIs.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// NewClient builds a Client with its own transport.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport},
		log:  log,
	}
}

// Lookup returns a summary for topic: an exact page summary first, then the
// summary of the first search hit, then an empty extract. The whole lookup is
// bounded by the configured timeout.
func (c *Client) Lookup(ctx context.Context, topic string) Summary {
	empty := Summary{Title: topic}
	if strings.TrimSpace(topic) == "" {
		metrics.EnrichmentResults.WithLabelValues("empty").Inc()
		return empty
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	s, err := c.pageSummary(ctx, topic)
	if err == nil {
		metrics.EnrichmentResults.WithLabelValues("summary").Inc()
		return s
	}
	c.log.Debug().Err(err).Str("topic", topic).Msg("enrich: exact summary failed, trying search")

	title, err := c.firstSearchResult(ctx, topic)
	if err == nil {
		if s, err = c.pageSummary(ctx, title); err == nil {
			metrics.EnrichmentResults.WithLabelValues("search").Inc()
			return s
		}
	}
	c.log.Debug().Err(err).Str("topic", topic).Msg("enrich: no encyclopedia results")
	metrics.EnrichmentResults.WithLabelValues("empty").Inc()
	return empty
}

type summaryResponse struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (c *Client) pageSummary(ctx context.Context, title string) (Summary, error) {
	slug := url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
	var body summaryResponse
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/api/rest_v1/page/summary/"+slug, "summary", &body); err != nil {
		return Summary{}, err
	}
	if body.Type == "disambiguation" || strings.TrimSpace(body.Extract) == "" {
		return Summary{}, &ErrNotFound{Title: title}
	}
	return Summary{
		Title:   body.Title,
		Extract: body.Extract,
		URL:     body.ContentURLs.Desktop.Page,
	}, nil
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

func (c *Client) firstSearchResult(ctx context.Context, topic string) (string, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("srsearch", topic)
	q.Set("srlimit", "1")
	q.Set("format", "json")

	var body searchResponse
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/w/api.php?"+q.Encode(), "search", &body); err != nil {
		return "", err
	}
	if len(body.Query.Search) == 0 {
		return "", &ErrNotFound{Title: topic}
	}
	return body.Query.Search[0].Title, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.apiDo(req, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// apiDo executes an HTTP request, recording metrics and translating statuses
// into typed errors.
func (c *Client) apiDo(req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	if c.cfg.Debug {
		c.log.Debug().Str("url", req.URL.String()).Msg("enrich api request")
	}

	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.EnrichmentCalls.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}

	statusLabel := fmt.Sprintf("%dxx", resp.StatusCode/100)
	metrics.EnrichmentCalls.WithLabelValues(endpoint, statusLabel).Inc()
	metrics.EnrichmentDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	switch resp.StatusCode {
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, &ErrNotFound{Title: req.URL.Path}
	case http.StatusTooManyRequests:
		retryAfter := 10 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if d, err := time.ParseDuration(ra + "s"); err == nil {
				retryAfter = d
			}
		}
		_ = resp.Body.Close()
		return nil, &ErrRateLimit{RetryAfter: retryAfter}
	}
	return resp, nil
}
