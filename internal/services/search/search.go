// Package search implements the web-search capability used by the
// first tier of most cascades.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tegath/kaleads/internal/services"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Searcher runs a query and returns hits in ranking order.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Disabled is a Searcher that always reports services.ErrDisabled.
type Disabled struct{}

// Search implements Searcher.
func (Disabled) Search(context.Context, string) ([]Result, error) {
	return nil, fmt.Errorf("web search: %w", services.ErrDisabled)
}

// Config holds DuckDuckGo client settings.
type Config struct {
	BaseURL           string
	MaxResults        int
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

// DefaultConfig returns settings for the public HTML endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://html.duckduckgo.com/html/",
		MaxResults:        8,
		RequestsPerSecond: 1,
		Burst:             2,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
	}
}

// DuckDuckGo searches through the DuckDuckGo HTML interface, which
// needs no API key. Calls are rate limited process-wide.
type DuckDuckGo struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewDuckDuckGo creates a client. A nil http.Client uses http.DefaultClient.
func NewDuckDuckGo(cfg Config, client *http.Client, logger *zap.Logger) *DuckDuckGo {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultConfig().MaxResults
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &DuckDuckGo{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("search"),
	}
}

// Search implements Searcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("web search: empty query")
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("web search: waiting for rate limiter: %w", services.Classify(err))
	}

	searchURL := fmt.Sprintf("%s?q=%s", d.cfg.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("web search: creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: request failed: %w", services.Classify(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("web search: HTTP %d: %w", resp.StatusCode, services.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("web search: HTTP %d: %w", resp.StatusCode, services.ErrServiceUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("web search: reading response: %w", services.Classify(err))
	}

	results, err := ParseResults(string(body), d.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	d.logger.Debug("search completed",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)))
	return results, nil
}

// ParseResults extracts hits from a DuckDuckGo HTML result page.
func ParseResults(htmlContent string, maxResults int) ([]Result, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", services.ErrMalformedResponse)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if r := extractResult(n); r.URL != "" && r.Title != "" {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func extractResult(n *html.Node) Result {
	var r Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				r.URL = unwrapRedirect(attr(n, "href"))
				r.Title = textContent(n)
			case hasClass(n, "result__snippet"):
				r.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r
}

// unwrapRedirect turns DuckDuckGo's //duckduckgo.com/l/?uddg=... links
// into the target URL.
func unwrapRedirect(href string) string {
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
