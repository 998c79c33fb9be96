// Package inspect implements the site-inspection capability: fetch a
// company website and reduce it to a structured summary the scraping
// strategies can read.
package inspect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Tegath/kaleads/internal/services"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// maxTextLen caps the visible text kept in a summary.
const maxTextLen = 4000

// Link is an anchor found on the page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// PageSummary is the structured view of one inspected page.
type PageSummary struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Headings     []string `json:"headings,omitempty"`
	Links        []Link   `json:"links,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Text         string   `json:"text,omitempty"`
}

// Inspector fetches and summarizes a page.
type Inspector interface {
	Inspect(ctx context.Context, pageURL string) (*PageSummary, error)
}

// Disabled is an Inspector that always reports services.ErrDisabled.
type Disabled struct{}

// Inspect implements Inspector.
func (Disabled) Inspect(context.Context, string) (*PageSummary, error) {
	return nil, fmt.Errorf("site inspection: %w", services.ErrDisabled)
}

// HTTPInspector fetches raw HTML over HTTP. It does not run scripts,
// which is enough for most marketing sites and far cheaper than a browser.
type HTTPInspector struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *zap.Logger
}

// NewHTTPInspector creates an HTTPInspector. requestsPerSecond <= 0 disables limiting.
func NewHTTPInspector(client *http.Client, requestsPerSecond float64, logger *zap.Logger) *HTTPInspector {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &HTTPInspector{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		logger:    logger.Named("inspect"),
	}
}

// Inspect implements Inspector.
func (h *HTTPInspector) Inspect(ctx context.Context, pageURL string) (*PageSummary, error) {
	target, err := NormalizeURL(pageURL)
	if err != nil {
		return nil, err
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("site inspection: waiting for rate limiter: %w", services.Classify(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("site inspection: creating request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("site inspection: request failed: %w", services.Classify(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("site inspection: HTTP %d: %w", resp.StatusCode, services.ErrRateLimited)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("site inspection: HTTP %d: %w", resp.StatusCode, services.ErrServiceUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("site inspection: reading body: %w", services.Classify(err))
	}

	summary, err := Summarize(target, string(body))
	if err != nil {
		return nil, err
	}
	h.logger.Debug("page inspected",
		zap.String("url", target),
		zap.Int("headings", len(summary.Headings)),
		zap.Strings("technologies", summary.Technologies),
		zap.Duration("took", time.Since(start)))
	return summary, nil
}

// NormalizeURL adds a scheme to bare domains and rejects empty input.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("site inspection: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("site inspection: invalid url %q", raw)
	}
	return u.String(), nil
}

// Summarize parses an HTML document into a PageSummary.
func Summarize(pageURL, document string) (*PageSummary, error) {
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("site inspection: parsing HTML: %w", services.ErrMalformedResponse)
	}

	s := &PageSummary{URL: pageURL}
	var text strings.Builder
	tech := make(map[string]bool)

	var walk func(*html.Node, bool)
	walk = func(n *html.Node, hidden bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				detectTechnologies(n, tech)
				hidden = true
			case "title":
				if s.Title == "" {
					s.Title = collapse(textOf(n))
				}
			case "meta":
				readMeta(n, s, tech)
			case "h1", "h2", "h3":
				if h := collapse(textOf(n)); h != "" && len(s.Headings) < 30 {
					s.Headings = append(s.Headings, h)
				}
			case "a":
				if href := attr(n, "href"); href != "" && len(s.Links) < 60 {
					if t := collapse(textOf(n)); t != "" {
						s.Links = append(s.Links, Link{Text: t, Href: href})
					}
				}
			case "link":
				detectTechnologies(n, tech)
			}
		}
		if n.Type == html.TextNode && !hidden && text.Len() < maxTextLen {
			if t := strings.TrimSpace(n.Data); t != "" {
				text.WriteString(t)
				text.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, hidden)
		}
	}
	walk(doc, false)

	s.Text = collapse(text.String())
	if len(s.Text) > maxTextLen {
		s.Text = s.Text[:maxTextLen]
	}
	for name := range tech {
		s.Technologies = append(s.Technologies, name)
	}
	sort.Strings(s.Technologies)
	return s, nil
}

func readMeta(n *html.Node, s *PageSummary, tech map[string]bool) {
	name := strings.ToLower(attr(n, "name"))
	if name == "" {
		name = strings.ToLower(attr(n, "property"))
	}
	content := strings.TrimSpace(attr(n, "content"))
	switch name {
	case "description", "og:description":
		if s.Description == "" {
			s.Description = content
		}
	case "keywords":
		for _, k := range strings.Split(content, ",") {
			if k = strings.TrimSpace(k); k != "" {
				s.Keywords = append(s.Keywords, k)
			}
		}
	case "generator":
		if content != "" {
			tech[strings.Fields(content)[0]] = true
		}
	}
}

// techSignatures maps a lowercase substring of a script/link source or
// inline script to the technology it reveals.
var techSignatures = map[string]string{
	"googletagmanager.com": "Google Tag Manager",
	"google-analytics.com": "Google Analytics",
	"js.hs-scripts.com":    "HubSpot",
	"hs-analytics":         "HubSpot",
	"munchkin.marketo":     "Marketo",
	"salesforce":           "Salesforce",
	"pardot":               "Pardot",
	"intercom":             "Intercom",
	"js.driftt.com":        "Drift",
	"zendesk":              "Zendesk",
	"segment.com":          "Segment",
	"cdn.shopify.com":      "Shopify",
	"wp-content":           "WordPress",
	"webflow":              "Webflow",
	"_next/static":         "Next.js",
	"stripe.com":           "Stripe",
	"hotjar":               "Hotjar",
	"mixpanel":             "Mixpanel",
	"amplitude":            "Amplitude",
	"clarity.ms":           "Microsoft Clarity",
}

// KnownTechnologies lists every technology Summarize can detect, sorted.
func KnownTechnologies() []string {
	seen := make(map[string]bool, len(techSignatures))
	var out []string
	for _, name := range techSignatures {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func detectTechnologies(n *html.Node, found map[string]bool) {
	probe := strings.ToLower(attr(n, "src") + " " + attr(n, "href"))
	if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
		probe += " " + strings.ToLower(n.FirstChild.Data)
	}
	for sig, name := range techSignatures {
		if strings.Contains(probe, sig) {
			found[name] = true
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
