package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultWebSearchURL = "https://html.duckduckgo.com/html"

// Retail pages list prices and review counts, not word counts; following
// them produces garbage numbers, so they are skipped outright.
var retailDomains = []string{
	"amazon.",
	"ebay.",
	"barnesandnoble.",
	"walmart.",
	"target.",
	"abebooks.",
	"bookdepository.",
	"thriftbooks.",
}

var resultLinkPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)

// WebSearchClient is the last-resort source: run a general web search for
// the book's word count and scan snippets plus the top organic result pages
// with the fixed word-count patterns.
type WebSearchClient struct {
	baseURL  string
	client   *http.Client
	maxPages int
}

// NewWebSearchClient constructs the web-search client.
func NewWebSearchClient(baseURL string, timeout time.Duration) *WebSearchClient {
	if baseURL == "" {
		baseURL = defaultWebSearchURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebSearchClient{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
		maxPages: 3,
	}
}

// Name identifies the source in logs.
func (c *WebSearchClient) Name() string { return "websearch" }

// Lookup finds a word count only.
func (c *WebSearchClient) Lookup(ctx context.Context, title, author string) (*Result, error) {
	query := fmt.Sprintf("%s/?q=%s", c.baseURL, url.QueryEscape(fmt.Sprintf("%q %s word count", title, author)))
	page, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	// Snippets on the results page are often enough.
	if wc := ParseWordCount(page); wc > 0 {
		return &Result{WordCount: wc}, nil
	}

	fetched := 0
	for _, match := range resultLinkPattern.FindAllStringSubmatch(page, -1) {
		link := match[1]
		if fetched >= c.maxPages {
			break
		}
		if isRetail(link) || strings.Contains(link, "duckduckgo.com") {
			continue
		}
		fetched++

		body, err := c.fetch(ctx, link)
		if err != nil {
			continue
		}
		if wc := ParseWordCount(body); wc > 0 {
			return &Result{WordCount: wc}, nil
		}
	}

	return nil, nil
}

func (c *WebSearchClient) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; lexiread/1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search target responded %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	return string(body), nil
}

func isRetail(link string) bool {
	link = strings.ToLower(link)
	for _, domain := range retailDomains {
		if strings.Contains(link, domain) {
			return true
		}
	}
	return false
}
