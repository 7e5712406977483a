package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

const defaultReadingLengthURL = "https://www.readinglength.com"

var detailLinkPattern = regexp.MustCompile(`href="(/book/[^"]+)"`)

// ReadingLengthClient scrapes a reading-time site for direct word counts:
// search by title and author, follow the first detail link, then extract a
// word count (or a page count converted at the fixed estimate) from the
// page text.
type ReadingLengthClient struct {
	baseURL string
	client  *http.Client
}

// NewReadingLengthClient constructs the scraper client.
func NewReadingLengthClient(baseURL string, timeout time.Duration) *ReadingLengthClient {
	if baseURL == "" {
		baseURL = defaultReadingLengthURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ReadingLengthClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies the source in logs.
func (c *ReadingLengthClient) Name() string { return "readinglength" }

// Lookup finds a word count only; this source carries no genre data.
func (c *ReadingLengthClient) Lookup(ctx context.Context, title, author string) (*Result, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(title+" "+author))
	searchPage, err := c.fetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	match := detailLinkPattern.FindStringSubmatch(searchPage)
	if match == nil {
		return nil, nil
	}

	detailPage, err := c.fetch(ctx, c.baseURL+match[1])
	if err != nil {
		return nil, err
	}

	if wc := ParseWordCount(detailPage); wc > 0 {
		return &Result{WordCount: wc}, nil
	}
	if wc := WordCountFromPages(ParsePageCount(detailPage)); wc > 0 {
		return &Result{WordCount: wc}, nil
	}
	return nil, nil
}

func (c *ReadingLengthClient) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build scrape request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scrape target responded %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read scrape response: %w", err)
	}
	return string(body), nil
}
