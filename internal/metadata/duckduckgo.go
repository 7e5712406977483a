package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultInstantAnswerURL = "https://api.duckduckgo.com"

// InstantAnswerClient queries the DuckDuckGo instant-answer API. Only genre
// hints are extracted from the returned abstract text; this source never
// yields a word count.
type InstantAnswerClient struct {
	baseURL string
	client  *http.Client
}

// NewInstantAnswerClient constructs the instant-answer client.
func NewInstantAnswerClient(baseURL string, timeout time.Duration) *InstantAnswerClient {
	if baseURL == "" {
		baseURL = defaultInstantAnswerURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &InstantAnswerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies the source in logs.
func (c *InstantAnswerClient) Name() string { return "instant-answer" }

type instantAnswerResponse struct {
	Abstract     string `json:"Abstract"`
	AbstractText string `json:"AbstractText"`
}

// Lookup scans the abstract for genre keywords.
func (c *InstantAnswerClient) Lookup(ctx context.Context, title, author string) (*Result, error) {
	query := fmt.Sprintf("%s/?q=%s&format=json&no_html=1", c.baseURL, url.QueryEscape(title+" "+author+" book"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, fmt.Errorf("build instant answer request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instant answer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instant answer responded %d", resp.StatusCode)
	}

	var payload instantAnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode instant answer: %w", err)
	}

	genres := GenresFromText(payload.AbstractText + " " + payload.Abstract)
	if len(genres) == 0 {
		return nil, nil
	}
	return &Result{Genres: genres}, nil
}
