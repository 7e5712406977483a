package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultOpenLibraryURL = "https://openlibrary.org"

// OpenLibraryClient queries the Open Library search API for word count and
// genre hints.
type OpenLibraryClient struct {
	baseURL string
	client  *http.Client
}

// NewOpenLibraryClient constructs the catalog client. An empty baseURL uses
// the public endpoint.
func NewOpenLibraryClient(baseURL string, timeout time.Duration) *OpenLibraryClient {
	if baseURL == "" {
		baseURL = defaultOpenLibraryURL
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &OpenLibraryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies the source in logs.
func (c *OpenLibraryClient) Name() string { return "openlibrary" }

type openLibraryDoc struct {
	Title               string   `json:"title"`
	AuthorName          []string `json:"author_name"`
	Subject             []string `json:"subject"`
	NumberOfPagesMedian int      `json:"number_of_pages_median"`
}

type openLibraryResponse struct {
	Docs []openLibraryDoc `json:"docs"`
}

// Lookup runs structured then free-text query permutations, picks the best
// fuzzy title+author match (falling back to the first doc), and derives
// genres from subject tags and word count from the median page count.
func (c *OpenLibraryClient) Lookup(ctx context.Context, title, author string) (*Result, error) {
	queries := []string{
		fmt.Sprintf("%s/search.json?title=%s&author=%s&limit=10", c.baseURL, url.QueryEscape(title), url.QueryEscape(author)),
		fmt.Sprintf("%s/search.json?q=%s&limit=10", c.baseURL, url.QueryEscape(title+" "+author)),
	}

	for _, query := range queries {
		docs, err := c.search(ctx, query)
		if err != nil || len(docs) == 0 {
			continue
		}

		doc := pickBestDoc(docs, title, author)
		result := &Result{Genres: GenresFromSubjects(doc.Subject)}
		if wc := WordCountFromPages(doc.NumberOfPagesMedian); wc > 0 {
			result.WordCount = wc
		}
		if !result.Empty() {
			return result, nil
		}
	}

	return nil, nil
}

func (c *OpenLibraryClient) search(ctx context.Context, query string) ([]openLibraryDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog responded %d", resp.StatusCode)
	}

	var payload openLibraryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return payload.Docs, nil
}

func pickBestDoc(docs []openLibraryDoc, title, author string) openLibraryDoc {
	for _, doc := range docs {
		if !fuzzyMatch(doc.Title, title) {
			continue
		}
		for _, name := range doc.AuthorName {
			if fuzzyMatch(name, author) {
				return doc
			}
		}
	}
	return docs[0]
}
