package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiread/lexiread-api/internal/metadata"
	"github.com/lexiread/lexiread-api/internal/models"
	"github.com/lexiread/lexiread-api/pkg/jobs"
)

type mockBookStore struct {
	books     map[string]*models.Book
	wordCount map[string]int
	genres    map[string][]string
}

func newMockBookStore(books ...*models.Book) *mockBookStore {
	store := &mockBookStore{
		books:     make(map[string]*models.Book),
		wordCount: make(map[string]int),
		genres:    make(map[string][]string),
	}
	for _, b := range books {
		store.books[b.ID] = b
	}
	return store
}

func (m *mockBookStore) FindByID(ctx context.Context, id string) (*models.Book, error) {
	if b, ok := m.books[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookStore) SetWordCountIfMissing(ctx context.Context, id string, wordCount int) error {
	if b := m.books[id]; b != nil && b.WordCount == nil {
		m.wordCount[id] = wordCount
	}
	return nil
}

func (m *mockBookStore) SetGenres(ctx context.Context, id string, genres []string) error {
	m.genres[id] = genres
	return nil
}

type stubSource struct {
	name   string
	result *metadata.Result
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Lookup(ctx context.Context, title, author string) (*metadata.Result, error) {
	s.calls++
	return s.result, s.err
}

type mockQueue struct {
	jobs []jobs.Job
	err  error
}

func (m *mockQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func enrichable(id string) *models.Book {
	return &models.Book{ID: id, Title: "Holes", Author: "Louis Sachar", UserID: "stu-1", Status: models.BookStatusPending}
}

func TestEnrichStopsAfterCatalogHit(t *testing.T) {
	store := newMockBookStore(enrichable("b1"))
	catalog := &stubSource{name: "openlibrary", result: &metadata.Result{WordCount: 47000, Genres: []string{"Adventure"}}}
	scraper := &stubSource{name: "readinglength", result: &metadata.Result{WordCount: 99999}}
	svc := NewEnrichmentService(store, catalog, scraper, nil, nil, nil)

	require.NoError(t, svc.Enrich(context.Background(), "b1"))

	assert.Equal(t, 1, catalog.calls)
	assert.Equal(t, 0, scraper.calls, "later sources skipped once a word count exists")
	assert.Equal(t, 47000, store.wordCount["b1"])
	assert.Equal(t, []string{"Adventure"}, store.genres["b1"])
}

func TestEnrichFallsThroughOnMisses(t *testing.T) {
	store := newMockBookStore(enrichable("b1"))
	catalog := &stubSource{name: "openlibrary", result: &metadata.Result{Genres: []string{"Adventure"}}}
	scraper := &stubSource{name: "readinglength", err: errors.New("timeout")}
	instant := &stubSource{name: "duckduckgo", result: &metadata.Result{}}
	search := &stubSource{name: "websearch", result: &metadata.Result{WordCount: 46000}}
	svc := NewEnrichmentService(store, catalog, scraper, instant, search, nil)

	require.NoError(t, svc.Enrich(context.Background(), "b1"))

	assert.Equal(t, 1, scraper.calls)
	assert.Equal(t, 1, instant.calls)
	assert.Equal(t, 1, search.calls)
	assert.Equal(t, 46000, store.wordCount["b1"])
	assert.Equal(t, []string{"Adventure"}, store.genres["b1"])
}

func TestEnrichNeverOverwritesWordCount(t *testing.T) {
	existing := 45000
	book := enrichable("b1")
	book.WordCount = &existing
	store := newMockBookStore(book)
	catalog := &stubSource{name: "openlibrary", result: &metadata.Result{WordCount: 99999}}
	scraper := &stubSource{name: "readinglength", result: &metadata.Result{WordCount: 12345}}
	svc := NewEnrichmentService(store, catalog, scraper, nil, nil, nil)

	require.NoError(t, svc.Enrich(context.Background(), "b1"))

	_, wrote := store.wordCount["b1"]
	assert.False(t, wrote, "existing word count must stay untouched")
	assert.Equal(t, 0, scraper.calls, "a book with a word count never falls through")
}

func TestEnrichGenresOnlyGrow(t *testing.T) {
	book := enrichable("b1")
	book.Genres = []string{"Adventure", "Drama"}
	store := newMockBookStore(book)

	// Same genres differing only by case must not trigger a write.
	catalog := &stubSource{name: "openlibrary", result: &metadata.Result{WordCount: 47000, Genres: []string{"adventure", "DRAMA"}}}
	svc := NewEnrichmentService(store, catalog, nil, nil, nil, nil)
	require.NoError(t, svc.Enrich(context.Background(), "b1"))
	_, wrote := store.genres["b1"]
	assert.False(t, wrote)

	// A genuinely new genre is appended after the existing ones.
	catalog.result = &metadata.Result{Genres: []string{"Mystery", "adventure"}}
	book.WordCount = intPtr(47000)
	require.NoError(t, svc.Enrich(context.Background(), "b1"))
	assert.Equal(t, []string{"Adventure", "Drama", "Mystery"}, store.genres["b1"])
}

func TestEnrichDeletedBookIsNoop(t *testing.T) {
	store := newMockBookStore()
	catalog := &stubSource{name: "openlibrary", result: &metadata.Result{WordCount: 47000}}
	svc := NewEnrichmentService(store, catalog, nil, nil, nil, nil)

	require.NoError(t, svc.Enrich(context.Background(), "gone"))
	assert.Equal(t, 0, catalog.calls)
}

func TestHandleJobNeverRetries(t *testing.T) {
	store := newMockBookStore()
	svc := NewEnrichmentService(store, nil, nil, nil, nil, nil)

	// Bad payload type.
	err := svc.HandleJob(context.Background(), jobs.Job{ID: "j1", Type: JobTypeEnrichBook, Payload: 42})
	assert.NoError(t, err)

	// Missing book.
	err = svc.HandleJob(context.Background(), jobs.Job{ID: "j2", Type: JobTypeEnrichBook, Payload: "gone"})
	assert.NoError(t, err)
}

func TestEnqueueBookSwallowsDispatchFailure(t *testing.T) {
	store := newMockBookStore()
	svc := NewEnrichmentService(store, nil, nil, nil, nil, nil)

	// Without a queue enqueue is a no-op.
	svc.EnqueueBook("b1")

	queue := &mockQueue{err: errors.New("queue full")}
	svc.SetQueue(queue)
	svc.EnqueueBook("b1")

	queue.err = nil
	svc.EnqueueBook("b1")
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeEnrichBook, queue.jobs[0].Type)
	assert.Equal(t, "b1", queue.jobs[0].Payload)
}
