package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexiread/lexiread-api/internal/metadata"
	"github.com/lexiread/lexiread-api/internal/models"
	"github.com/lexiread/lexiread-api/pkg/jobs"
)

// JobTypeEnrichBook is the queue job type for metadata enrichment.
const JobTypeEnrichBook = "book.enrich"

type enrichmentBookStore interface {
	FindByID(ctx context.Context, id string) (*models.Book, error)
	SetWordCountIfMissing(ctx context.Context, id string, wordCount int) error
	SetGenres(ctx context.Context, id string, genres []string) error
}

type metadataSource interface {
	Name() string
	Lookup(ctx context.Context, title, author string) (*metadata.Result, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// EnrichmentService fills in missing book metadata from external sources.
// Everything here is best effort: a submission is complete without
// enrichment, failures are logged and dropped, and a job never runs twice
// for the same submission.
type EnrichmentService struct {
	books   enrichmentBookStore
	queue   jobQueue
	metrics *MetricsService
	logger  *zap.Logger

	// Sources in priority order. The catalog runs first; the scraper and
	// the search sources only run while a word count is still missing.
	catalog       metadataSource
	readingLength metadataSource
	instantAnswer metadataSource
	webSearch     metadataSource
}

// NewEnrichmentService constructs the service. Any nil source is skipped.
func NewEnrichmentService(books enrichmentBookStore, catalog, readingLength, instantAnswer, webSearch metadataSource, logger *zap.Logger) *EnrichmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrichmentService{
		books:         books,
		logger:        logger,
		catalog:       catalog,
		readingLength: readingLength,
		instantAnswer: instantAnswer,
		webSearch:     webSearch,
	}
}

// SetQueue attaches the dispatcher. Called once during wiring; the queue
// handler closes over this service, so construction is two-phase.
func (s *EnrichmentService) SetQueue(q jobQueue) {
	s.queue = q
}

// SetMetrics attaches optional instrumentation.
func (s *EnrichmentService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// EnqueueBook schedules enrichment for a book. Dispatch failures are logged
// and swallowed; the caller's submission has already succeeded.
func (s *EnrichmentService) EnqueueBook(bookID string) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeEnrichBook,
		Payload: bookID,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("enrichment dispatch failed", zap.String("book_id", bookID), zap.Error(err))
	}
}

// HandleJob is the queue handler. It always returns nil so the queue never
// treats enrichment as retryable; all failures are terminal for the job.
func (s *EnrichmentService) HandleJob(ctx context.Context, job jobs.Job) error {
	bookID, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("enrichment job with unexpected payload", zap.String("job_id", job.ID), zap.Any("payload", job.Payload))
		return nil
	}
	if err := s.Enrich(ctx, bookID); err != nil {
		s.logger.Warn("enrichment failed", zap.String("book_id", bookID), zap.Error(err))
	}
	return nil
}

// Enrich runs the source chain for one book and persists whatever was
// found. Word counts never overwrite an existing value; genres only grow.
func (s *EnrichmentService) Enrich(ctx context.Context, bookID string) error {
	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Deleted between submission and pickup; nothing to do.
			return nil
		}
		return fmt.Errorf("load book for enrichment: %w", err)
	}

	wordCount := 0
	if book.WordCount != nil {
		wordCount = *book.WordCount
	}
	genres := append([]string(nil), book.Genres...)

	found := s.lookup(ctx, s.catalog, book)
	wordCount, genres = absorb(wordCount, genres, found)

	if wordCount == 0 {
		found = s.lookup(ctx, s.readingLength, book)
		wordCount, genres = absorb(wordCount, genres, found)
	}
	if wordCount == 0 {
		found = s.lookup(ctx, s.instantAnswer, book)
		wordCount, genres = absorb(wordCount, genres, found)
	}
	if wordCount == 0 {
		found = s.lookup(ctx, s.webSearch, book)
		wordCount, genres = absorb(wordCount, genres, found)
	}

	if wordCount > 0 && book.WordCount == nil {
		if err := s.books.SetWordCountIfMissing(ctx, bookID, wordCount); err != nil {
			s.logger.Warn("persist word count failed", zap.String("book_id", bookID), zap.Error(err))
		}
	}

	merged := metadata.MergeGenres(book.Genres, genres)
	if len(merged) > len(book.Genres) {
		if err := s.books.SetGenres(ctx, bookID, merged); err != nil {
			s.logger.Warn("persist genres failed", zap.String("book_id", bookID), zap.Error(err))
		}
	}

	s.logger.Info("enrichment finished",
		zap.String("book_id", bookID),
		zap.Int("word_count", wordCount),
		zap.Int("genres", len(merged)))
	return nil
}

func (s *EnrichmentService) lookup(ctx context.Context, source metadataSource, book *models.Book) *metadata.Result {
	if source == nil {
		return nil
	}
	result, err := source.Lookup(ctx, book.Title, book.Author)
	if err != nil {
		s.metrics.RecordEnrichmentLookup(source.Name(), "error")
		s.logger.Debug("metadata source failed",
			zap.String("source", source.Name()),
			zap.String("book_id", book.ID),
			zap.Error(err))
		return nil
	}
	if result == nil || result.Empty() {
		s.metrics.RecordEnrichmentLookup(source.Name(), "empty")
		return result
	}
	s.metrics.RecordEnrichmentLookup(source.Name(), "found")
	return result
}

// absorb folds a lookup result into the running state. A word count already
// held is never replaced; genres accumulate.
func absorb(wordCount int, genres []string, found *metadata.Result) (int, []string) {
	if found == nil {
		return wordCount, genres
	}
	if wordCount == 0 && found.WordCount > 0 {
		wordCount = found.WordCount
	}
	if len(found.Genres) > 0 {
		genres = metadata.MergeGenres(genres, found.Genres)
	}
	return wordCount, genres
}
