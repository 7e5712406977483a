package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiread/lexiread-api/internal/models"
	"github.com/lexiread/lexiread-api/internal/repository"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

type mockBookRepo struct {
	books       map[string]*models.Book
	creditedTo  string
	creditedVal int
}

func newMockBookRepo(books ...*models.Book) *mockBookRepo {
	repo := &mockBookRepo{books: make(map[string]*models.Book)}
	for _, b := range books {
		repo.books[b.ID] = b
	}
	return repo
}

func (m *mockBookRepo) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = "book-new"
	}
	m.books[book.ID] = book
	return nil
}

func (m *mockBookRepo) FindByID(ctx context.Context, id string) (*models.Book, error) {
	if b, ok := m.books[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookRepo) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	var result []models.Book
	for _, b := range m.books {
		if filter.UserID != "" && b.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		result = append(result, *b)
	}
	return result, len(result), nil
}

func (m *mockBookRepo) Update(ctx context.Context, book *models.Book) error {
	m.books[book.ID] = book
	return nil
}

func (m *mockBookRepo) Approve(ctx context.Context, id, verifierID string, points int, note *string, at time.Time) error {
	b, ok := m.books[id]
	if !ok || b.Status != models.BookStatusPending {
		return repository.ErrNotPending
	}
	b.Status = models.BookStatusApproved
	b.VerifiedAt = &at
	b.VerifiedByID = &verifierID
	b.VerificationNote = note
	b.PointsAwarded = true
	b.PointsAwardedValue = points
	m.creditedTo = b.UserID
	m.creditedVal += points
	return nil
}

func (m *mockBookRepo) Reject(ctx context.Context, id, verifierID, note string, at time.Time) error {
	b, ok := m.books[id]
	if !ok || b.Status != models.BookStatusPending {
		return repository.ErrNotPending
	}
	b.Status = models.BookStatusRejected
	b.VerifiedAt = &at
	b.VerifiedByID = &verifierID
	b.VerificationNote = &note
	return nil
}

func (m *mockBookRepo) Delete(ctx context.Context, id string) error {
	b, ok := m.books[id]
	if !ok {
		return sql.ErrNoRows
	}
	if b.PointsAwarded {
		m.creditedVal -= b.PointsAwardedValue
	}
	delete(m.books, id)
	return nil
}

func (m *mockBookRepo) CountByStatus(ctx context.Context, userID string) (map[models.BookStatus]int, error) {
	counts := make(map[models.BookStatus]int)
	for _, b := range m.books {
		if b.UserID == userID {
			counts[b.Status]++
		}
	}
	return counts, nil
}

type mockLexileProvider struct {
	levels map[string]*int
}

func (m *mockLexileProvider) CurrentLexile(ctx context.Context, userID string) (*int, error) {
	return m.levels[userID], nil
}

type mockDispatcher struct {
	enqueued []string
}

func (m *mockDispatcher) EnqueueBook(bookID string) {
	m.enqueued = append(m.enqueued, bookID)
}

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) Invalidate(ctx context.Context) {
	m.calls++
}

type mockAuditor struct {
	logs []models.AuditLog
}

func (m *mockAuditor) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func librarianClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleLibrarian}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func pendingBook(id, owner string, lexile *int) *models.Book {
	return &models.Book{
		ID:          id,
		UserID:      owner,
		Title:       "The Hobbit",
		Author:      "J.R.R. Tolkien",
		Rating:      5,
		LexileLevel: lexile,
		Status:      models.BookStatusPending,
	}
}

func TestBookCreateDispatchesEnrichment(t *testing.T) {
	repo := newMockBookRepo()
	dispatcher := &mockDispatcher{}
	svc := NewBookService(repo, nil, dispatcher, nil, nil, nil, nil)

	book, err := svc.Create(context.Background(), studentClaims("stu-1"), CreateBookRequest{
		Title:  "The Hobbit",
		Author: "J.R.R. Tolkien",
		Rating: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookStatusPending, book.Status)
	assert.Equal(t, "stu-1", book.UserID)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, book.ID, dispatcher.enqueued[0])
}

func TestBookCreateCarriesOptionalMetadata(t *testing.T) {
	repo := newMockBookRepo()
	svc := NewBookService(repo, nil, nil, nil, nil, nil, nil)

	book, err := svc.Create(context.Background(), studentClaims("stu-1"), CreateBookRequest{
		Title:     "Holes",
		Author:    "Louis Sachar",
		Rating:    5,
		WordCount: intPtr(47000),
		Genres:    []string{"Adventure", "Mystery"},
	})
	require.NoError(t, err)
	require.NotNil(t, book.WordCount)
	assert.Equal(t, 47000, *book.WordCount)
	assert.Equal(t, []string{"Adventure", "Mystery"}, []string(book.Genres))

	stored, err := repo.FindByID(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Adventure", "Mystery"}, []string(stored.Genres))
}

func TestBookCreateRejectsNonStudents(t *testing.T) {
	svc := NewBookService(newMockBookRepo(), nil, nil, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), librarianClaims("lib-1"), CreateBookRequest{
		Title:  "The Hobbit",
		Author: "J.R.R. Tolkien",
		Rating: 4,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSuggestPoints(t *testing.T) {
	student := intPtr(700)

	cases := []struct {
		name string
		book *int
		want *int
	}{
		{"harder than student level", intPtr(750), intPtr(3)},
		{"within fifty below", intPtr(680), intPtr(2)},
		{"exactly fifty below", intPtr(650), intPtr(2)},
		{"well below", intPtr(600), intPtr(1)},
		{"unknown book level", nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SuggestPoints(tc.book, student)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}

	assert.Nil(t, SuggestPoints(intPtr(750), nil))
}

func TestVerifyApproveUsesSuggestedPoints(t *testing.T) {
	repo := newMockBookRepo(pendingBook("b1", "stu-1", intPtr(750)))
	invalidator := &mockInvalidator{}
	auditor := &mockAuditor{}
	lexiles := &mockLexileProvider{levels: map[string]*int{"stu-1": intPtr(700)}}
	svc := NewBookService(repo, lexiles, nil, invalidator, auditor, nil, nil)

	book, err := svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{Status: "APPROVED"})
	require.NoError(t, err)

	assert.Equal(t, models.BookStatusApproved, book.Status)
	assert.True(t, book.PointsAwarded)
	assert.Equal(t, 3, book.PointsAwardedValue)
	assert.Equal(t, "stu-1", repo.creditedTo)
	assert.Equal(t, 3, repo.creditedVal)
	assert.Equal(t, 1, invalidator.calls)
	require.Len(t, auditor.logs, 1)
	assert.Equal(t, models.AuditActionBookVerify, auditor.logs[0].Action)
}

func TestVerifyApproveExplicitPointsOverrideSuggestion(t *testing.T) {
	repo := newMockBookRepo(pendingBook("b1", "stu-1", intPtr(750)))
	lexiles := &mockLexileProvider{levels: map[string]*int{"stu-1": intPtr(700)}}
	svc := NewBookService(repo, lexiles, nil, nil, nil, nil, nil)

	book, err := svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{
		Status: "APPROVED",
		Points: intPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, book.PointsAwardedValue)
}

func TestVerifyApproveAcceptsLargeAward(t *testing.T) {
	repo := newMockBookRepo(pendingBook("b1", "stu-1", nil))
	svc := NewBookService(repo, nil, nil, nil, nil, nil, nil)

	// Awards are only bounded below; a big special-event award is valid.
	book, err := svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{
		Status: "APPROVED",
		Points: intPtr(150),
	})
	require.NoError(t, err)
	assert.Equal(t, 150, book.PointsAwardedValue)
}

func TestUpdateEditsWordCountAndGenres(t *testing.T) {
	book := pendingBook("b1", "stu-1", nil)
	book.Genres = []string{"Fantasy"}
	repo := newMockBookRepo(book)
	svc := NewBookService(repo, nil, nil, nil, nil, nil, nil)

	updated, err := svc.Update(context.Background(), studentClaims("stu-1"), "b1", UpdateBookRequest{
		WordCount: intPtr(95000),
		Genres:    []string{"Fantasy", "Adventure"},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.WordCount)
	assert.Equal(t, 95000, *updated.WordCount)
	assert.Equal(t, []string{"Fantasy", "Adventure"}, []string(updated.Genres))
	assert.Equal(t, models.BookStatusPending, updated.Status)

	// Omitting both fields leaves them unchanged.
	updated, err = svc.Update(context.Background(), studentClaims("stu-1"), "b1", UpdateBookRequest{
		Rating: intPtr(3),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.WordCount)
	assert.Equal(t, 95000, *updated.WordCount)
	assert.Equal(t, []string{"Fantasy", "Adventure"}, []string(updated.Genres))
}

func TestVerifyApproveWithoutComparisonNeedsPoints(t *testing.T) {
	repo := newMockBookRepo(pendingBook("b1", "stu-1", nil))
	lexiles := &mockLexileProvider{levels: map[string]*int{}}
	svc := NewBookService(repo, lexiles, nil, nil, nil, nil, nil)

	_, err := svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{Status: "APPROVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVerifyTwiceConflicts(t *testing.T) {
	repo := newMockBookRepo(pendingBook("b1", "stu-1", intPtr(750)))
	lexiles := &mockLexileProvider{levels: map[string]*int{"stu-1": intPtr(700)}}
	svc := NewBookService(repo, lexiles, nil, nil, nil, nil, nil)

	_, err := svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{Status: "APPROVED"})
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), librarianClaims("lib-2"), "b1", VerifyBookRequest{Status: "APPROVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyVerified.Code, appErrors.FromError(err).Code)

	// Points must have been credited exactly once.
	assert.Equal(t, 3, repo.creditedVal)
}

func TestVerifyRejectRequiresNote(t *testing.T) {
	repo := newMockBookRepo(pendingBook("b1", "stu-1", nil))
	svc := NewBookService(repo, nil, nil, nil, nil, nil, nil)

	_, err := svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{Status: "REJECTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{
		Status: "REJECTED",
		Note:   strPtr("   "),
	})
	require.Error(t, err)

	book, err := svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{
		Status: "REJECTED",
		Note:   strPtr("please log the full title"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookStatusRejected, book.Status)
	assert.False(t, book.PointsAwarded)
}

func TestVerifyRequiresLibrarian(t *testing.T) {
	repo := newMockBookRepo(pendingBook("b1", "stu-1", nil))
	svc := NewBookService(repo, nil, nil, nil, nil, nil, nil)

	_, err := svc.Verify(context.Background(), &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}, "b1", VerifyBookRequest{Status: "APPROVED", Points: intPtr(2)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDeleteReversesAwardedPoints(t *testing.T) {
	book := pendingBook("b1", "stu-1", intPtr(750))
	repo := newMockBookRepo(book)
	invalidator := &mockInvalidator{}
	lexiles := &mockLexileProvider{levels: map[string]*int{"stu-1": intPtr(700)}}
	svc := NewBookService(repo, lexiles, nil, invalidator, nil, nil, nil)

	_, err := svc.Verify(context.Background(), librarianClaims("lib-1"), "b1", VerifyBookRequest{Status: "APPROVED"})
	require.NoError(t, err)
	require.Equal(t, 3, repo.creditedVal)

	err = svc.Delete(context.Background(), studentClaims("stu-1"), "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, repo.creditedVal)
	assert.Equal(t, 2, invalidator.calls)
}

func TestDeleteForbiddenForOtherStudents(t *testing.T) {
	repo := newMockBookRepo(pendingBook("b1", "stu-1", nil))
	svc := NewBookService(repo, nil, nil, nil, nil, nil, nil)

	err := svc.Delete(context.Background(), studentClaims("stu-2"), "b1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListForcesStudentScope(t *testing.T) {
	repo := newMockBookRepo(
		pendingBook("b1", "stu-1", nil),
		pendingBook("b2", "stu-2", nil),
	)
	svc := NewBookService(repo, nil, nil, nil, nil, nil, nil)

	books, total, err := svc.List(context.Background(), studentClaims("stu-1"), ListBooksRequest{UserID: "stu-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, books, 1)
	assert.Equal(t, "stu-1", books[0].UserID)
}

func TestSummaryCounts(t *testing.T) {
	approved := pendingBook("b2", "stu-1", nil)
	approved.Status = models.BookStatusApproved
	repo := newMockBookRepo(pendingBook("b1", "stu-1", nil), approved)
	svc := NewBookService(repo, nil, nil, nil, nil, nil, nil)

	summary, err := svc.Summary(context.Background(), studentClaims("stu-1"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, 0, summary.Rejected)
}
