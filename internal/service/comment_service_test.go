package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiread/lexiread-api/internal/models"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

type mockCommentRepo struct {
	comments map[string]*models.Comment
}

func newMockCommentRepo(comments ...*models.Comment) *mockCommentRepo {
	repo := &mockCommentRepo{comments: make(map[string]*models.Comment)}
	for _, c := range comments {
		repo.comments[c.ID] = c
	}
	return repo
}

func (m *mockCommentRepo) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = "c-new"
	}
	m.comments[comment.ID] = comment
	return nil
}

func (m *mockCommentRepo) FindByID(ctx context.Context, id string) (*models.Comment, error) {
	if c, ok := m.comments[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCommentRepo) ListByBook(ctx context.Context, bookID string) ([]models.CommentDetail, error) {
	var details []models.CommentDetail
	for _, c := range m.comments {
		if c.BookID == bookID {
			details = append(details, models.CommentDetail{Comment: *c})
		}
	}
	return details, nil
}

func (m *mockCommentRepo) React(ctx context.Context, id string) (int, error) {
	c, ok := m.comments[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	c.Reactions++
	return c.Reactions, nil
}

func (m *mockCommentRepo) Delete(ctx context.Context, id string) error {
	delete(m.comments, id)
	return nil
}

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func TestCommentCreateRequiresTeacherCapability(t *testing.T) {
	books := newMockBookRepo(pendingBook("b1", "stu-1", nil))
	repo := newMockCommentRepo()
	svc := NewCommentService(repo, books, nil, nil)

	_, err := svc.Create(context.Background(), studentClaims("stu-1"), "b1", CreateCommentRequest{Content: "nice"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	comment, err := svc.Create(context.Background(), teacherClaims("tch-1"), "b1", CreateCommentRequest{Content: "  great summary  "})
	require.NoError(t, err)
	assert.Equal(t, "great summary", comment.Content)
	assert.Equal(t, "tch-1", comment.UserID)
}

func TestCommentCreateMissingBook(t *testing.T) {
	svc := NewCommentService(newMockCommentRepo(), newMockBookRepo(), nil, nil)

	_, err := svc.Create(context.Background(), teacherClaims("tch-1"), "gone", CreateCommentRequest{Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReactCountsUpForAnyAuthenticatedUser(t *testing.T) {
	repo := newMockCommentRepo(&models.Comment{ID: "c1", BookID: "b1", UserID: "tch-1"})
	svc := NewCommentService(repo, newMockBookRepo(), nil, nil)

	count, err := svc.React(context.Background(), studentClaims("stu-9"), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// No dedup: the same user can react again.
	count, err = svc.React(context.Background(), studentClaims("stu-9"), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = svc.React(context.Background(), studentClaims("stu-9"), "gone")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCommentDeleteAuthorOrLibrarian(t *testing.T) {
	repo := newMockCommentRepo(&models.Comment{ID: "c1", BookID: "b1", UserID: "tch-1"})
	svc := NewCommentService(repo, newMockBookRepo(), nil, nil)

	err := svc.Delete(context.Background(), teacherClaims("tch-2"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), librarianClaims("lib-1"), "c1"))
	assert.Empty(t, repo.comments)
}

func TestListByBookScopedToOwnerAndStaff(t *testing.T) {
	books := newMockBookRepo(pendingBook("b1", "stu-1", nil))
	repo := newMockCommentRepo(&models.Comment{ID: "c1", BookID: "b1", UserID: "tch-1"})
	svc := NewCommentService(repo, books, nil, nil)

	_, err := svc.ListByBook(context.Background(), studentClaims("stu-2"), "b1")
	require.Error(t, err)

	comments, err := svc.ListByBook(context.Background(), studentClaims("stu-1"), "b1")
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	comments, err = svc.ListByBook(context.Background(), teacherClaims("tch-9"), "b1")
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}
