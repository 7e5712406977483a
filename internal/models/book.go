package models

import (
	"time"

	"github.com/lib/pq"
)

// BookStatus tracks a book log through the verification workflow.
type BookStatus string

const (
	BookStatusPending  BookStatus = "PENDING"
	BookStatusApproved BookStatus = "APPROVED"
	BookStatusRejected BookStatus = "REJECTED"
)

// Valid reports whether the status is a known variant.
func (s BookStatus) Valid() bool {
	switch s {
	case BookStatusPending, BookStatusApproved, BookStatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further verification transition is allowed.
func (s BookStatus) Terminal() bool {
	return s == BookStatusApproved || s == BookStatusRejected
}

// Book represents a student's reading log entry.
type Book struct {
	ID                 string         `db:"id" json:"id"`
	UserID             string         `db:"user_id" json:"user_id"`
	Title              string         `db:"title" json:"title"`
	Author             string         `db:"author" json:"author"`
	Rating             int            `db:"rating" json:"rating"`
	Comment            *string        `db:"comment" json:"comment,omitempty"`
	LexileLevel        *int           `db:"lexile_level" json:"lexile_level,omitempty"`
	WordCount          *int           `db:"word_count" json:"word_count,omitempty"`
	Genres             pq.StringArray `db:"genres" json:"genres,omitempty"`
	AgeRange           *string        `db:"age_range" json:"age_range,omitempty"`
	CoverURL           *string        `db:"cover_url" json:"cover_url,omitempty"`
	Status             BookStatus     `db:"status" json:"status"`
	VerificationNote   *string        `db:"verification_note" json:"verification_note,omitempty"`
	VerifiedAt         *time.Time     `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedByID       *string        `db:"verified_by" json:"verified_by,omitempty"`
	PointsAwarded      bool           `db:"points_awarded" json:"points_awarded"`
	PointsAwardedValue int            `db:"points_awarded_value" json:"points_awarded_value"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// BookFilter captures filtering criteria for listing books.
type BookFilter struct {
	UserID    string
	Status    *BookStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
