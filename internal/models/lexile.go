package models

import "time"

// Lexile bounds accepted anywhere a score is written.
const (
	LexileMin = 0
	LexileMax = 2000
)

// StudentLexile is one literacy assessment, unique per (user, term, year).
type StudentLexile struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Term      int       `db:"term" json:"term"`
	Year      int       `db:"year" json:"year"`
	Lexile    int       `db:"lexile" json:"lexile"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BulkLineStatus labels the outcome of one bulk-upload line.
type BulkLineStatus string

const (
	BulkLineSuccess BulkLineStatus = "success"
	BulkLineError   BulkLineStatus = "error"
)

// BulkLineResult reports the outcome of a single line of a bulk upload.
// Line numbers are 1-based.
type BulkLineResult struct {
	Line   int            `json:"line"`
	Name   string         `json:"name"`
	Status BulkLineStatus `json:"status"`
	Lexile *int           `json:"lexile,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// BulkUploadSummary aggregates a bulk upload run.
type BulkUploadSummary struct {
	Results   []BulkLineResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

// ClassOverviewRow projects one student's three term scores for a year plus
// trend deltas. CurrentLexile is the latest non-null of term3, term2, term1
// in that priority order, independent of the calendar term.
type ClassOverviewRow struct {
	UserID        string  `json:"user_id"`
	FullName      string  `json:"full_name"`
	Grade         *string `json:"grade,omitempty"`
	ClassName     *string `json:"class_name,omitempty"`
	Term1         *int    `json:"term1"`
	Term2         *int    `json:"term2"`
	Term3         *int    `json:"term3"`
	Trend12       *int    `json:"trend12"`
	Trend23       *int    `json:"trend23"`
	CurrentLexile *int    `json:"current_lexile"`
}
