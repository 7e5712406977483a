package models

import "time"

// Comment is teacher feedback left on a book log. Reactions is a plain
// counter; no record is kept of who reacted.
type Comment struct {
	ID        string    `db:"id" json:"id"`
	BookID    string    `db:"book_id" json:"book_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	Reactions int       `db:"reactions" json:"reactions"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CommentDetail joins the author's display name for listings.
type CommentDetail struct {
	Comment
	AuthorName string   `db:"author_name" json:"author_name"`
	AuthorRole UserRole `db:"author_role" json:"author_role"`
}
