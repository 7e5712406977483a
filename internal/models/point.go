package models

import "time"

// Point holds the accumulated point total for one student. There is at most
// one row per user; awards and reversals mutate total_points atomically.
type Point struct {
	UserID      string    `db:"user_id" json:"user_id"`
	TotalPoints int       `db:"total_points" json:"total_points"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// LeaderboardEntry is a points row joined with its owning student.
type LeaderboardEntry struct {
	UserID      string  `db:"user_id" json:"user_id"`
	FullName    string  `db:"full_name" json:"full_name"`
	Grade       *string `db:"grade" json:"grade,omitempty"`
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
	TotalPoints int     `db:"total_points" json:"total_points"`
}
