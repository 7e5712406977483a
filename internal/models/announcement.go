package models

import "time"

// Announcement is a school-wide message visible to all authenticated users.
type Announcement struct {
	ID        string    `db:"id" json:"id"`
	Message   string    `db:"message" json:"message"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AnnouncementDetail joins the creator's display name for listings.
type AnnouncementDetail struct {
	Announcement
	CreatedByName string `db:"created_by_name" json:"created_by_name"`
}
