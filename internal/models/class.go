package models

import "time"

// ClassStatus represents the lifecycle of a scheduled class.
type ClassStatus string

// Possible class statuses.
const (
	ClassStatusScheduled ClassStatus = "SCHEDULED"
	ClassStatusCompleted ClassStatus = "COMPLETED"
	ClassStatusCancelled ClassStatus = "CANCELLED"
)

// Class is a single training session with a capacity counter. The
// current_bookings column is only ever mutated through conditional
// UPDATEs so it stays consistent with confirmed bookings.
type Class struct {
	ID              string      `db:"id" json:"id"`
	ScheduledAt     time.Time   `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int         `db:"duration_minutes" json:"duration_minutes"`
	MaxCapacity     int         `db:"max_capacity" json:"max_capacity"`
	CurrentBookings int         `db:"current_bookings" json:"current_bookings"`
	Status          ClassStatus `db:"status" json:"status"`
	Notes           string      `db:"notes" json:"notes"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassFilter provides filters for listing classes.
type ClassFilter struct {
	Status    ClassStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// BulkGenerateResult reports the outcome of generating a class series.
type BulkGenerateResult struct {
	Created int `json:"created"`
	Errors  int `json:"errors"`
}
