package models

import "time"

// BookingStatus represents the lifecycle of a booking.
type BookingStatus string

// Possible booking statuses. Completed and cancelled are terminal.
const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Booking captures a student's reservation for a class. One booking per
// (class, student) pair is enforced at creation.
type Booking struct {
	ID                 string        `db:"id" json:"id"`
	ClassID            string        `db:"class_id" json:"class_id"`
	StudentID          string        `db:"student_id" json:"student_id"`
	Status             BookingStatus `db:"status" json:"status"`
	CancelledAt        *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	IsLateCancellation bool          `db:"is_late_cancellation" json:"is_late_cancellation"`
	Reminder24hSent    bool          `db:"reminder_24h_sent" json:"reminder_24h_sent"`
	Reminder2hSent     bool          `db:"reminder_2h_sent" json:"reminder_2h_sent"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingDetail enriches Booking with class and student info.
type BookingDetail struct {
	Booking
	ScheduledAt  time.Time `db:"scheduled_at" json:"scheduled_at"`
	StudentName  string    `db:"student_name" json:"student_name"`
	StudentEmail string    `db:"student_email" json:"student_email"`
	StudentPhone string    `db:"student_phone" json:"student_phone"`
}

// BookingFilter provides filters for listing bookings.
type BookingFilter struct {
	StudentID string
	ClassID   string
	Status    BookingStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
