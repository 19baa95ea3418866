package models

import "time"

// Student represents a client of the training studio.
type Student struct {
	ID            string    `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Email         string    `db:"email" json:"email"`
	Phone         string    `db:"phone" json:"phone"`
	FrequencyCode string    `db:"frequency_code" json:"frequency_code"`
	Notes         string    `db:"notes" json:"notes"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search        string
	FrequencyCode string
	Active        *bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// StudentDetail contains student information with plan and credit context.
type StudentDetail struct {
	Student
	FrequencyName    *string  `db:"frequency_name" json:"frequency_name,omitempty"`
	ClassesPerWeek   *int     `db:"classes_per_week" json:"classes_per_week,omitempty"`
	PricePerClass    *float64 `db:"price_per_class" json:"price_per_class,omitempty"`
	RemainingCredits int      `db:"remaining_credits" json:"remaining_credits"`
}

// Frequency is a subscription plan row from frequency_prices. The code
// doubles as the lookup key for the late-cancellation tolerance table.
type Frequency struct {
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	ClassesPerWeek int       `db:"classes_per_week" json:"classes_per_week"`
	PricePerClass  float64   `db:"price_per_class" json:"price_per_class"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
