package models

import "time"

// Coupon is a discount code applied when a payment proof is approved.
type Coupon struct {
	ID              string     `db:"id" json:"id"`
	Code            string     `db:"code" json:"code"`
	DiscountPercent int        `db:"discount_percent" json:"discount_percent"`
	MaxUses         int        `db:"max_uses" json:"max_uses"`
	UsedCount       int        `db:"used_count" json:"used_count"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Active          bool       `db:"active" json:"active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// RegistrationToken is a one-shot invite link letting a student create
// their login.
type RegistrationToken struct {
	ID        string     `db:"id" json:"id"`
	Token     string     `db:"token" json:"token"`
	StudentID string     `db:"student_id" json:"student_id"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
