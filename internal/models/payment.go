package models

import "time"

// PaymentProofStatus represents the review state of an uploaded proof.
type PaymentProofStatus string

// Possible review states.
const (
	PaymentProofStatusPending  PaymentProofStatus = "PENDING"
	PaymentProofStatusApproved PaymentProofStatus = "APPROVED"
	PaymentProofStatusRejected PaymentProofStatus = "REJECTED"
)

// PaymentProof is a transfer receipt uploaded by a student. Approval by
// the trainer creates the corresponding credit batch.
type PaymentProof struct {
	ID          string             `db:"id" json:"id"`
	StudentID   string             `db:"student_id" json:"student_id"`
	FilePath    string             `db:"file_path" json:"file_path"`
	Amount      float64            `db:"amount" json:"amount"`
	Classes     int                `db:"classes" json:"classes"`
	CouponCode  *string            `db:"coupon_code" json:"coupon_code,omitempty"`
	Status      PaymentProofStatus `db:"status" json:"status"`
	ReviewedAt  *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes *string            `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// PaymentProofDetail enriches PaymentProof with student info.
type PaymentProofDetail struct {
	PaymentProof
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
}

// PaymentProofFilter provides filters for listing proofs.
type PaymentProofFilter struct {
	StudentID string
	Status    PaymentProofStatus
	Page      int
	PageSize  int
}
