package models

import "time"

// CreditBatchStatus represents the lifecycle of a credit batch.
type CreditBatchStatus string

// Possible batch statuses. Depleted is implied by a zero remaining
// balance; expired is set only by the expiration sweep.
const (
	CreditBatchStatusActive   CreditBatchStatus = "ACTIVE"
	CreditBatchStatusDepleted CreditBatchStatus = "DEPLETED"
	CreditBatchStatusExpired  CreditBatchStatus = "EXPIRED"
)

// CreditBatch is a block of purchased class credits with an expiration
// date. Batches are never deleted; the transaction log is the audit trail.
type CreditBatch struct {
	ID               string            `db:"id" json:"id"`
	StudentID        string            `db:"student_id" json:"student_id"`
	PaymentProofID   *string           `db:"payment_proof_id" json:"payment_proof_id,omitempty"`
	ClassesPurchased int               `db:"classes_purchased" json:"classes_purchased"`
	ClassesRemaining int               `db:"classes_remaining" json:"classes_remaining"`
	PricePerClass    float64           `db:"price_per_class" json:"price_per_class"`
	FrequencyCode    string            `db:"frequency_code" json:"frequency_code"`
	PurchasedAt      time.Time         `db:"purchased_at" json:"purchased_at"`
	ExpiresAt        time.Time         `db:"expires_at" json:"expires_at"`
	Status           CreditBatchStatus `db:"status" json:"status"`
}

// CreditTransactionType labels a ledger entry.
type CreditTransactionType string

// Ledger entry types.
const (
	CreditTxPurchase         CreditTransactionType = "purchase"
	CreditTxAttendance       CreditTransactionType = "attendance"
	CreditTxAdjustment       CreditTransactionType = "adjustment"
	CreditTxExpiration       CreditTransactionType = "expiration"
	CreditTxLateCancellation CreditTransactionType = "late_cancellation"
)

// CreditTransaction is an immutable, append-only ledger row. Amount is
// signed: positive for grants, negative for consumption.
type CreditTransaction struct {
	ID            string                `db:"id" json:"id"`
	CreditBatchID string                `db:"credit_batch_id" json:"credit_batch_id"`
	StudentID     string                `db:"student_id" json:"student_id"`
	BookingID     *string               `db:"booking_id" json:"booking_id,omitempty"`
	Type          CreditTransactionType `db:"type" json:"type"`
	Amount        int                   `db:"amount" json:"amount"`
	BalanceAfter  int                   `db:"balance_after" json:"balance_after"`
	Notes         string                `db:"notes" json:"notes"`
	CreatedAt     time.Time             `db:"created_at" json:"created_at"`
}

// CreditSummary aggregates a student's usable balance.
type CreditSummary struct {
	StudentID        string     `db:"student_id" json:"student_id"`
	RemainingCredits int        `db:"remaining_credits" json:"remaining_credits"`
	NextExpiration   *time.Time `db:"next_expiration" json:"next_expiration,omitempty"`
}
