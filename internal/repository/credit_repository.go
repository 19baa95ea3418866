package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

// CreditRepository owns the credit_balances and credit_transactions
// tables. Every mutation appends a ledger row inside the same database
// transaction that touches the batch, so the log can never drift from
// the balances.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs the repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// ListBatches returns all credit batches for a student, newest first.
func (r *CreditRepository) ListBatches(ctx context.Context, studentID string) ([]models.CreditBatch, error) {
	const query = `SELECT id, student_id, payment_proof_id, classes_purchased, classes_remaining, price_per_class, frequency_code, purchased_at, expires_at, status
        FROM credit_balances WHERE student_id = $1 ORDER BY purchased_at DESC`
	var batches []models.CreditBatch
	if err := r.db.SelectContext(ctx, &batches, query, studentID); err != nil {
		return nil, fmt.Errorf("list credit batches: %w", err)
	}
	return batches, nil
}

// ListTransactions returns the ledger for a student, newest first.
func (r *CreditRepository) ListTransactions(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id, credit_batch_id, student_id, booking_id, type, amount, balance_after, notes, created_at
        FROM credit_transactions WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2`
	var txs []models.CreditTransaction
	if err := r.db.SelectContext(ctx, &txs, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	return txs, nil
}

// ActiveBalance sums the usable credits across a student's active batches.
func (r *CreditRepository) ActiveBalance(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COALESCE(SUM(classes_remaining), 0) FROM credit_balances
        WHERE student_id = $1 AND status = $2 AND classes_remaining > 0`
	var balance int
	if err := r.db.GetContext(ctx, &balance, query, studentID, models.CreditBatchStatusActive); err != nil {
		return 0, fmt.Errorf("sum active balance: %w", err)
	}
	return balance, nil
}

// Summary returns the student's usable balance and next expiration.
func (r *CreditRepository) Summary(ctx context.Context, studentID string) (*models.CreditSummary, error) {
	const query = `SELECT $1::text AS student_id,
        COALESCE(SUM(classes_remaining), 0) AS remaining_credits,
        MIN(expires_at) AS next_expiration
        FROM credit_balances
        WHERE student_id = $1 AND status = $2 AND classes_remaining > 0`
	var summary models.CreditSummary
	if err := r.db.GetContext(ctx, &summary, query, studentID, models.CreditBatchStatusActive); err != nil {
		return nil, fmt.Errorf("credit summary: %w", err)
	}
	return &summary, nil
}

// DeductParams describes a single-credit deduction.
type DeductParams struct {
	StudentID string
	BookingID *string
	Type      models.CreditTransactionType
	Notes     string
}

// DeductOne consumes exactly one credit from the active batch with the
// earliest expiration. Returns sql.ErrNoRows when the student has no
// usable batch.
func (r *CreditRepository) DeductOne(ctx context.Context, p DeductParams) (*models.CreditTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin deduct: %w", err)
	}
	entry, err := deductOneTx(ctx, tx, p)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deduct: %w", err)
	}
	return entry, nil
}

// deductOneTx runs the FIFO-by-expiration deduction inside an existing
// transaction so callers can compose it with booking state changes.
// The row lock prevents two concurrent deductions from draining the
// same last credit.
func deductOneTx(ctx context.Context, tx *sqlx.Tx, p DeductParams) (*models.CreditTransaction, error) {
	const pick = `SELECT id, student_id, payment_proof_id, classes_purchased, classes_remaining, price_per_class, frequency_code, purchased_at, expires_at, status
        FROM credit_balances
        WHERE student_id = $1 AND status = $2 AND classes_remaining > 0
        ORDER BY expires_at ASC
        LIMIT 1
        FOR UPDATE`
	var batch models.CreditBatch
	if err := tx.GetContext(ctx, &batch, pick, p.StudentID, models.CreditBatchStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("pick credit batch: %w", err)
	}

	remaining := batch.ClassesRemaining - 1
	status := models.CreditBatchStatusActive
	if remaining == 0 {
		status = models.CreditBatchStatusDepleted
	}
	const update = `UPDATE credit_balances SET classes_remaining = $2, status = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, batch.ID, remaining, status); err != nil {
		return nil, fmt.Errorf("decrement credit batch: %w", err)
	}

	entry := &models.CreditTransaction{
		ID:            uuid.NewString(),
		CreditBatchID: batch.ID,
		StudentID:     p.StudentID,
		BookingID:     p.BookingID,
		Type:          p.Type,
		Amount:        -1,
		BalanceAfter:  remaining,
		Notes:         p.Notes,
		CreatedAt:     time.Now().UTC(),
	}
	if err := insertTransactionTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func insertTransactionTx(ctx context.Context, tx *sqlx.Tx, entry *models.CreditTransaction) error {
	const query = `INSERT INTO credit_transactions (id, credit_batch_id, student_id, booking_id, type, amount, balance_after, notes, created_at)
        VALUES (:id, :credit_batch_id, :student_id, :booking_id, :type, :amount, :balance_after, :notes, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append credit transaction: %w", err)
	}
	return nil
}

// Grant creates a new credit batch and its opening ledger entry.
func (r *CreditRepository) Grant(ctx context.Context, batch *models.CreditBatch, txType models.CreditTransactionType, notes string) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.PurchasedAt.IsZero() {
		batch.PurchasedAt = time.Now().UTC()
	}
	if batch.Status == "" {
		batch.Status = models.CreditBatchStatusActive
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grant: %w", err)
	}

	const insert = `INSERT INTO credit_balances (id, student_id, payment_proof_id, classes_purchased, classes_remaining, price_per_class, frequency_code, purchased_at, expires_at, status)
        VALUES (:id, :student_id, :payment_proof_id, :classes_purchased, :classes_remaining, :price_per_class, :frequency_code, :purchased_at, :expires_at, :status)`
	if _, err := tx.NamedExecContext(ctx, insert, batch); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create credit batch: %w", err)
	}

	entry := &models.CreditTransaction{
		ID:            uuid.NewString(),
		CreditBatchID: batch.ID,
		StudentID:     batch.StudentID,
		Type:          txType,
		Amount:        batch.ClassesPurchased,
		BalanceAfter:  batch.ClassesRemaining,
		Notes:         notes,
		CreatedAt:     time.Now().UTC(),
	}
	if err := insertTransactionTx(ctx, tx, entry); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant: %w", err)
	}
	return nil
}

// AdjustDown removes amount credits walking active batches in
// FIFO-by-expiration order. The aggregate balance is checked under lock
// before any batch is touched: an insufficient balance leaves no
// partial state behind. Returns sql.ErrNoRows when the total is short.
func (r *CreditRepository) AdjustDown(ctx context.Context, studentID string, amount int, notes string) error {
	if amount <= 0 {
		return fmt.Errorf("adjust down needs a positive amount")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin adjust: %w", err)
	}

	const pick = `SELECT id, student_id, payment_proof_id, classes_purchased, classes_remaining, price_per_class, frequency_code, purchased_at, expires_at, status
        FROM credit_balances
        WHERE student_id = $1 AND status = $2 AND classes_remaining > 0
        ORDER BY expires_at ASC
        FOR UPDATE`
	var batches []models.CreditBatch
	if err := tx.SelectContext(ctx, &batches, pick, studentID, models.CreditBatchStatusActive); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("lock credit batches: %w", err)
	}

	total := 0
	for _, b := range batches {
		total += b.ClassesRemaining
	}
	if total < amount {
		tx.Rollback() //nolint:errcheck
		return sql.ErrNoRows
	}

	left := amount
	now := time.Now().UTC()
	for _, b := range batches {
		if left == 0 {
			break
		}
		take := b.ClassesRemaining
		if take > left {
			take = left
		}
		remaining := b.ClassesRemaining - take
		status := models.CreditBatchStatusActive
		if remaining == 0 {
			status = models.CreditBatchStatusDepleted
		}
		const update = `UPDATE credit_balances SET classes_remaining = $2, status = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, b.ID, remaining, status); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("decrement credit batch: %w", err)
		}
		entry := &models.CreditTransaction{
			ID:            uuid.NewString(),
			CreditBatchID: b.ID,
			StudentID:     studentID,
			Type:          models.CreditTxAdjustment,
			Amount:        -take,
			BalanceAfter:  remaining,
			Notes:         notes,
			CreatedAt:     now,
		}
		if err := insertTransactionTx(ctx, tx, entry); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
		left -= take
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit adjust: %w", err)
	}
	return nil
}

// ExpireDue marks every active batch whose expiration has passed and
// writes an expiration entry for any remaining balance. Re-running
// after all eligible batches are expired performs no writes, so the
// sweep is idempotent. Returns the total credits voided.
func (r *CreditRepository) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin expire: %w", err)
	}

	const pick = `SELECT id, student_id, payment_proof_id, classes_purchased, classes_remaining, price_per_class, frequency_code, purchased_at, expires_at, status
        FROM credit_balances
        WHERE status = $1 AND expires_at < $2
        FOR UPDATE`
	var due []models.CreditBatch
	if err := tx.SelectContext(ctx, &due, pick, models.CreditBatchStatusActive, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("find expired batches: %w", err)
	}

	expired := 0
	for _, b := range due {
		const update = `UPDATE credit_balances SET classes_remaining = 0, status = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, b.ID, models.CreditBatchStatusExpired); err != nil {
			tx.Rollback() //nolint:errcheck
			return 0, fmt.Errorf("expire credit batch: %w", err)
		}
		if b.ClassesRemaining > 0 {
			entry := &models.CreditTransaction{
				ID:            uuid.NewString(),
				CreditBatchID: b.ID,
				StudentID:     b.StudentID,
				Type:          models.CreditTxExpiration,
				Amount:        -b.ClassesRemaining,
				BalanceAfter:  0,
				Notes:         "credit batch expired",
				CreatedAt:     now,
			}
			if err := insertTransactionTx(ctx, tx, entry); err != nil {
				tx.Rollback() //nolint:errcheck
				return 0, err
			}
			expired += b.ClassesRemaining
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expire: %w", err)
	}
	return expired, nil
}
