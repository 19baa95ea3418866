package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

func newCreditRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var creditBatchColumns = []string{"id", "student_id", "payment_proof_id", "classes_purchased", "classes_remaining", "price_per_class", "frequency_code", "purchased_at", "expires_at", "status"}

// Batch pick matchers pin the clauses the ledger depends on: credits
// must drain in expiration order under a row lock.
const (
	pickEarliestBatchSQL = `SELECT (.+) FROM credit_balances\s+WHERE student_id = \$1 AND status = \$2 AND classes_remaining > 0\s+ORDER BY expires_at ASC\s+LIMIT 1\s+FOR UPDATE`
	lockBatchesFIFOSQL   = `SELECT (.+) FROM credit_balances\s+WHERE student_id = \$1 AND status = \$2 AND classes_remaining > 0\s+ORDER BY expires_at ASC\s+FOR UPDATE`
	pickDueBatchesSQL    = `SELECT (.+) FROM credit_balances\s+WHERE status = \$1 AND expires_at < \$2\s+FOR UPDATE`
)

func TestCreditRepositoryDeductOnePicksEarliestExpiry(t *testing.T) {
	db, mock, cleanup := newCreditRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	soonest := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(creditBatchColumns).
		AddRow("batch-early", "stu-1", nil, 8, 3, 1500.0, "2x", soonest.AddDate(0, -2, 0), soonest, models.CreditBatchStatusActive)

	mock.ExpectBegin()
	mock.ExpectQuery(pickEarliestBatchSQL).
		WithArgs("stu-1", models.CreditBatchStatusActive).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_balances SET classes_remaining = $2, status = $3 WHERE id = $1")).
		WithArgs("batch-early", 2, models.CreditBatchStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.DeductOne(context.Background(), DeductParams{
		StudentID: "stu-1",
		Type:      models.CreditTxAttendance,
		Notes:     "class attendance",
	})
	require.NoError(t, err)
	require.Equal(t, "batch-early", entry.CreditBatchID)
	require.Equal(t, -1, entry.Amount)
	require.Equal(t, 2, entry.BalanceAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryDeductOneDepletesBatch(t *testing.T) {
	db, mock, cleanup := newCreditRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	rows := sqlmock.NewRows(creditBatchColumns).
		AddRow("batch-1", "stu-1", nil, 4, 1, 1500.0, "1x", time.Now(), time.Now().AddDate(0, 0, 10), models.CreditBatchStatusActive)

	mock.ExpectBegin()
	mock.ExpectQuery(pickEarliestBatchSQL).
		WithArgs("stu-1", models.CreditBatchStatusActive).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_balances SET classes_remaining = $2, status = $3 WHERE id = $1")).
		WithArgs("batch-1", 0, models.CreditBatchStatusDepleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.DeductOne(context.Background(), DeductParams{StudentID: "stu-1", Type: models.CreditTxAttendance})
	require.NoError(t, err)
	require.Equal(t, 0, entry.BalanceAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryDeductOneNoBatches(t *testing.T) {
	db, mock, cleanup := newCreditRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(pickEarliestBatchSQL).
		WithArgs("stu-1", models.CreditBatchStatusActive).
		WillReturnRows(sqlmock.NewRows(creditBatchColumns))
	mock.ExpectRollback()

	_, err := repo.DeductOne(context.Background(), DeductParams{StudentID: "stu-1", Type: models.CreditTxAttendance})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryGrant(t *testing.T) {
	db, mock, cleanup := newCreditRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_balances").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	batch := &models.CreditBatch{
		StudentID:        "stu-1",
		ClassesPurchased: 8,
		ClassesRemaining: 8,
		PricePerClass:    1500,
		FrequencyCode:    "2x",
		ExpiresAt:        time.Now().AddDate(0, 0, 60),
	}
	err := repo.Grant(context.Background(), batch, models.CreditTxPurchase, "purchase of 8 classes")
	require.NoError(t, err)
	require.NotEmpty(t, batch.ID)
	require.Equal(t, models.CreditBatchStatusActive, batch.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryAdjustDownSpansBatches(t *testing.T) {
	db, mock, cleanup := newCreditRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	early := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 1, 0)
	rows := sqlmock.NewRows(creditBatchColumns).
		AddRow("batch-a", "stu-1", nil, 4, 2, 1500.0, "2x", early.AddDate(0, -2, 0), early, models.CreditBatchStatusActive).
		AddRow("batch-b", "stu-1", nil, 8, 5, 1500.0, "2x", late.AddDate(0, -2, 0), late, models.CreditBatchStatusActive)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBatchesFIFOSQL).
		WithArgs("stu-1", models.CreditBatchStatusActive).
		WillReturnRows(rows)
	// The earliest-expiring batch is drained first.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_balances SET classes_remaining = $2, status = $3 WHERE id = $1")).
		WithArgs("batch-a", 0, models.CreditBatchStatusDepleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_balances SET classes_remaining = $2, status = $3 WHERE id = $1")).
		WithArgs("batch-b", 4, models.CreditBatchStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.AdjustDown(context.Background(), "stu-1", 3, "correction")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryAdjustDownInsufficient(t *testing.T) {
	db, mock, cleanup := newCreditRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	rows := sqlmock.NewRows(creditBatchColumns).
		AddRow("batch-a", "stu-1", nil, 4, 3, 1500.0, "2x", time.Now(), time.Now().AddDate(0, 0, 30), models.CreditBatchStatusActive)

	mock.ExpectBegin()
	mock.ExpectQuery(lockBatchesFIFOSQL).
		WithArgs("stu-1", models.CreditBatchStatusActive).
		WillReturnRows(rows)
	// Aggregate check fails before any batch row is touched.
	mock.ExpectRollback()

	err := repo.AdjustDown(context.Background(), "stu-1", 5, "correction")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryExpireDue(t *testing.T) {
	db, mock, cleanup := newCreditRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(creditBatchColumns).
		AddRow("batch-a", "stu-1", nil, 8, 2, 1500.0, "2x", now.AddDate(0, -3, 0), now.AddDate(0, 0, -1), models.CreditBatchStatusActive).
		AddRow("batch-b", "stu-2", nil, 4, 0, 1500.0, "1x", now.AddDate(0, -3, 0), now.AddDate(0, 0, -2), models.CreditBatchStatusActive)

	mock.ExpectBegin()
	mock.ExpectQuery(pickDueBatchesSQL).
		WithArgs(models.CreditBatchStatusActive, now).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_balances SET classes_remaining = 0, status = $2 WHERE id = $1")).
		WithArgs("batch-a", models.CreditBatchStatusExpired).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// A zero-balance batch flips status without a ledger entry.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_balances SET classes_remaining = 0, status = $2 WHERE id = $1")).
		WithArgs("batch-b", models.CreditBatchStatusExpired).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expired, err := repo.ExpireDue(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, expired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRepositoryExpireDueNothingPending(t *testing.T) {
	db, mock, cleanup := newCreditRepoMock(t)
	defer cleanup()
	repo := NewCreditRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(pickDueBatchesSQL).
		WithArgs(models.CreditBatchStatusActive, now).
		WillReturnRows(sqlmock.NewRows(creditBatchColumns))
	mock.ExpectCommit()

	expired, err := repo.ExpireDue(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, expired)
	require.NoError(t, mock.ExpectationsWereMet())
}
