package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

func newBookingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var bookingRowColumns = []string{"id", "class_id", "student_id", "status", "cancelled_at", "cancellation_reason", "is_late_cancellation", "reminder_24h_sent", "reminder_2h_sent", "created_at", "updated_at"}

func confirmedBookingRow(id string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(bookingRowColumns).
		AddRow(id, "cls-1", "stu-1", models.BookingStatusConfirmed, nil, nil, false, false, false, now, now)
}

func TestBookingRepositoryCreateClaimsSlot(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM bookings").
		WithArgs("cls-1", "stu-1", models.BookingStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectExec("UPDATE classes SET current_bookings = current_bookings \\+ 1").
		WithArgs("cls-1", sqlmock.AnyArg(), models.ClassStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	booking := &models.Booking{ClassID: "cls-1", StudentID: "stu-1"}
	err := repo.Create(context.Background(), booking)
	require.NoError(t, err)
	require.NotEmpty(t, booking.ID)
	require.Equal(t, models.BookingStatusConfirmed, booking.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCreateCapacityFull(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM bookings").
		WithArgs("cls-1", "stu-1", models.BookingStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	// The conditional claim matches no row when the class is full.
	mock.ExpectExec("UPDATE classes SET current_bookings = current_bookings \\+ 1").
		WithArgs("cls-1", sqlmock.AnyArg(), models.ClassStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Booking{ClassID: "cls-1", StudentID: "stu-1"})
	require.ErrorIs(t, err, ErrCapacityFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM bookings").
		WithArgs("cls-1", "stu-1", models.BookingStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Booking{ClassID: "cls-1", StudentID: "stu-1"})
	require.ErrorIs(t, err, ErrDuplicateBooking)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCompleteDeductsCredit(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1 FOR UPDATE").
		WithArgs("bk-1").
		WillReturnRows(confirmedBookingRow("bk-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("bk-1", models.BookingStatusCompleted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(pickEarliestBatchSQL).
		WithArgs("stu-1", models.CreditBatchStatusActive).
		WillReturnRows(sqlmock.NewRows(creditBatchColumns).
			AddRow("batch-1", "stu-1", nil, 8, 5, 1500.0, "2x", time.Now(), time.Now().AddDate(0, 0, 30), models.CreditBatchStatusActive))
	mock.ExpectExec("UPDATE credit_balances SET classes_remaining").
		WithArgs("batch-1", 4, models.CreditBatchStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.Complete(context.Background(), "bk-1")
	require.NoError(t, err)
	require.Equal(t, models.CreditTxAttendance, entry.Type)
	require.Equal(t, 4, entry.BalanceAfter)
	require.NotNil(t, entry.BookingID)
	require.Equal(t, "bk-1", *entry.BookingID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCompleteNotConfirmed(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(bookingRowColumns).
		AddRow("bk-1", "cls-1", "stu-1", models.BookingStatusCompleted, nil, nil, false, false, false, now, now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1 FOR UPDATE").
		WithArgs("bk-1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.Complete(context.Background(), "bk-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCancelWithPenalty(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1 FOR UPDATE").
		WithArgs("bk-1").
		WillReturnRows(confirmedBookingRow("bk-1"))
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs("bk-1", models.BookingStatusCancelled, now, "overslept", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE classes SET current_bookings = current_bookings - 1").
		WithArgs("cls-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(pickEarliestBatchSQL).
		WithArgs("stu-1", models.CreditBatchStatusActive).
		WillReturnRows(sqlmock.NewRows(creditBatchColumns).
			AddRow("batch-1", "stu-1", nil, 8, 1, 1500.0, "2x", now, now.AddDate(0, 0, 30), models.CreditBatchStatusActive))
	mock.ExpectExec("UPDATE credit_balances SET classes_remaining").
		WithArgs("batch-1", 0, models.CreditBatchStatusDepleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	penalized, err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "bk-1",
		Reason:    "overslept",
		IsLate:    true,
		Penalize:  true,
		Now:       now,
	})
	require.NoError(t, err)
	require.True(t, penalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCancelPenaltyWithEmptyLedger(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1 FOR UPDATE").
		WithArgs("bk-1").
		WillReturnRows(confirmedBookingRow("bk-1"))
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs("bk-1", models.BookingStatusCancelled, now, "", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE classes SET current_bookings = current_bookings - 1").
		WithArgs("cls-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// No usable batches: the cancellation still commits without a penalty.
	mock.ExpectQuery(pickEarliestBatchSQL).
		WithArgs("stu-1", models.CreditBatchStatusActive).
		WillReturnRows(sqlmock.NewRows(creditBatchColumns))
	mock.ExpectCommit()

	penalized, err := repo.Cancel(context.Background(), CancelParams{
		BookingID: "bk-1",
		IsLate:    true,
		Penalize:  true,
		Now:       now,
	})
	require.NoError(t, err)
	require.False(t, penalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCountLateThisMonth(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	ref := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	monthStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings")).
		WithArgs("stu-1", models.BookingStatusCancelled, monthStart, monthEnd).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountLateThisMonth(context.Background(), "stu-1", ref)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkReminderSentIdempotent(t *testing.T) {
	db, mock, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec("UPDATE bookings SET reminder_24h_sent = TRUE").
		WithArgs("bk-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bookings SET reminder_24h_sent = TRUE").
		WithArgs("bk-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.MarkReminderSent(context.Background(), "bk-1", "24h")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = repo.MarkReminderSent(context.Background(), "bk-1", "24h")
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkReminderSentUnknownFlag(t *testing.T) {
	db, _, cleanup := newBookingRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	_, err := repo.MarkReminderSent(context.Background(), "bk-1", "48h")
	require.Error(t, err)
}
