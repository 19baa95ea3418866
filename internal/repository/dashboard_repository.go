package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/dto"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

// DashboardRepository aggregates read-only figures for the trainer
// dashboard.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// ClassesBetween returns scheduled classes inside the window.
func (r *DashboardRepository) ClassesBetween(ctx context.Context, from, to time.Time) ([]dto.DashboardClass, error) {
	const query = `SELECT id AS classid, scheduled_at AS scheduledat, current_bookings AS currentbookings, max_capacity AS maxcapacity
        FROM classes WHERE status = $1 AND scheduled_at >= $2 AND scheduled_at < $3
        ORDER BY scheduled_at ASC`
	var classes []dto.DashboardClass
	if err := r.db.SelectContext(ctx, &classes, query, models.ClassStatusScheduled, from, to); err != nil {
		return nil, fmt.Errorf("dashboard classes: %w", err)
	}
	return classes, nil
}

// LowCreditStudents returns active students at or below the threshold.
func (r *DashboardRepository) LowCreditStudents(ctx context.Context, threshold int) ([]dto.LowCreditStudent, error) {
	const query = `SELECT s.id AS studentid, s.full_name AS fullname,
        COALESCE(SUM(cb.classes_remaining), 0) AS remainingcredits
        FROM students s
        LEFT JOIN credit_balances cb ON cb.student_id = s.id AND cb.status = 'ACTIVE' AND cb.classes_remaining > 0
        WHERE s.active = TRUE
        GROUP BY s.id, s.full_name
        HAVING COALESCE(SUM(cb.classes_remaining), 0) <= $1
        ORDER BY remainingcredits ASC, s.full_name ASC`
	var students []dto.LowCreditStudent
	if err := r.db.SelectContext(ctx, &students, query, threshold); err != nil {
		return nil, fmt.Errorf("dashboard low credit: %w", err)
	}
	return students, nil
}

// WeekTotals aggregates bookings and consumption since weekStart.
func (r *DashboardRepository) WeekTotals(ctx context.Context, weekStart time.Time) (*dto.DashboardWeekTotals, error) {
	totals := &dto.DashboardWeekTotals{}

	const created = `SELECT COUNT(*) FROM bookings WHERE created_at >= $1`
	if err := r.db.GetContext(ctx, &totals.BookingsCreated, created, weekStart); err != nil {
		return nil, fmt.Errorf("dashboard bookings created: %w", err)
	}

	const cancelled = `SELECT COUNT(*) FROM bookings WHERE status = $1 AND cancelled_at >= $2`
	if err := r.db.GetContext(ctx, &totals.BookingsCancelled, cancelled, models.BookingStatusCancelled, weekStart); err != nil {
		return nil, fmt.Errorf("dashboard bookings cancelled: %w", err)
	}

	const consumed = `SELECT COALESCE(-SUM(amount), 0) FROM credit_transactions
        WHERE amount < 0 AND type IN ($1, $2) AND created_at >= $3`
	if err := r.db.GetContext(ctx, &totals.CreditsConsumed, consumed, models.CreditTxAttendance, models.CreditTxLateCancellation, weekStart); err != nil {
		return nil, fmt.Errorf("dashboard credits consumed: %w", err)
	}

	return totals, nil
}
