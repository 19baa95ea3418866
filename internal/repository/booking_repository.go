package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

// Sentinel errors distinguishing business conflicts from query failures.
var (
	// ErrInvalidTransition signals the row was not in the state the
	// operation requires (e.g. completing a cancelled booking).
	ErrInvalidTransition = errors.New("row not in expected state")
	// ErrCapacityFull signals the class had no free slot.
	ErrCapacityFull = errors.New("class capacity exhausted")
	// ErrDuplicateBooking signals the student already holds a booking
	// for the class.
	ErrDuplicateBooking = errors.New("booking already exists for class and student")
)

// BookingRepository handles persistence of bookings. Lifecycle
// operations that touch the class capacity counter or the credit
// ledger run inside a single database transaction.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, class_id, student_id, status, cancelled_at, cancellation_reason, is_late_cancellation, reminder_24h_sent, reminder_2h_sent, created_at, updated_at`

// FindByID returns a booking by its ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindDetailByID returns a booking with class timing and student contact info.
func (r *BookingRepository) FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error) {
	const query = `SELECT b.id, b.class_id, b.student_id, b.status, b.cancelled_at, b.cancellation_reason, b.is_late_cancellation,
        b.reminder_24h_sent, b.reminder_2h_sent, b.created_at, b.updated_at,
        c.scheduled_at, s.full_name AS student_name, s.email AS student_email, s.phone AS student_phone
        FROM bookings b
        JOIN classes c ON c.id = b.class_id
        JOIN students s ON s.id = b.student_id
        WHERE b.id = $1`
	var detail models.BookingDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns bookings filtered by the provided criteria.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, int, error) {
	base := `FROM bookings b
JOIN classes c ON c.id = b.class_id
JOIN students s ON s.id = b.student_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("b.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("b.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("c.scheduled_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("c.scheduled_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"scheduled_at": "c.scheduled_at",
		"created_at":   "b.created_at",
		"student_name": "s.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.scheduled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT b.id, b.class_id, b.student_id, b.status, b.cancelled_at, b.cancellation_reason, b.is_late_cancellation,
        b.reminder_24h_sent, b.reminder_2h_sent, b.created_at, b.updated_at,
        c.scheduled_at, s.full_name AS student_name, s.email AS student_email, s.phone AS student_phone
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	return bookings, total, nil
}

// Create reserves a slot for the student. The capacity counter is
// claimed with a conditional increment inside the same transaction
// that inserts the booking, so two concurrent requests can never
// overbook the last slot.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	booking.Status = models.BookingStatusConfirmed
	booking.CreatedAt = now
	booking.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking: %w", err)
	}

	const dupe = `SELECT 1 FROM bookings WHERE class_id = $1 AND student_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	err = tx.GetContext(ctx, &exists, dupe, booking.ClassID, booking.StudentID, models.BookingStatusCancelled)
	if err == nil {
		tx.Rollback() //nolint:errcheck
		return ErrDuplicateBooking
	}
	if err != sql.ErrNoRows {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("check duplicate booking: %w", err)
	}

	const claim = `UPDATE classes SET current_bookings = current_bookings + 1, updated_at = $2
        WHERE id = $1 AND status = $3 AND current_bookings < max_capacity`
	res, err := tx.ExecContext(ctx, claim, booking.ClassID, now, models.ClassStatusScheduled)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("claim class slot: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback() //nolint:errcheck
		return ErrCapacityFull
	}

	const insert = `INSERT INTO bookings (id, class_id, student_id, status, is_late_cancellation, reminder_24h_sent, reminder_2h_sent, created_at, updated_at)
        VALUES (:id, :class_id, :student_id, :status, :is_late_cancellation, :reminder_24h_sent, :reminder_2h_sent, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, booking); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}

// Complete marks attendance and consumes one credit in a single
// transaction: either the booking flips to completed and a credit is
// deducted, or neither happens. Returns ErrInvalidTransition when the
// booking is not confirmed and sql.ErrNoRows when the student has no
// usable credits.
func (r *BookingRepository) Complete(ctx context.Context, bookingID string) (*models.CreditTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance: %w", err)
	}

	booking, err := lockBookingTx(ctx, tx, bookingID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	if booking.Status != models.BookingStatusConfirmed {
		tx.Rollback() //nolint:errcheck
		return nil, ErrInvalidTransition
	}

	const update = `UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, bookingID, models.BookingStatusCompleted, time.Now().UTC()); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("complete booking: %w", err)
	}

	entry, err := deductOneTx(ctx, tx, DeductParams{
		StudentID: booking.StudentID,
		BookingID: &booking.ID,
		Type:      models.CreditTxAttendance,
		Notes:     "class attendance",
	})
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance: %w", err)
	}
	return entry, nil
}

// CancelParams carries the policy decision into the cancellation write.
type CancelParams struct {
	BookingID string
	Reason    string
	IsLate    bool
	Penalize  bool
	Now       time.Time
}

// Cancel marks the booking cancelled, releases the class slot and, when
// the policy asks for it, deducts one penalty credit. A penalty against
// an empty ledger is skipped rather than failing the cancellation.
// Returns whether a credit was actually deducted.
func (r *BookingRepository) Cancel(ctx context.Context, p CancelParams) (bool, error) {
	if p.Now.IsZero() {
		p.Now = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin cancel: %w", err)
	}

	booking, err := lockBookingTx(ctx, tx, p.BookingID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return false, err
	}
	if booking.Status != models.BookingStatusConfirmed {
		tx.Rollback() //nolint:errcheck
		return false, ErrInvalidTransition
	}

	const update = `UPDATE bookings SET status = $2, cancelled_at = $3, cancellation_reason = $4, is_late_cancellation = $5, updated_at = $3
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, p.BookingID, models.BookingStatusCancelled, p.Now, p.Reason, p.IsLate); err != nil {
		tx.Rollback() //nolint:errcheck
		return false, fmt.Errorf("cancel booking: %w", err)
	}

	const release = `UPDATE classes SET current_bookings = current_bookings - 1, updated_at = $2
        WHERE id = $1 AND current_bookings > 0`
	if _, err := tx.ExecContext(ctx, release, booking.ClassID, p.Now); err != nil {
		tx.Rollback() //nolint:errcheck
		return false, fmt.Errorf("release class slot: %w", err)
	}

	penalized := false
	if p.Penalize {
		_, err := deductOneTx(ctx, tx, DeductParams{
			StudentID: booking.StudentID,
			BookingID: &booking.ID,
			Type:      models.CreditTxLateCancellation,
			Notes:     "late cancellation beyond monthly tolerance",
		})
		switch {
		case err == nil:
			penalized = true
		case err == sql.ErrNoRows:
			// Nothing to deduct; the cancellation still goes through.
		default:
			tx.Rollback() //nolint:errcheck
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit cancel: %w", err)
	}
	return penalized, nil
}

func lockBookingTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1 FOR UPDATE`, bookingColumns)
	var booking models.Booking
	if err := tx.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// CountLateThisMonth counts a student's late cancellations within the
// calendar month containing ref. The count is derived from stored
// bookings every time instead of a persisted counter.
func (r *BookingRepository) CountLateThisMonth(ctx context.Context, studentID string, ref time.Time) (int, error) {
	monthStart := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	const query = `SELECT COUNT(*) FROM bookings
        WHERE student_id = $1 AND status = $2 AND is_late_cancellation = TRUE
        AND cancelled_at >= $3 AND cancelled_at < $4`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, models.BookingStatusCancelled, monthStart, monthEnd); err != nil {
		return 0, fmt.Errorf("count late cancellations: %w", err)
	}
	return count, nil
}

// ListDueReminders returns confirmed bookings whose class starts inside
// the window and whose flag for the given offset is still unset.
func (r *BookingRepository) ListDueReminders(ctx context.Context, from, to time.Time, flag string) ([]models.BookingDetail, error) {
	column, ok := reminderColumn(flag)
	if !ok {
		return nil, fmt.Errorf("unknown reminder flag %q", flag)
	}
	query := fmt.Sprintf(`SELECT b.id, b.class_id, b.student_id, b.status, b.cancelled_at, b.cancellation_reason, b.is_late_cancellation,
        b.reminder_24h_sent, b.reminder_2h_sent, b.created_at, b.updated_at,
        c.scheduled_at, s.full_name AS student_name, s.email AS student_email, s.phone AS student_phone
        FROM bookings b
        JOIN classes c ON c.id = b.class_id
        JOIN students s ON s.id = b.student_id
        WHERE b.status = $1 AND c.status = $2 AND c.scheduled_at >= $3 AND c.scheduled_at < $4 AND b.%s = FALSE`, column)
	var due []models.BookingDetail
	if err := r.db.SelectContext(ctx, &due, query, models.BookingStatusConfirmed, models.ClassStatusScheduled, from, to); err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return due, nil
}

// MarkReminderSent flips the flag for the given offset. The conditional
// WHERE makes concurrent sweeps idempotent: only one caller observes an
// affected row.
func (r *BookingRepository) MarkReminderSent(ctx context.Context, bookingID, flag string) (bool, error) {
	column, ok := reminderColumn(flag)
	if !ok {
		return false, fmt.Errorf("unknown reminder flag %q", flag)
	}
	query := fmt.Sprintf(`UPDATE bookings SET %s = TRUE, updated_at = $2 WHERE id = $1 AND %s = FALSE`, column, column)
	res, err := r.db.ExecContext(ctx, query, bookingID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func reminderColumn(flag string) (string, bool) {
	switch flag {
	case "24h":
		return "reminder_24h_sent", true
	case "2h":
		return "reminder_2h_sent", true
	default:
		return "", false
	}
}
