package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

// ClassRepository handles persistence of scheduled classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = `id, scheduled_at, duration_minutes, max_capacity, current_bookings, status, notes, created_at, updated_at`

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes WHERE id = $1`, classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// List returns classes filtered by the provided criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	base := `FROM classes`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY scheduled_at %s LIMIT %d OFFSET %d`, classColumns, base+clause, order, size, offset)

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// Create persists a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.Status == "" {
		class.Status = models.ClassStatusScheduled
	}
	class.CreatedAt = now
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, scheduled_at, duration_minutes, max_capacity, current_bookings, status, notes, created_at, updated_at)
        VALUES (:id, :scheduled_at, :duration_minutes, :max_capacity, :current_bookings, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// ExistsAt reports whether a scheduled class already occupies the slot.
func (r *ClassRepository) ExistsAt(ctx context.Context, scheduledAt time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM classes WHERE scheduled_at = $1 AND status = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, scheduledAt, models.ClassStatusScheduled); err != nil {
		return false, fmt.Errorf("check class slot: %w", err)
	}
	return exists, nil
}

// Update persists editable class fields.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET scheduled_at = :scheduled_at, duration_minutes = :duration_minutes, max_capacity = :max_capacity, notes = :notes, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// MarkCompleted flips a scheduled class to completed.
func (r *ClassRepository) MarkCompleted(ctx context.Context, id string) error {
	const query = `UPDATE classes SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.ClassStatusCompleted, time.Now().UTC(), models.ClassStatusScheduled)
	if err != nil {
		return fmt.Errorf("complete class: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CancelWithBookings cancels the class and releases every confirmed
// booking without penalty, all in one transaction. Returns the number
// of bookings released.
func (r *ClassRepository) CancelWithBookings(ctx context.Context, id, reason string) (int, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cancel class: %w", err)
	}

	const cancel = `UPDATE classes SET status = $2, current_bookings = 0, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := tx.ExecContext(ctx, cancel, id, models.ClassStatusCancelled, now, models.ClassStatusScheduled)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("cancel class: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback() //nolint:errcheck
		return 0, ErrInvalidTransition
	}

	const release = `UPDATE bookings SET status = $2, cancelled_at = $3, cancellation_reason = $4, is_late_cancellation = FALSE, updated_at = $3
        WHERE class_id = $1 AND status = $5`
	released, err := tx.ExecContext(ctx, release, id, models.BookingStatusCancelled, now, reason, models.BookingStatusConfirmed)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("release class bookings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cancel class: %w", err)
	}
	count, _ := released.RowsAffected()
	return int(count), nil
}
