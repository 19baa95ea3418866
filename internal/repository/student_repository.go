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

// StudentRepository handles persistence of students and their plans.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailSelect = `SELECT s.id, s.full_name, s.email, s.phone, s.frequency_code, s.notes, s.active, s.created_at, s.updated_at,
        f.name AS frequency_name, f.classes_per_week, f.price_per_class,
        COALESCE((SELECT SUM(cb.classes_remaining) FROM credit_balances cb
            WHERE cb.student_id = s.id AND cb.status = 'ACTIVE' AND cb.classes_remaining > 0), 0) AS remaining_credits
        FROM students s
        LEFT JOIN frequency_prices f ON f.code = s.frequency_code`

// FindByID returns a student with plan and credit context.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := studentDetailSelect + ` WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns students filtered by the provided criteria.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.full_name ILIKE $%d OR s.email ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.FrequencyCode != "" {
		conditions = append(conditions, fmt.Sprintf("s.frequency_code = $%d", len(args)+1))
		args = append(args, filter.FrequencyCode)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"full_name":  "s.full_name",
		"created_at": "s.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.full_name"
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

	query := fmt.Sprintf(`%s %s ORDER BY %s %s LIMIT %d OFFSET %d`, studentDetailSelect, clause, orderBy, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students s%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Create persists a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	student.Active = true

	const query = `INSERT INTO students (id, full_name, email, phone, frequency_code, notes, active, created_at, updated_at)
        VALUES (:id, :full_name, :email, :phone, :frequency_code, :notes, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update persists editable student fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, email = :email, phone = :phone, frequency_code = :frequency_code, notes = :notes, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// FrequencyByCode returns a plan row.
func (r *StudentRepository) FrequencyByCode(ctx context.Context, code string) (*models.Frequency, error) {
	const query = `SELECT code, name, classes_per_week, price_per_class, active, created_at, updated_at
        FROM frequency_prices WHERE code = $1`
	var freq models.Frequency
	if err := r.db.GetContext(ctx, &freq, query, code); err != nil {
		return nil, err
	}
	return &freq, nil
}

// ListFrequencies returns all plans, active first.
func (r *StudentRepository) ListFrequencies(ctx context.Context) ([]models.Frequency, error) {
	const query = `SELECT code, name, classes_per_week, price_per_class, active, created_at, updated_at
        FROM frequency_prices ORDER BY active DESC, classes_per_week DESC`
	var freqs []models.Frequency
	if err := r.db.SelectContext(ctx, &freqs, query); err != nil {
		return nil, fmt.Errorf("list frequencies: %w", err)
	}
	return freqs, nil
}

// UpsertFrequency creates or updates a plan row keyed by code.
func (r *StudentRepository) UpsertFrequency(ctx context.Context, freq *models.Frequency) error {
	now := time.Now().UTC()
	if freq.CreatedAt.IsZero() {
		freq.CreatedAt = now
	}
	freq.UpdatedAt = now
	const query = `INSERT INTO frequency_prices (code, name, classes_per_week, price_per_class, active, created_at, updated_at)
        VALUES (:code, :name, :classes_per_week, :price_per_class, :active, :created_at, :updated_at)
        ON CONFLICT (code)
        DO UPDATE SET name = EXCLUDED.name, classes_per_week = EXCLUDED.classes_per_week, price_per_class = EXCLUDED.price_per_class, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, freq); err != nil {
		return fmt.Errorf("upsert frequency: %w", err)
	}
	return nil
}
