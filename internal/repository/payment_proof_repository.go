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

// PaymentProofRepository handles persistence of uploaded payment proofs.
type PaymentProofRepository struct {
	db *sqlx.DB
}

// NewPaymentProofRepository constructs the repository.
func NewPaymentProofRepository(db *sqlx.DB) *PaymentProofRepository {
	return &PaymentProofRepository{db: db}
}

const proofColumns = `id, student_id, file_path, amount, classes, coupon_code, status, reviewed_at, review_notes, created_at`

// FindByID returns a proof by its ID.
func (r *PaymentProofRepository) FindByID(ctx context.Context, id string) (*models.PaymentProof, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_proofs WHERE id = $1`, proofColumns)
	var proof models.PaymentProof
	if err := r.db.GetContext(ctx, &proof, query, id); err != nil {
		return nil, err
	}
	return &proof, nil
}

// List returns proofs filtered by the provided criteria.
func (r *PaymentProofRepository) List(ctx context.Context, filter models.PaymentProofFilter) ([]models.PaymentProofDetail, int, error) {
	base := `FROM payment_proofs p
JOIN students s ON s.id = p.student_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("p.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT p.id, p.student_id, p.file_path, p.amount, p.classes, p.coupon_code, p.status, p.reviewed_at, p.review_notes, p.created_at,
        s.full_name AS student_name, s.email AS student_email
        %s ORDER BY p.created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var proofs []models.PaymentProofDetail
	if err := r.db.SelectContext(ctx, &proofs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payment proofs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payment proofs: %w", err)
	}
	return proofs, total, nil
}

// CountPending returns the number of proofs awaiting review.
func (r *PaymentProofRepository) CountPending(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM payment_proofs WHERE status = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, models.PaymentProofStatusPending); err != nil {
		return 0, fmt.Errorf("count pending proofs: %w", err)
	}
	return count, nil
}

// Create persists a new proof in pending state.
func (r *PaymentProofRepository) Create(ctx context.Context, proof *models.PaymentProof) error {
	if proof.ID == "" {
		proof.ID = uuid.NewString()
	}
	proof.Status = models.PaymentProofStatusPending
	proof.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO payment_proofs (id, student_id, file_path, amount, classes, coupon_code, status, created_at)
        VALUES (:id, :student_id, :file_path, :amount, :classes, :coupon_code, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, proof); err != nil {
		return fmt.Errorf("create payment proof: %w", err)
	}
	return nil
}

// Review records the trainer's decision. The conditional WHERE rejects
// a second review of the same proof.
func (r *PaymentProofRepository) Review(ctx context.Context, id string, status models.PaymentProofStatus, notes string, reviewedAt time.Time) error {
	const query = `UPDATE payment_proofs SET status = $2, review_notes = $3, reviewed_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, status, notes, reviewedAt, models.PaymentProofStatusPending)
	if err != nil {
		return fmt.Errorf("review payment proof: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
