package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

// RegistrationTokenRepository persists one-shot student invites.
type RegistrationTokenRepository struct {
	db *sqlx.DB
}

// NewRegistrationTokenRepository constructs the repository.
func NewRegistrationTokenRepository(db *sqlx.DB) *RegistrationTokenRepository {
	return &RegistrationTokenRepository{db: db}
}

// CreateRegistrationToken persists a one-shot invite for a student.
func (r *RegistrationTokenRepository) CreateRegistrationToken(ctx context.Context, token *models.RegistrationToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO registration_tokens (id, token, student_id, expires_at, created_at)
        VALUES (:id, :token, :student_id, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create registration token: %w", err)
	}
	return nil
}

// FindRegistrationToken returns an invite by its opaque value.
func (r *RegistrationTokenRepository) FindRegistrationToken(ctx context.Context, token string) (*models.RegistrationToken, error) {
	const query = `SELECT id, token, student_id, expires_at, used_at, created_at FROM registration_tokens WHERE token = $1`
	var stored models.RegistrationToken
	if err := r.db.GetContext(ctx, &stored, query, token); err != nil {
		return nil, err
	}
	return &stored, nil
}

// ConsumeRegistrationToken marks an invite used exactly once. The
// conditional update is the idempotency gate, so a replayed token
// surfaces as ErrInvalidTransition instead of a second registration.
func (r *RegistrationTokenRepository) ConsumeRegistrationToken(ctx context.Context, id string, usedAt time.Time) error {
	const query = `UPDATE registration_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, usedAt)
	if err != nil {
		return fmt.Errorf("consume registration token: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
