package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

// CouponRepository handles persistence of discount coupons.
type CouponRepository struct {
	db *sqlx.DB
}

// NewCouponRepository constructs the repository.
func NewCouponRepository(db *sqlx.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

const couponColumns = `id, code, discount_percent, max_uses, used_count, expires_at, active, created_at, updated_at`

// FindByCode returns a coupon by its code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE UPPER(code) = UPPER($1)`, couponColumns)
	var coupon models.Coupon
	if err := r.db.GetContext(ctx, &coupon, query, code); err != nil {
		return nil, err
	}
	return &coupon, nil
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]models.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons ORDER BY created_at DESC`, couponColumns)
	var coupons []models.Coupon
	if err := r.db.SelectContext(ctx, &coupons, query); err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, nil
}

// Create persists a new coupon.
func (r *CouponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon.ID == "" {
		coupon.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now

	const query = `INSERT INTO coupons (id, code, discount_percent, max_uses, used_count, expires_at, active, created_at, updated_at)
        VALUES (:id, :code, :discount_percent, :max_uses, :used_count, :expires_at, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, coupon); err != nil {
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

// Deactivate turns a coupon off.
func (r *CouponRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE coupons SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}
	return nil
}

// ConsumeUse claims one use of the coupon with a conditional increment
// so concurrent approvals cannot exceed max_uses. Returns
// ErrInvalidTransition when no use is left.
func (r *CouponRepository) ConsumeUse(ctx context.Context, id string) error {
	const query = `UPDATE coupons SET used_count = used_count + 1, updated_at = $2
        WHERE id = $1 AND active = TRUE AND used_count < max_uses`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("consume coupon use: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
