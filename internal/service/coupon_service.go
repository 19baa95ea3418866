package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
)

type couponRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Create(ctx context.Context, coupon *models.Coupon) error
	Deactivate(ctx context.Context, id string) error
}

// CouponService manages discount codes.
type CouponService struct {
	repo      couponRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCouponService constructs the coupon service.
func NewCouponService(repo couponRepository, validate *validator.Validate, logger *zap.Logger) *CouponService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouponService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// CreateCouponRequest holds payload for creating a discount code.
type CreateCouponRequest struct {
	Code            string     `json:"code" validate:"required,min=3"`
	DiscountPercent int        `json:"discount_percent" validate:"required,gt=0,lte=100"`
	MaxUses         int        `json:"max_uses" validate:"required,gt=0"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// Create registers a new coupon with a unique code.
func (s *CouponService) Create(ctx context.Context, req CreateCouponRequest) (*models.Coupon, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid coupon payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))

	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "coupon code already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check coupon code")
	}

	coupon := &models.Coupon{
		Code:            code,
		DiscountPercent: req.DiscountPercent,
		MaxUses:         req.MaxUses,
		ExpiresAt:       req.ExpiresAt,
		Active:          true,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create coupon")
	}
	s.logger.Info("coupon created", zap.String("code", code), zap.Int("max_uses", req.MaxUses))
	return coupon, nil
}

// List returns all coupons.
func (s *CouponService) List(ctx context.Context) ([]models.Coupon, error) {
	coupons, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list coupons")
	}
	return coupons, nil
}

// Validate checks whether a code is currently redeemable.
func (s *CouponService) Validate(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, err := s.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coupon not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coupon")
	}
	if !coupon.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coupon is inactive")
	}
	if coupon.ExpiresAt != nil && s.now().UTC().After(*coupon.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coupon expired")
	}
	if coupon.UsedCount >= coupon.MaxUses {
		return nil, appErrors.Clone(appErrors.ErrCouponExhausted, "")
	}
	return coupon, nil
}

// Deactivate turns a coupon off.
func (s *CouponService) Deactivate(ctx context.Context, code string) error {
	coupon, err := s.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "coupon not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coupon")
	}
	if err := s.repo.Deactivate(ctx, coupon.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate coupon")
	}
	return nil
}
