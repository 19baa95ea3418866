package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/repository"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
)

type paymentProofRepository interface {
	FindByID(ctx context.Context, id string) (*models.PaymentProof, error)
	List(ctx context.Context, filter models.PaymentProofFilter) ([]models.PaymentProofDetail, int, error)
	Create(ctx context.Context, proof *models.PaymentProof) error
	Review(ctx context.Context, id string, status models.PaymentProofStatus, notes string, reviewedAt time.Time) error
}

type couponConsumer interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	ConsumeUse(ctx context.Context, id string) error
}

type creditGranter interface {
	CreateCreditBalance(ctx context.Context, req CreateCreditBalanceRequest) (*models.CreditBatch, error)
}

type proofStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

type proofURLSigner interface {
	Generate(proofID, relPath string) (string, time.Time, error)
}

// PaymentService handles payment-proof uploads and trainer review.
type PaymentService struct {
	repo      paymentProofRepository
	coupons   couponConsumer
	credits   creditGranter
	students  creditStudentReader
	storage   proofStorage
	signer    proofURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs the payment service.
func NewPaymentService(repo paymentProofRepository, coupons couponConsumer, credits creditGranter, students creditStudentReader, store proofStorage, signer proofURLSigner, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:      repo,
		coupons:   coupons,
		credits:   credits,
		students:  students,
		storage:   store,
		signer:    signer,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// UploadProofRequest holds metadata for an uploaded transfer receipt.
type UploadProofRequest struct {
	StudentID  string  `json:"student_id" validate:"required"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Classes    int     `json:"classes" validate:"required,gt=0"`
	CouponCode *string `json:"coupon_code,omitempty"`
	Filename   string  `json:"filename" validate:"required"`
}

// Upload stores the receipt file and records the proof in pending state.
func (s *PaymentService) Upload(ctx context.Context, req UploadProofRequest, file io.Reader) (*models.PaymentProof, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment proof payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if req.CouponCode != nil {
		if _, err := s.validCoupon(ctx, *req.CouponCode); err != nil {
			return nil, err
		}
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".pdf":
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported file type")
	}

	relPath := filepath.Join(req.StudentID, fmt.Sprintf("%s%s", uuid.NewString(), ext))
	stored, err := s.storage.SaveStream(relPath, file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store proof file")
	}

	proof := &models.PaymentProof{
		StudentID:  req.StudentID,
		FilePath:   stored,
		Amount:     req.Amount,
		Classes:    req.Classes,
		CouponCode: req.CouponCode,
	}
	if err := s.repo.Create(ctx, proof); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment proof")
	}

	s.logger.Info("payment proof uploaded",
		zap.String("proof_id", proof.ID),
		zap.String("student_id", req.StudentID),
		zap.Int("classes", req.Classes))
	return proof, nil
}

// ReviewProofRequest holds the trainer's decision.
type ReviewProofRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

// Review approves or rejects a pending proof. Approval consumes the
// coupon (when present) and grants the purchased credit batch. The
// status flip happens first under a conditional update, so the same
// proof can never be approved twice.
func (s *PaymentService) Review(ctx context.Context, proofID string, req ReviewProofRequest) (*models.PaymentProof, error) {
	proof, err := s.repo.FindByID(ctx, proofID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment proof not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment proof")
	}
	if proof.Status != models.PaymentProofStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "payment proof already reviewed")
	}

	status := models.PaymentProofStatusRejected
	if req.Approve {
		status = models.PaymentProofStatusApproved
	}

	var coupon *models.Coupon
	if req.Approve && proof.CouponCode != nil {
		coupon, err = s.validCoupon(ctx, *proof.CouponCode)
		if err != nil {
			return nil, err
		}
	}

	student, err := s.students.FindByID(ctx, proof.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	now := s.now().UTC()
	if err := s.repo.Review(ctx, proofID, status, req.Notes, now); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "payment proof already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review payment proof")
	}
	proof.Status = status
	proof.ReviewedAt = &now
	proof.ReviewNotes = &req.Notes

	if !req.Approve {
		s.logger.Info("payment proof rejected", zap.String("proof_id", proofID))
		return proof, nil
	}

	pricePerClass := proof.Amount / float64(proof.Classes)
	if coupon != nil {
		if err := s.coupons.ConsumeUse(ctx, coupon.ID); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				return nil, appErrors.Clone(appErrors.ErrCouponExhausted, "")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume coupon")
		}
		pricePerClass *= 1 - float64(coupon.DiscountPercent)/100
	}

	if _, err := s.credits.CreateCreditBalance(ctx, CreateCreditBalanceRequest{
		StudentID:      proof.StudentID,
		PaymentProofID: &proof.ID,
		Classes:        proof.Classes,
		PricePerClass:  pricePerClass,
		FrequencyCode:  student.FrequencyCode,
		Notes:          fmt.Sprintf("payment proof %s approved", proof.ID),
	}); err != nil {
		// The proof is already approved; surface the incomplete state
		// instead of hiding it.
		s.logger.Error("approved proof without credit grant",
			zap.String("proof_id", proofID),
			zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "proof approved but credit grant failed")
	}

	s.logger.Info("payment proof approved",
		zap.String("proof_id", proofID),
		zap.String("student_id", proof.StudentID),
		zap.Int("classes", proof.Classes),
		zap.Float64("price_per_class", pricePerClass))
	return proof, nil
}

// DownloadURL issues a short-lived signed token for the proof file.
func (s *PaymentService) DownloadURL(ctx context.Context, proofID string) (string, time.Time, error) {
	proof, err := s.repo.FindByID(ctx, proofID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "payment proof not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment proof")
	}
	token, expiresAt, err := s.signer.Generate(proof.ID, proof.FilePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// Get returns a proof by id.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.PaymentProof, error) {
	proof, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment proof not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment proof")
	}
	return proof, nil
}

// List returns proofs matching the filter with pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentProofFilter) ([]models.PaymentProofDetail, *models.Pagination, error) {
	proofs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payment proofs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return proofs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *PaymentService) validCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown coupon code")
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
