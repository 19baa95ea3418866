package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/repository"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/export"
)

type creditRepository interface {
	ListBatches(ctx context.Context, studentID string) ([]models.CreditBatch, error)
	ListTransactions(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error)
	ActiveBalance(ctx context.Context, studentID string) (int, error)
	Summary(ctx context.Context, studentID string) (*models.CreditSummary, error)
	DeductOne(ctx context.Context, p repository.DeductParams) (*models.CreditTransaction, error)
	Grant(ctx context.Context, batch *models.CreditBatch, txType models.CreditTransactionType, notes string) error
	AdjustDown(ctx context.Context, studentID string, amount int, notes string) error
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

type creditStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// CreditServiceConfig tunes the ledger behaviour.
type CreditServiceConfig struct {
	// ValidityDays is how long a granted batch stays usable.
	ValidityDays int
}

// CreditService owns the credit ledger use-cases.
type CreditService struct {
	repo      creditRepository
	students  creditStudentReader
	validator *validator.Validate
	logger    *zap.Logger
	cfg       CreditServiceConfig
	now       func() time.Time
}

// NewCreditService constructs the credit service.
func NewCreditService(repo creditRepository, students creditStudentReader, validate *validator.Validate, logger *zap.Logger, cfg CreditServiceConfig) *CreditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ValidityDays <= 0 {
		cfg.ValidityDays = 60
	}
	return &CreditService{repo: repo, students: students, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// CreateCreditBalanceRequest holds payload for granting purchased credits.
type CreateCreditBalanceRequest struct {
	StudentID      string  `json:"student_id" validate:"required"`
	PaymentProofID *string `json:"payment_proof_id,omitempty"`
	Classes        int     `json:"classes" validate:"required,gt=0"`
	PricePerClass  float64 `json:"price_per_class" validate:"gte=0"`
	FrequencyCode  string  `json:"frequency_code" validate:"required"`
	Notes          string  `json:"notes"`
}

// CreateCreditBalance grants a purchased batch expiring after the
// configured validity window and writes the opening purchase entry.
func (s *CreditService) CreateCreditBalance(ctx context.Context, req CreateCreditBalanceRequest) (*models.CreditBatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit balance payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	now := s.now().UTC()
	notes := req.Notes
	if notes == "" {
		notes = fmt.Sprintf("purchase of %d classes", req.Classes)
	}
	batch := &models.CreditBatch{
		StudentID:        req.StudentID,
		PaymentProofID:   req.PaymentProofID,
		ClassesPurchased: req.Classes,
		ClassesRemaining: req.Classes,
		PricePerClass:    req.PricePerClass,
		FrequencyCode:    req.FrequencyCode,
		PurchasedAt:      now,
		ExpiresAt:        now.AddDate(0, 0, s.cfg.ValidityDays),
		Status:           models.CreditBatchStatusActive,
	}
	if err := s.repo.Grant(ctx, batch, models.CreditTxPurchase, notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create credit balance")
	}

	s.logger.Info("credit balance created",
		zap.String("student_id", req.StudentID),
		zap.String("batch_id", batch.ID),
		zap.Int("classes", req.Classes),
		zap.Time("expires_at", batch.ExpiresAt))
	return batch, nil
}

// DeductCredit consumes exactly one credit from the batch expiring
// soonest and appends the ledger entry for it.
func (s *CreditService) DeductCredit(ctx context.Context, studentID string, bookingID *string) (*models.CreditTransaction, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	entry, err := s.repo.DeductOne(ctx, repository.DeductParams{
		StudentID: studentID,
		BookingID: bookingID,
		Type:      models.CreditTxAttendance,
		Notes:     "class attendance",
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoCreditsAvailable, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deduct credit")
	}
	return entry, nil
}

// AdjustCreditsRequest holds payload for manual ledger corrections.
type AdjustCreditsRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Amount    int    `json:"amount" validate:"required"`
	Notes     string `json:"notes" validate:"required"`
}

// AdjustCredits applies a manual correction. Positive amounts become a
// zero-price batch; negative amounts are consumed across existing
// batches in expiration order, all or nothing.
func (s *CreditService) AdjustCredits(ctx context.Context, req AdjustCreditsRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid adjustment payload")
	}

	if req.Amount > 0 {
		now := s.now().UTC()
		batch := &models.CreditBatch{
			StudentID:        req.StudentID,
			ClassesPurchased: req.Amount,
			ClassesRemaining: req.Amount,
			PurchasedAt:      now,
			ExpiresAt:        now.AddDate(0, 0, s.cfg.ValidityDays),
			Status:           models.CreditBatchStatusActive,
		}
		if err := s.repo.Grant(ctx, batch, models.CreditTxAdjustment, req.Notes); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant adjustment")
		}
		s.logger.Info("credits adjusted up", zap.String("student_id", req.StudentID), zap.Int("amount", req.Amount))
		return nil
	}

	if err := s.repo.AdjustDown(ctx, req.StudentID, -req.Amount, req.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInsufficientCredits, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove credits")
	}
	s.logger.Info("credits adjusted down", zap.String("student_id", req.StudentID), zap.Int("amount", req.Amount))
	return nil
}

// ExpireCredits voids every batch past its expiration date and returns
// the total credits removed. Safe to re-run.
func (s *CreditService) ExpireCredits(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireDue(ctx, s.now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire credits")
	}
	if expired > 0 {
		s.logger.Info("expired credits swept", zap.Int("credits", expired))
	}
	return expired, nil
}

// Summary returns the student's usable balance and next expiration.
func (s *CreditService) Summary(ctx context.Context, studentID string) (*models.CreditSummary, error) {
	summary, err := s.repo.Summary(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credit summary")
	}
	return summary, nil
}

// Batches lists a student's credit batches.
func (s *CreditService) Batches(ctx context.Context, studentID string) ([]models.CreditBatch, error) {
	batches, err := s.repo.ListBatches(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list credit batches")
	}
	return batches, nil
}

// Transactions lists a student's ledger entries, newest first.
func (s *CreditService) Transactions(ctx context.Context, studentID string, limit int) ([]models.CreditTransaction, error) {
	txs, err := s.repo.ListTransactions(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list credit transactions")
	}
	return txs, nil
}

// StatementFormat selects the rendering of a credit statement.
type StatementFormat string

// Supported statement formats.
const (
	StatementCSV StatementFormat = "csv"
	StatementPDF StatementFormat = "pdf"
)

// Statement renders the student's ledger as a downloadable document.
func (s *CreditService) Statement(ctx context.Context, studentID string, format StatementFormat) ([]byte, string, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	txs, err := s.repo.ListTransactions(ctx, studentID, 500)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list credit transactions")
	}

	data := export.Dataset{
		Headers: []string{"Date", "Type", "Amount", "Balance After", "Notes"},
		Rows:    make([]map[string]string, 0, len(txs)),
	}
	for _, tx := range txs {
		data.Rows = append(data.Rows, map[string]string{
			"Date":          tx.CreatedAt.Format("2006-01-02 15:04"),
			"Type":          string(tx.Type),
			"Amount":        fmt.Sprintf("%+d", tx.Amount),
			"Balance After": fmt.Sprintf("%d", tx.BalanceAfter),
			"Notes":         tx.Notes,
		})
	}

	switch format {
	case StatementPDF:
		payload, err := export.NewPDFExporter().Render(data, fmt.Sprintf("Credit statement - %s", student.FullName))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf statement")
		}
		return payload, "application/pdf", nil
	case StatementCSV, "":
		payload, err := export.NewCSVExporter().Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv statement")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported statement format")
	}
}
