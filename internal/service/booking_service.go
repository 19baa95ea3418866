package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/repository"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
)

type bookingRepository interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, int, error)
	Create(ctx context.Context, booking *models.Booking) error
	Complete(ctx context.Context, bookingID string) (*models.CreditTransaction, error)
	Cancel(ctx context.Context, p repository.CancelParams) (bool, error)
	CountLateThisMonth(ctx context.Context, studentID string, ref time.Time) (int, error)
}

type bookingClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type bookingStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type bookingMetrics interface {
	RecordBookingCreated()
	RecordBookingCancelled(late bool)
	RecordCreditsConsumed(n int)
}

// BookingService orchestrates the booking lifecycle and the
// late-cancellation policy.
type BookingService struct {
	repo      bookingRepository
	classes   bookingClassReader
	students  bookingStudentReader
	policy    PolicyConfig
	metrics   bookingMetrics
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBookingService constructs the booking service.
func NewBookingService(repo bookingRepository, classes bookingClassReader, students bookingStudentReader, policy PolicyConfig, metrics bookingMetrics, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		repo:      repo,
		classes:   classes,
		students:  students,
		policy:    policy,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBookingRequest holds payload for reserving a class slot.
type CreateBookingRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// Book reserves a slot on a scheduled future class. The capacity claim
// happens atomically in the repository, so overbooking the last slot
// cannot occur even under concurrent requests.
func (s *BookingService) Book(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Status != models.ClassStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "class is not open for booking")
	}
	if !class.ScheduledAt.After(s.now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "class already started")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is inactive")
	}

	booking := &models.Booking{ClassID: req.ClassID, StudentID: req.StudentID}
	if err := s.repo.Create(ctx, booking); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateBooking):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already booked for this class")
		case errors.Is(err, repository.ErrCapacityFull):
			return nil, appErrors.Clone(appErrors.ErrClassFull, "")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordBookingCreated()
	}
	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("class_id", req.ClassID),
		zap.String("student_id", req.StudentID))
	return booking, nil
}

// MarkAttendance completes a confirmed booking and consumes one credit.
// Both writes share one transaction: if the student has no usable
// credits the booking stays confirmed.
func (s *BookingService) MarkAttendance(ctx context.Context, bookingID string) (*models.CreditTransaction, error) {
	if _, err := s.repo.FindByID(ctx, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}

	entry, err := s.repo.Complete(ctx, bookingID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidTransition):
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "booking is not confirmed")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNoCreditsAvailable, "")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordCreditsConsumed(1)
	}
	s.logger.Info("attendance marked",
		zap.String("booking_id", bookingID),
		zap.String("student_id", entry.StudentID),
		zap.Int("balance_after", entry.BalanceAfter))
	return entry, nil
}

// CancellationResult reports what the cancellation did.
type CancellationResult struct {
	Booking   *models.Booking `json:"booking"`
	Late      bool            `json:"late"`
	Penalized bool            `json:"penalized"`
}

// CancelWithPolicy cancels a confirmed booking applying the
// late-cancellation rules. Cancelling a class that already started is
// rejected; a late cancellation beyond the monthly tolerance costs one
// credit, deducted in the same transaction as the cancellation.
func (s *BookingService) CancelWithPolicy(ctx context.Context, bookingID, reason string) (*CancellationResult, error) {
	detail, err := s.repo.FindDetailByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if detail.Status != models.BookingStatusConfirmed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "booking is not confirmed")
	}

	now := s.now().UTC()
	untilStart := detail.ScheduledAt.Sub(now)
	if untilStart < 0 {
		return nil, appErrors.Clone(appErrors.ErrCannotCancelPast, "")
	}

	decision := Decision{}
	if untilStart < s.policy.CancellationWindow {
		student, err := s.students.FindByID(ctx, detail.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		lateUsed, err := s.repo.CountLateThisMonth(ctx, detail.StudentID, now)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count late cancellations")
		}
		decision = s.policy.Evaluate(untilStart, student.FrequencyCode, lateUsed)
	}

	penalized, err := s.repo.Cancel(ctx, repository.CancelParams{
		BookingID: bookingID,
		Reason:    reason,
		IsLate:    decision.Late,
		Penalize:  decision.Penalize,
		Now:       now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "booking is not confirmed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}

	if s.metrics != nil {
		s.metrics.RecordBookingCancelled(decision.Late)
		if penalized {
			s.metrics.RecordCreditsConsumed(1)
		}
	}
	s.logger.Info("booking cancelled",
		zap.String("booking_id", bookingID),
		zap.Bool("late", decision.Late),
		zap.Bool("penalized", penalized))

	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload booking")
	}
	return &CancellationResult{Booking: booking, Late: decision.Late, Penalized: penalized}, nil
}

// Get returns a booking with class and student context.
func (s *BookingService) Get(ctx context.Context, id string) (*models.BookingDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return detail, nil
}

// List returns bookings matching the filter with pagination metadata.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, *models.Pagination, error) {
	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return bookings, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
