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

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	Create(ctx context.Context, class *models.Class) error
	ExistsAt(ctx context.Context, scheduledAt time.Time) (bool, error)
	Update(ctx context.Context, class *models.Class) error
	MarkCompleted(ctx context.Context, id string) error
	CancelWithBookings(ctx context.Context, id, reason string) (int, error)
}

// ClassService handles scheduling use-cases.
type ClassService struct {
	repo      classRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewClassService constructs the class service.
func NewClassService(repo classRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// CreateClassRequest holds payload for scheduling a single class.
type CreateClassRequest struct {
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	MaxCapacity     int       `json:"max_capacity" validate:"required,gt=0"`
	Notes           string    `json:"notes"`
}

// Create schedules a single class, rejecting duplicate time slots.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if !req.ScheduledAt.After(s.now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class must be scheduled in the future")
	}

	taken, err := s.repo.ExistsAt(ctx, req.ScheduledAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class slot")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a class is already scheduled at that time")
	}

	class := &models.Class{
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		MaxCapacity:     req.MaxCapacity,
		Status:          models.ClassStatusScheduled,
		Notes:           req.Notes,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// UpdateClassRequest holds editable class fields.
type UpdateClassRequest struct {
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	MaxCapacity     int       `json:"max_capacity" validate:"required,gt=0"`
	Notes           string    `json:"notes"`
}

// Update edits a scheduled class. Capacity can never drop below the
// seats already claimed.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Status != models.ClassStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only scheduled classes can be edited")
	}
	if req.MaxCapacity < class.CurrentBookings {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity cannot be below current bookings")
	}

	class.ScheduledAt = req.ScheduledAt
	class.DurationMinutes = req.DurationMinutes
	class.MaxCapacity = req.MaxCapacity
	class.Notes = req.Notes
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// BulkGenerateRequest describes a recurring weekly schedule to expand
// over a date range.
type BulkGenerateRequest struct {
	StartDate       time.Time      `json:"start_date" validate:"required"`
	EndDate         time.Time      `json:"end_date" validate:"required"`
	Weekdays        []time.Weekday `json:"weekdays" validate:"required,min=1"`
	Times           []string       `json:"times" validate:"required,min=1,dive,required"`
	DurationMinutes int            `json:"duration_minutes" validate:"required,gt=0"`
	MaxCapacity     int            `json:"max_capacity" validate:"required,gt=0"`
}

// BulkGenerate expands the weekly pattern into individual classes.
// Occupied slots and individual insert failures are counted as errors
// without aborting the rest of the range.
func (s *ClassService) BulkGenerate(ctx context.Context, req BulkGenerateRequest) (*models.BulkGenerateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk generation payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}

	slots := make([]time.Duration, 0, len(req.Times))
	for _, raw := range req.Times {
		t, err := time.Parse("15:04", raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "times must use the HH:MM format")
		}
		slots = append(slots, time.Duration(t.Hour())*time.Hour+time.Duration(t.Minute())*time.Minute)
	}
	wanted := make(map[time.Weekday]bool, len(req.Weekdays))
	for _, d := range req.Weekdays {
		wanted[d] = true
	}

	result := &models.BulkGenerateResult{}
	start := time.Date(req.StartDate.Year(), req.StartDate.Month(), req.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(req.EndDate.Year(), req.EndDate.Month(), req.EndDate.Day(), 0, 0, 0, 0, time.UTC)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !wanted[day.Weekday()] {
			continue
		}
		for _, slot := range slots {
			scheduledAt := day.Add(slot)
			taken, err := s.repo.ExistsAt(ctx, scheduledAt)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class slot")
			}
			if taken {
				result.Errors++
				continue
			}
			class := &models.Class{
				ScheduledAt:     scheduledAt,
				DurationMinutes: req.DurationMinutes,
				MaxCapacity:     req.MaxCapacity,
				Status:          models.ClassStatusScheduled,
			}
			if err := s.repo.Create(ctx, class); err != nil {
				s.logger.Warn("bulk generation insert failed",
					zap.Time("scheduled_at", scheduledAt),
					zap.Error(err))
				result.Errors++
				continue
			}
			result.Created++
		}
	}

	s.logger.Info("classes generated",
		zap.Int("created", result.Created),
		zap.Int("errors", result.Errors))
	return result, nil
}

// Complete marks a scheduled class as held.
func (s *ClassService) Complete(ctx context.Context, id string) error {
	if err := s.repo.MarkCompleted(ctx, id); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return appErrors.Clone(appErrors.ErrInvalidState, "class is not scheduled")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete class")
	}
	return nil
}

// Cancel cancels a scheduled class and releases its confirmed bookings
// without penalty. Returns how many bookings were released.
func (s *ClassService) Cancel(ctx context.Context, id, reason string) (int, error) {
	released, err := s.repo.CancelWithBookings(ctx, id, reason)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return 0, appErrors.Clone(appErrors.ErrInvalidState, "class is not scheduled")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel class")
	}
	s.logger.Info("class cancelled", zap.String("class_id", id), zap.Int("released_bookings", released))
	return released, nil
}

// Get returns a class by id.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// List returns classes matching the filter with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
