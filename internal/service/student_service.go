package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	FrequencyByCode(ctx context.Context, code string) (*models.Frequency, error)
	ListFrequencies(ctx context.Context) ([]models.Frequency, error)
	UpsertFrequency(ctx context.Context, freq *models.Frequency) error
}

type registrationTokenWriter interface {
	CreateRegistrationToken(ctx context.Context, token *models.RegistrationToken) error
}

// StudentService handles student roster use-cases.
type StudentService struct {
	repo      studentRepository
	tokens    registrationTokenWriter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, tokens registrationTokenWriter, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, tokens: tokens, validator: validate, logger: logger, now: time.Now}
}

// CreateStudentRequest holds payload for registering a student.
type CreateStudentRequest struct {
	FullName      string `json:"full_name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone"`
	FrequencyCode string `json:"frequency_code" validate:"required"`
	Notes         string `json:"notes"`
}

// UpdateStudentRequest holds payload for editing a student.
type UpdateStudentRequest struct {
	FullName      string `json:"full_name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone"`
	FrequencyCode string `json:"frequency_code" validate:"required"`
	Notes         string `json:"notes"`
	Active        bool   `json:"active"`
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student with plan and credit context.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student under an existing frequency plan.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := s.ensureFrequency(ctx, req.FrequencyCode); err != nil {
		return nil, err
	}

	student := &models.Student{
		FullName:      req.FullName,
		Email:         req.Email,
		Phone:         req.Phone,
		FrequencyCode: req.FrequencyCode,
		Notes:         req.Notes,
		Active:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID))
	return student, nil
}

// Update edits student fields, including plan and active flag.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.ensureFrequency(ctx, req.FrequencyCode); err != nil {
		return nil, err
	}

	student := detail.Student
	student.FullName = req.FullName
	student.Email = req.Email
	student.Phone = req.Phone
	student.FrequencyCode = req.FrequencyCode
	student.Notes = req.Notes
	student.Active = req.Active
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return &student, nil
}

// CreateInvite issues a one-shot registration token the student uses to
// create their login.
func (s *StudentService) CreateInvite(ctx context.Context, studentID string, ttl time.Duration) (*models.RegistrationToken, error) {
	if _, err := s.repo.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate invite token")
	}
	token := &models.RegistrationToken{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		StudentID: studentID,
		ExpiresAt: s.now().UTC().Add(ttl),
	}
	if err := s.tokens.CreateRegistrationToken(ctx, token); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist invite token")
	}
	s.logger.Info("registration invite created", zap.String("student_id", studentID), zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}

// Frequencies lists the available subscription plans.
func (s *StudentService) Frequencies(ctx context.Context) ([]models.Frequency, error) {
	freqs, err := s.repo.ListFrequencies(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list frequencies")
	}
	return freqs, nil
}

// UpsertFrequencyRequest holds payload for creating or updating a plan.
type UpsertFrequencyRequest struct {
	Code           string  `json:"code" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	ClassesPerWeek int     `json:"classes_per_week" validate:"required,gt=0"`
	PricePerClass  float64 `json:"price_per_class" validate:"required,gt=0"`
	Active         bool    `json:"active"`
}

// UpsertFrequency creates or updates a subscription plan.
func (s *StudentService) UpsertFrequency(ctx context.Context, req UpsertFrequencyRequest) (*models.Frequency, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid frequency payload")
	}
	freq := &models.Frequency{
		Code:           req.Code,
		Name:           req.Name,
		ClassesPerWeek: req.ClassesPerWeek,
		PricePerClass:  req.PricePerClass,
		Active:         req.Active,
	}
	if err := s.repo.UpsertFrequency(ctx, freq); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save frequency")
	}
	return freq, nil
}

func (s *StudentService) ensureFrequency(ctx context.Context, code string) error {
	freq, err := s.repo.FrequencyByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown frequency code")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load frequency")
	}
	if !freq.Active {
		return appErrors.Clone(appErrors.ErrValidation, "frequency is inactive")
	}
	return nil
}
