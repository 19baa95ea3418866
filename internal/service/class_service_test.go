package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/repository"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
)

type mockClassRepo struct {
	classes   map[string]models.Class
	taken     map[time.Time]bool
	created   []models.Class
	createErr error
	completed []string
	cancelErr error
	released  int
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	out := make([]models.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	if m.createErr != nil {
		return m.createErr
	}
	class.ID = "cls-new"
	m.created = append(m.created, *class)
	return nil
}

func (m *mockClassRepo) ExistsAt(ctx context.Context, scheduledAt time.Time) (bool, error) {
	return m.taken[scheduledAt], nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) MarkCompleted(ctx context.Context, id string) error {
	if _, ok := m.classes[id]; !ok {
		return repository.ErrInvalidTransition
	}
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockClassRepo) CancelWithBookings(ctx context.Context, id, reason string) (int, error) {
	if m.cancelErr != nil {
		return 0, m.cancelErr
	}
	return m.released, nil
}

var classTestNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newClassFixture(repo *mockClassRepo) *ClassService {
	svc := NewClassService(repo, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return classTestNow }
	return svc
}

func TestClassCreateDuplicateSlot(t *testing.T) {
	slot := classTestNow.Add(48 * time.Hour)
	repo := &mockClassRepo{taken: map[time.Time]bool{slot: true}}
	svc := newClassFixture(repo)

	_, err := svc.Create(context.Background(), CreateClassRequest{
		ScheduledAt:     slot,
		DurationMinutes: 60,
		MaxCapacity:     4,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClassCreateInPast(t *testing.T) {
	svc := newClassFixture(&mockClassRepo{})

	_, err := svc.Create(context.Background(), CreateClassRequest{
		ScheduledAt:     classTestNow.Add(-time.Hour),
		DurationMinutes: 60,
		MaxCapacity:     4,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassUpdateCapacityBelowBookings(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"cls-1": {ID: "cls-1", ScheduledAt: classTestNow.Add(48 * time.Hour), MaxCapacity: 6, CurrentBookings: 4, Status: models.ClassStatusScheduled},
	}}
	svc := newClassFixture(repo)

	_, err := svc.Update(context.Background(), "cls-1", UpdateClassRequest{
		ScheduledAt:     classTestNow.Add(48 * time.Hour),
		DurationMinutes: 60,
		MaxCapacity:     3,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBulkGenerate(t *testing.T) {
	repo := &mockClassRepo{taken: map[time.Time]bool{}}
	svc := newClassFixture(repo)

	// Two weeks, Mondays and Wednesdays, two times per day.
	result, err := svc.BulkGenerate(context.Background(), BulkGenerateRequest{
		StartDate:       time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC),
		Weekdays:        []time.Weekday{time.Monday, time.Wednesday},
		Times:           []string{"08:00", "19:30"},
		DurationMinutes: 60,
		MaxCapacity:     5,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, result.Created)
	assert.Zero(t, result.Errors)
	require.Len(t, repo.created, 8)
	assert.Equal(t, time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC), repo.created[0].ScheduledAt)
	assert.Equal(t, time.Date(2026, 3, 16, 19, 30, 0, 0, time.UTC), repo.created[1].ScheduledAt)
}

func TestBulkGenerateSkipsOccupiedSlots(t *testing.T) {
	occupied := time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)
	repo := &mockClassRepo{taken: map[time.Time]bool{occupied: true}}
	svc := newClassFixture(repo)

	result, err := svc.BulkGenerate(context.Background(), BulkGenerateRequest{
		StartDate:       time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		Weekdays:        []time.Weekday{time.Monday},
		Times:           []string{"08:00", "19:30"},
		DurationMinutes: 60,
		MaxCapacity:     5,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Errors)
}

func TestBulkGenerateBadTime(t *testing.T) {
	svc := newClassFixture(&mockClassRepo{})

	_, err := svc.BulkGenerate(context.Background(), BulkGenerateRequest{
		StartDate:       time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC),
		Weekdays:        []time.Weekday{time.Monday},
		Times:           []string{"8 o'clock"},
		DurationMinutes: 60,
		MaxCapacity:     5,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassCancelReleasesBookings(t *testing.T) {
	repo := &mockClassRepo{released: 3}
	svc := newClassFixture(repo)

	released, err := svc.Cancel(context.Background(), "cls-1", "trainer unavailable")
	require.NoError(t, err)
	assert.Equal(t, 3, released)
}

func TestClassCompleteNotScheduled(t *testing.T) {
	svc := newClassFixture(&mockClassRepo{})

	err := svc.Complete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}
