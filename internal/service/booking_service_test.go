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

type mockBookingRepo struct {
	bookings    map[string]models.Booking
	details     map[string]models.BookingDetail
	createErr   error
	completeErr error
	cancelErr   error
	lateCount   int
	lastCancel  repository.CancelParams
	cancelCalls int
	penalize    bool
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	if b, ok := m.bookings[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookingRepo) FindDetailByID(ctx context.Context, id string) (*models.BookingDetail, error) {
	if d, ok := m.details[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBookingRepo) List(ctx context.Context, filter models.BookingFilter) ([]models.BookingDetail, int, error) {
	out := make([]models.BookingDetail, 0, len(m.details))
	for _, d := range m.details {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *mockBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	if m.createErr != nil {
		return m.createErr
	}
	booking.ID = "bk-new"
	booking.Status = models.BookingStatusConfirmed
	if m.bookings == nil {
		m.bookings = make(map[string]models.Booking)
	}
	m.bookings[booking.ID] = *booking
	return nil
}

func (m *mockBookingRepo) Complete(ctx context.Context, bookingID string) (*models.CreditTransaction, error) {
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	b := m.bookings[bookingID]
	b.Status = models.BookingStatusCompleted
	m.bookings[bookingID] = b
	return &models.CreditTransaction{StudentID: b.StudentID, Type: models.CreditTxAttendance, Amount: -1, BalanceAfter: 3}, nil
}

func (m *mockBookingRepo) Cancel(ctx context.Context, p repository.CancelParams) (bool, error) {
	m.cancelCalls++
	m.lastCancel = p
	if m.cancelErr != nil {
		return false, m.cancelErr
	}
	b := m.bookings[p.BookingID]
	b.Status = models.BookingStatusCancelled
	b.IsLateCancellation = p.IsLate
	m.bookings[p.BookingID] = b
	return p.Penalize && m.penalize, nil
}

func (m *mockBookingRepo) CountLateThisMonth(ctx context.Context, studentID string, ref time.Time) (int, error) {
	return m.lateCount, nil
}

type mockClassReader struct {
	classes map[string]models.Class
}

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type mockMetrics struct {
	created   int
	cancelled int
	lateCount int
	consumed  int
}

func (m *mockMetrics) RecordBookingCreated() { m.created++ }
func (m *mockMetrics) RecordBookingCancelled(late bool) {
	m.cancelled++
	if late {
		m.lateCount++
	}
}
func (m *mockMetrics) RecordCreditsConsumed(n int) { m.consumed += n }

var bookingTestNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newBookingFixture(repo *mockBookingRepo, classes *mockClassReader) (*BookingService, *mockMetrics) {
	if classes == nil {
		classes = &mockClassReader{classes: map[string]models.Class{
			"cls-1": {ID: "cls-1", ScheduledAt: bookingTestNow.Add(48 * time.Hour), MaxCapacity: 4, Status: models.ClassStatusScheduled},
		}}
	}
	students := &mockStudentReader{students: map[string]models.StudentDetail{
		"st-1": {Student: models.Student{ID: "st-1", FullName: "Jane Doe", FrequencyCode: "2x", Active: true}},
	}}
	metrics := &mockMetrics{}
	svc := NewBookingService(repo, classes, students, testPolicy(), metrics, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return bookingTestNow }
	return svc, metrics
}

func confirmedBooking(scheduledAt time.Time) (*mockBookingRepo, string) {
	booking := models.Booking{ID: "bk-1", ClassID: "cls-1", StudentID: "st-1", Status: models.BookingStatusConfirmed}
	return &mockBookingRepo{
		bookings: map[string]models.Booking{"bk-1": booking},
		details: map[string]models.BookingDetail{"bk-1": {
			Booking:     booking,
			ScheduledAt: scheduledAt,
			StudentName: "Jane Doe",
		}},
	}, "bk-1"
}

func TestBook(t *testing.T) {
	repo := &mockBookingRepo{}
	svc, metrics := newBookingFixture(repo, nil)

	booking, err := svc.Book(context.Background(), CreateBookingRequest{ClassID: "cls-1", StudentID: "st-1"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, 1, metrics.created)
}

func TestBookClassFull(t *testing.T) {
	repo := &mockBookingRepo{createErr: repository.ErrCapacityFull}
	svc, _ := newBookingFixture(repo, nil)

	_, err := svc.Book(context.Background(), CreateBookingRequest{ClassID: "cls-1", StudentID: "st-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrClassFull.Code, appErrors.FromError(err).Code)
}

func TestBookDuplicate(t *testing.T) {
	repo := &mockBookingRepo{createErr: repository.ErrDuplicateBooking}
	svc, _ := newBookingFixture(repo, nil)

	_, err := svc.Book(context.Background(), CreateBookingRequest{ClassID: "cls-1", StudentID: "st-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestBookPastClass(t *testing.T) {
	classes := &mockClassReader{classes: map[string]models.Class{
		"cls-1": {ID: "cls-1", ScheduledAt: bookingTestNow.Add(-time.Hour), Status: models.ClassStatusScheduled},
	}}
	svc, _ := newBookingFixture(&mockBookingRepo{}, classes)

	_, err := svc.Book(context.Background(), CreateBookingRequest{ClassID: "cls-1", StudentID: "st-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestMarkAttendance(t *testing.T) {
	repo, id := confirmedBooking(bookingTestNow.Add(-time.Hour))
	svc, metrics := newBookingFixture(repo, nil)

	entry, err := svc.MarkAttendance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, -1, entry.Amount)
	assert.Equal(t, 1, metrics.consumed)
	assert.Equal(t, models.BookingStatusCompleted, repo.bookings[id].Status)
}

func TestMarkAttendanceTwice(t *testing.T) {
	repo, id := confirmedBooking(bookingTestNow.Add(-time.Hour))
	svc, _ := newBookingFixture(repo, nil)

	_, err := svc.MarkAttendance(context.Background(), id)
	require.NoError(t, err)

	repo.completeErr = repository.ErrInvalidTransition
	_, err = svc.MarkAttendance(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestMarkAttendanceNoCredits(t *testing.T) {
	repo, id := confirmedBooking(bookingTestNow.Add(-time.Hour))
	repo.completeErr = sql.ErrNoRows
	svc, _ := newBookingFixture(repo, nil)

	_, err := svc.MarkAttendance(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoCreditsAvailable.Code, appErrors.FromError(err).Code)
	// Booking stays confirmed when the ledger is empty.
	assert.Equal(t, models.BookingStatusConfirmed, repo.bookings[id].Status)
}

func TestCancelOutsideWindow(t *testing.T) {
	repo, id := confirmedBooking(bookingTestNow.Add(25 * time.Hour))
	svc, metrics := newBookingFixture(repo, nil)

	result, err := svc.CancelWithPolicy(context.Background(), id, "feeling sick")
	require.NoError(t, err)
	assert.False(t, result.Late)
	assert.False(t, result.Penalized)
	assert.False(t, repo.lastCancel.IsLate)
	assert.Equal(t, 1, metrics.cancelled)
	assert.Zero(t, metrics.lateCount)
}

func TestCancelLateWithinTolerance(t *testing.T) {
	repo, id := confirmedBooking(bookingTestNow.Add(3 * time.Hour))
	repo.lateCount = 0
	svc, _ := newBookingFixture(repo, nil)

	result, err := svc.CancelWithPolicy(context.Background(), id, "")
	require.NoError(t, err)
	assert.True(t, result.Late)
	assert.False(t, result.Penalized)
	assert.True(t, repo.lastCancel.IsLate)
	assert.False(t, repo.lastCancel.Penalize)
}

func TestCancelLateBeyondTolerance(t *testing.T) {
	// Frequency 2x tolerates one late cancellation per month.
	repo, id := confirmedBooking(bookingTestNow.Add(3 * time.Hour))
	repo.lateCount = 1
	repo.penalize = true
	svc, metrics := newBookingFixture(repo, nil)

	result, err := svc.CancelWithPolicy(context.Background(), id, "")
	require.NoError(t, err)
	assert.True(t, result.Late)
	assert.True(t, result.Penalized)
	assert.True(t, repo.lastCancel.Penalize)
	assert.Equal(t, 1, metrics.consumed)
	assert.Equal(t, 1, metrics.lateCount)
}

func TestCancelPastClass(t *testing.T) {
	repo, id := confirmedBooking(bookingTestNow.Add(-time.Minute))
	svc, _ := newBookingFixture(repo, nil)

	_, err := svc.CancelWithPolicy(context.Background(), id, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCannotCancelPast.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.cancelCalls)
}

func TestCancelAlreadyCancelled(t *testing.T) {
	booking := models.Booking{ID: "bk-1", ClassID: "cls-1", StudentID: "st-1", Status: models.BookingStatusCancelled}
	repo := &mockBookingRepo{
		bookings: map[string]models.Booking{"bk-1": booking},
		details:  map[string]models.BookingDetail{"bk-1": {Booking: booking, ScheduledAt: bookingTestNow.Add(48 * time.Hour)}},
	}
	svc, _ := newBookingFixture(repo, nil)

	_, err := svc.CancelWithPolicy(context.Background(), "bk-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}
