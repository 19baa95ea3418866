package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/notify"
)

type mockReminderRepo struct {
	mu      sync.Mutex
	due     map[string][]models.BookingDetail
	claimed map[string]bool
}

func (m *mockReminderRepo) ListDueReminders(ctx context.Context, from, to time.Time, flag string) ([]models.BookingDetail, error) {
	return m.due[flag], nil
}

func (m *mockReminderRepo) MarkReminderSent(ctx context.Context, bookingID, flag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed == nil {
		m.claimed = make(map[string]bool)
	}
	key := bookingID + ":" + flag
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

type capturingSender struct {
	channel string
	sent    chan notify.Message
}

func (s *capturingSender) Send(ctx context.Context, msg notify.Message) error {
	s.sent <- msg
	return nil
}

func (s *capturingSender) Channel() string { return s.channel }

func dueBooking(id string) models.BookingDetail {
	return models.BookingDetail{
		Booking:      models.Booking{ID: id, ClassID: "cls-1", StudentID: "stu-1", Status: models.BookingStatusConfirmed},
		ScheduledAt:  time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		StudentName:  "Jane Doe",
		StudentEmail: "jane@example.com",
		StudentPhone: "+5491100000000",
	}
}

func TestReminderSweepEnqueuesBothChannels(t *testing.T) {
	repo := &mockReminderRepo{due: map[string][]models.BookingDetail{
		"24h": {dueBooking("bk-1")},
	}}
	email := &capturingSender{channel: "email", sent: make(chan notify.Message, 4)}
	whatsapp := &capturingSender{channel: "whatsapp", sent: make(chan notify.Message, 4)}
	metrics := &mockReminderMetrics{}

	svc := NewReminderService(repo, []notify.Sender{email, whatsapp}, metrics, ReminderServiceConfig{Workers: 2}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.First)
	assert.Zero(t, result.Second)

	msg := waitForMessage(t, email.sent)
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Contains(t, msg.Body, "Jane Doe")
	assert.Contains(t, msg.Body, "Wednesday 09:00")

	msg = waitForMessage(t, whatsapp.sent)
	assert.Equal(t, "+5491100000000", msg.To)

	assert.Equal(t, 2, metrics.enqueued())
}

func TestReminderSweepIdempotent(t *testing.T) {
	repo := &mockReminderRepo{due: map[string][]models.BookingDetail{
		"2h": {dueBooking("bk-1")},
	}}
	email := &capturingSender{channel: "email", sent: make(chan notify.Message, 4)}

	svc := NewReminderService(repo, []notify.Sender{email}, nil, ReminderServiceConfig{}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Second)

	// The flag was already claimed, so a second sweep finds nothing new.
	result, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Second)
}

func TestReminderSweepSkipsMissingContact(t *testing.T) {
	booking := dueBooking("bk-1")
	booking.StudentPhone = ""
	repo := &mockReminderRepo{due: map[string][]models.BookingDetail{
		"24h": {booking},
	}}
	email := &capturingSender{channel: "email", sent: make(chan notify.Message, 4)}
	whatsapp := &capturingSender{channel: "whatsapp", sent: make(chan notify.Message, 4)}

	svc := NewReminderService(repo, []notify.Sender{email, whatsapp}, nil, ReminderServiceConfig{}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	_, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	waitForMessage(t, email.sent)
	select {
	case <-whatsapp.sent:
		t.Fatal("no whatsapp reminder expected without a phone number")
	case <-time.After(100 * time.Millisecond):
	}
}

type mockReminderMetrics struct {
	mu sync.Mutex
	n  int
}

func (m *mockReminderMetrics) RecordReminderEnqueued() {
	m.mu.Lock()
	m.n++
	m.mu.Unlock()
}

func (m *mockReminderMetrics) enqueued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

func waitForMessage(t *testing.T, ch chan notify.Message) notify.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reminder delivery")
		return notify.Message{}
	}
}
