package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/jobs"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/notify"
)

type reminderBookingRepository interface {
	ListDueReminders(ctx context.Context, from, to time.Time, flag string) ([]models.BookingDetail, error)
	MarkReminderSent(ctx context.Context, bookingID, flag string) (bool, error)
}

type reminderMetrics interface {
	RecordReminderEnqueued()
}

// ReminderServiceConfig tunes the sweep windows and worker pool.
type ReminderServiceConfig struct {
	FirstOffset  time.Duration
	SecondOffset time.Duration
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
}

// reminderJob is the queue payload for one booking on one channel.
type reminderJob struct {
	BookingID   string
	Flag        string
	Channel     string
	To          string
	StudentName string
	ScheduledAt time.Time
}

// ReminderService finds bookings that need a reminder and dispatches
// the sends through a worker queue so a slow channel never blocks the
// sweep. The per-booking sent flags make repeated sweeps idempotent.
type ReminderService struct {
	repo    reminderBookingRepository
	senders map[string]notify.Sender
	queue   *jobs.Queue
	metrics reminderMetrics
	cfg     ReminderServiceConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewReminderService constructs the reminder service and its queue.
func NewReminderService(repo reminderBookingRepository, senders []notify.Sender, metrics reminderMetrics, cfg ReminderServiceConfig, logger *zap.Logger) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FirstOffset <= 0 {
		cfg.FirstOffset = 24 * time.Hour
	}
	if cfg.SecondOffset <= 0 {
		cfg.SecondOffset = 2 * time.Hour
	}

	byChannel := make(map[string]notify.Sender, len(senders))
	for _, sender := range senders {
		if sender != nil {
			byChannel[sender.Channel()] = sender
		}
	}

	s := &ReminderService{
		repo:    repo,
		senders: byChannel,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	s.queue = jobs.NewQueue("reminders", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *ReminderService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *ReminderService) Stop() {
	s.queue.Stop()
}

// SweepResult reports how many reminders each pass claimed.
type SweepResult struct {
	First  int `json:"reminders_24h"`
	Second int `json:"reminders_2h"`
}

// Sweep claims due reminders for both offsets and enqueues the sends.
// Each booking's flag is flipped before enqueueing, so a booking is
// claimed by exactly one sweep even when two run concurrently.
func (s *ReminderService) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}

	first, err := s.sweepOffset(ctx, "24h", s.cfg.FirstOffset)
	if err != nil {
		return nil, err
	}
	result.First = first

	second, err := s.sweepOffset(ctx, "2h", s.cfg.SecondOffset)
	if err != nil {
		return nil, err
	}
	result.Second = second

	if result.First+result.Second > 0 {
		s.logger.Info("reminder sweep finished",
			zap.Int("reminders_24h", result.First),
			zap.Int("reminders_2h", result.Second))
	}
	return result, nil
}

func (s *ReminderService) sweepOffset(ctx context.Context, flag string, offset time.Duration) (int, error) {
	now := s.now().UTC()
	due, err := s.repo.ListDueReminders(ctx, now, now.Add(offset), flag)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list due reminders")
	}

	claimed := 0
	for _, booking := range due {
		ok, err := s.repo.MarkReminderSent(ctx, booking.ID, flag)
		if err != nil {
			s.logger.Warn("failed to claim reminder",
				zap.String("booking_id", booking.ID),
				zap.String("flag", flag),
				zap.Error(err))
			continue
		}
		if !ok {
			// Another sweep got there first.
			continue
		}
		claimed++
		s.enqueueChannels(booking, flag)
	}
	return claimed, nil
}

func (s *ReminderService) enqueueChannels(booking models.BookingDetail, flag string) {
	targets := map[string]string{
		"email":    booking.StudentEmail,
		"whatsapp": booking.StudentPhone,
	}
	for channel, to := range targets {
		if _, ok := s.senders[channel]; !ok || to == "" {
			continue
		}
		job := jobs.Job{
			ID:   uuid.NewString(),
			Type: "reminder." + flag,
			Payload: reminderJob{
				BookingID:   booking.ID,
				Flag:        flag,
				Channel:     channel,
				To:          to,
				StudentName: booking.StudentName,
				ScheduledAt: booking.ScheduledAt,
			},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue reminder",
				zap.String("booking_id", booking.ID),
				zap.String("channel", channel),
				zap.Error(err))
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordReminderEnqueued()
		}
	}
}

// deliver sends one reminder on one channel. Errors bubble up so the
// queue can retry without touching the other channel.
func (s *ReminderService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reminderJob)
	if !ok {
		return fmt.Errorf("unexpected reminder payload %T", job.Payload)
	}
	sender, ok := s.senders[payload.Channel]
	if !ok {
		return fmt.Errorf("no sender for channel %q", payload.Channel)
	}

	when := payload.ScheduledAt.Format("Monday 15:04")
	msg := notify.Message{
		To:      payload.To,
		Subject: "Class reminder",
		Body: fmt.Sprintf("Hi %s! A reminder that your class is coming up on %s. See you there!",
			payload.StudentName, when),
	}
	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s reminder for booking %s: %w", payload.Channel, payload.BookingID, err)
	}
	s.logger.Debug("reminder delivered",
		zap.String("booking_id", payload.BookingID),
		zap.String("channel", payload.Channel),
		zap.String("flag", payload.Flag))
	return nil
}
