package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/dto"
	"github.com/gpconsultingargentina/personal-trainer-api/pkg/cache"
	appErrors "github.com/gpconsultingargentina/personal-trainer-api/pkg/errors"
)

type dashboardRepository interface {
	ClassesBetween(ctx context.Context, from, to time.Time) ([]dto.DashboardClass, error)
	LowCreditStudents(ctx context.Context, threshold int) ([]dto.LowCreditStudent, error)
	WeekTotals(ctx context.Context, weekStart time.Time) (*dto.DashboardWeekTotals, error)
}

type pendingProofCounter interface {
	CountPending(ctx context.Context) (int, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardServiceConfig tunes the trainer dashboard.
type DashboardServiceConfig struct {
	CacheTTL           time.Duration
	LowCreditThreshold int
}

// DashboardService composes the trainer's daily summary, cached in
// redis so the landing page doesn't hammer the database.
type DashboardService struct {
	repo   dashboardRepository
	proofs pendingProofCounter
	cache  dashboardCache
	logger *zap.Logger
	cfg    DashboardServiceConfig
	now    func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(repo dashboardRepository, proofs pendingProofCounter, cacheStore dashboardCache, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.LowCreditThreshold <= 0 {
		cfg.LowCreditThreshold = 2
	}
	return &DashboardService{repo: repo, proofs: proofs, cache: cacheStore, logger: logger, cfg: cfg, now: time.Now}
}

const dashboardCacheKey = "dashboard:trainer"

// Trainer returns the trainer dashboard, serving a cached copy when one
// is fresh. The second return value reports a cache hit.
func (s *DashboardService) Trainer(ctx context.Context) (*dto.TrainerDashboardResponse, bool, error) {
	if s.cache != nil {
		var cached dto.TrainerDashboardResponse
		err := s.cache.Get(ctx, dashboardCacheKey, &cached)
		if err == nil {
			return &cached, true, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	todays, err := s.repo.ClassesBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's classes")
	}

	pending, err := s.proofs.CountPending(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending proofs")
	}

	lowCredit, err := s.repo.LowCreditStudents(ctx, s.cfg.LowCreditThreshold)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load low-credit students")
	}

	// Week starts on Monday.
	offset := (int(now.Weekday()) + 6) % 7
	weekStart := dayStart.AddDate(0, 0, -offset)
	totals, err := s.repo.WeekTotals(ctx, weekStart)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load week totals")
	}

	payload := &dto.TrainerDashboardResponse{
		GeneratedAt:   now,
		TodaysClasses: todays,
		PendingProofs: pending,
		LowCredit:     lowCredit,
		WeekSummary:   *totals,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, payload, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return payload, false, nil
}
