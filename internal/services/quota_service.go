package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/cache"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

type quotaService struct {
	repo     repositories.Repository
	db       *gorm.DB
	logger   *slog.Logger
	cache    *cache.CacheManager
	location *time.Location
}

// NewQuotaService creates the usage ledger service. All day and month windows
// are anchored to the given canonical timezone regardless of client locale.
func NewQuotaService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, cacheManager *cache.CacheManager, location *time.Location) QuotaService {
	return &quotaService{
		repo:     repo,
		db:       db,
		logger:   logger,
		cache:    cacheManager,
		location: location,
	}
}

func (s *quotaService) UsageDate(now time.Time) string {
	return now.In(s.location).Format("2006-01-02")
}

func (s *quotaService) nextDayBoundary(now time.Time) time.Time {
	local := now.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, s.location)
}

func (s *quotaService) startOfMonth(now time.Time) time.Time {
	local := now.In(s.location)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.location)
}

func (s *quotaService) nextMonthBoundary(now time.Time) time.Time {
	local := now.In(s.location)
	return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, s.location)
}

// CheckDailyQuota rejects before the underlying action when the user's daily
// limit for the given kind is already spent. Unlimited skips the read.
func (s *quotaService) CheckDailyQuota(ctx context.Context, user *models.User, kind models.UsageKind) error {
	limit := s.dailyLimit(user, kind)
	if limit == Unlimited {
		return nil
	}

	now := time.Now()
	used, err := s.repo.Usage().GetCount(ctx, s.db, user.ID, kind, s.UsageDate(now))
	if err != nil {
		return fmt.Errorf("failed to read %s usage: %w", kind, err)
	}

	if used >= limit {
		return &QuotaError{
			Kind:     kind,
			Limit:    limit,
			Used:     used,
			ResetsAt: s.nextDayBoundary(now),
		}
	}
	return nil
}

// CheckExamQuota enforces the monthly mock exam cap. Only completed exams
// count, so abandoning a session never burns quota.
func (s *quotaService) CheckExamQuota(ctx context.Context, user *models.User) error {
	limits := LimitsFor(user, time.Now())
	if limits.MonthlyExamLimit == Unlimited {
		return nil
	}

	now := time.Now()
	used, err := s.repo.Exam().CountCompletedSince(ctx, s.db, user.ID, s.startOfMonth(now))
	if err != nil {
		return fmt.Errorf("failed to count monthly exams: %w", err)
	}

	if int(used) >= limits.MonthlyExamLimit {
		return &ExamQuotaError{
			Limit:    limits.MonthlyExamLimit,
			Used:     int(used),
			ResetsAt: s.nextMonthBoundary(now),
		}
	}
	return nil
}

// RecordUsage increments the user's counter for today. Callers invoke it only
// after the gated action succeeded.
func (s *quotaService) RecordUsage(ctx context.Context, tx *gorm.DB, userID string, kind models.UsageKind) (int, error) {
	count, err := s.repo.Usage().IncrementCount(ctx, tx, userID, kind, s.UsageDate(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to record %s usage: %w", kind, err)
	}
	s.cache.InvalidateUserLimits(ctx, userID)
	return count, nil
}

// DailyUsed returns today's counter without gating.
func (s *quotaService) DailyUsed(ctx context.Context, userID string, kind models.UsageKind) (int, error) {
	used, err := s.repo.Usage().GetCount(ctx, s.db, userID, kind, s.UsageDate(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to read %s usage: %w", kind, err)
	}
	return used, nil
}

// MonthlyExamsUsed returns the number of completed exams in the current month.
func (s *quotaService) MonthlyExamsUsed(ctx context.Context, userID string) (int, error) {
	used, err := s.repo.Exam().CountCompletedSince(ctx, s.db, userID, s.startOfMonth(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to count monthly exams: %w", err)
	}
	return int(used), nil
}

// PracticeLimits summarizes the practice entitlement for the limits endpoint.
// Snapshots are cached briefly; RecordUsage and user entitlement writes drop
// them, so the short TTL only bounds staleness from other replicas.
func (s *quotaService) PracticeLimits(ctx context.Context, user *models.User) (*PracticeLimitsResponse, error) {
	var resp PracticeLimitsResponse
	cacheKey := fmt.Sprintf("%s:practice", user.ID)

	err := s.cache.Limits.CacheOrExecute(ctx, cacheKey, &resp, cache.LimitsCacheConfig.TTL, func() (interface{}, error) {
		return s.buildPracticeLimits(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *quotaService) buildPracticeLimits(ctx context.Context, user *models.User) (*PracticeLimitsResponse, error) {
	limits := LimitsFor(user, time.Now())

	used, err := s.DailyUsed(ctx, user.ID, models.UsagePractice)
	if err != nil {
		return nil, err
	}

	remaining := Unlimited
	if limits.PracticeDailyLimit != Unlimited {
		remaining = max(limits.PracticeDailyLimit-used, 0)
	}

	return &PracticeLimitsResponse{
		IsPremium:      limits.IsPremium,
		DailyLimit:     limits.PracticeDailyLimit,
		UsedToday:      used,
		RemainingToday: remaining,
	}, nil
}

// ExamLimits summarizes the mock exam entitlement for the limits endpoint.
func (s *quotaService) ExamLimits(ctx context.Context, user *models.User) (*ExamLimitsResponse, error) {
	var resp ExamLimitsResponse
	cacheKey := fmt.Sprintf("%s:exams", user.ID)

	err := s.cache.Limits.CacheOrExecute(ctx, cacheKey, &resp, cache.LimitsCacheConfig.TTL, func() (interface{}, error) {
		return s.buildExamLimits(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *quotaService) buildExamLimits(ctx context.Context, user *models.User) (*ExamLimitsResponse, error) {
	limits := LimitsFor(user, time.Now())

	used, err := s.MonthlyExamsUsed(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	remaining := Unlimited
	if limits.MonthlyExamLimit != Unlimited {
		remaining = max(limits.MonthlyExamLimit-used, 0)
	}

	return &ExamLimitsResponse{
		IsPremium:               limits.IsPremium,
		MaxQuestionsPerExam:     limits.MaxQuestionsPerExam,
		MonthlyExamLimit:        limits.MonthlyExamLimit,
		ExamsUsedThisMonth:      used,
		RemainingExamsThisMonth: remaining,
	}, nil
}

func (s *quotaService) dailyLimit(user *models.User, kind models.UsageKind) int {
	limits := LimitsFor(user, time.Now())
	switch kind {
	case models.UsageExplanation:
		return limits.ExplanationDailyLimit
	default:
		return limits.PracticeDailyLimit
	}
}
