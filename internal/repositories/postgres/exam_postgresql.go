package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/cache"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

type ExamPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewExamPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.ExamRepository {
	return &ExamPostgreSQL{db: db, cacheManager: cacheManager}
}

func (e *ExamPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

func (e *ExamPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.MockExamSession) error {
	return e.getDB(tx).WithContext(ctx).Create(session).Error
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.MockExamSession, error) {
	var session models.MockExamSession
	err := e.getDB(tx).WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exam session: %w", err)
	}
	return &session, nil
}

func (e *ExamPostgreSQL) Update(ctx context.Context, tx *gorm.DB, session *models.MockExamSession) error {
	if err := e.getDB(tx).WithContext(ctx).Save(session).Error; err != nil {
		return err
	}
	// Terminal transitions change the stats aggregates and the monthly
	// exam ledger behind the limits snapshots.
	e.cacheManager.InvalidateExamStats(ctx, session.UserID)
	e.cacheManager.InvalidateUserLimits(ctx, session.UserID)
	return nil
}

func (e *ExamPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.MockExamSession, int64, error) {
	db := e.getDB(tx)
	query := ApplyExamFilters(db.WithContext(ctx).Model(&models.MockExamSession{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count exam sessions: %w", err)
	}

	query = ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var sessions []*models.MockExamSession
	if err := query.Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list exam sessions: %w", err)
	}
	return sessions, total, nil
}

// CountCompletedSince is the monthly ledger: only COMPLETED sessions count,
// keyed by completion time.
func (e *ExamPostgreSQL) CountCompletedSince(ctx context.Context, tx *gorm.DB, userID string, since time.Time) (int64, error) {
	var count int64
	err := e.getDB(tx).WithContext(ctx).
		Model(&models.MockExamSession{}).
		Where("user_id = ? AND status = ? AND completed_at >= ?", userID, models.ExamCompleted, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count completed exams: %w", err)
	}
	return count, nil
}

func (e *ExamPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, userID string) (*repositories.ExamStats, error) {
	db := e.getDB(tx)
	cacheKey := fmt.Sprintf("exam:%s", userID)
	var stats repositories.ExamStats

	err := e.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		result := repositories.ExamStats{
			StatusBreakdown: make(map[models.ExamStatus]int),
		}

		var rows []struct {
			Status models.ExamStatus
			Count  int
		}
		if err := db.WithContext(ctx).
			Model(&models.MockExamSession{}).
			Select("status, count(*) as count").
			Where("user_id = ?", userID).
			Group("status").
			Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to get status breakdown: %w", err)
		}
		for _, row := range rows {
			result.StatusBreakdown[row.Status] = row.Count
			result.TotalExams += row.Count
		}

		var agg struct {
			AvgScore float64
			Passed   int64
			Total    int64
		}
		if err := db.WithContext(ctx).
			Model(&models.MockExamSession{}).
			Select("COALESCE(AVG(score), 0) as avg_score, COUNT(*) FILTER (WHERE score >= passing_score) as passed, COUNT(*) as total").
			Where("user_id = ? AND status = ?", userID, models.ExamCompleted).
			Scan(&agg).Error; err != nil {
			return nil, fmt.Errorf("failed to aggregate scores: %w", err)
		}
		result.AverageScore = agg.AvgScore
		if agg.Total > 0 {
			result.PassRate = float64(agg.Passed) / float64(agg.Total) * 100
		}

		return &result, nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
