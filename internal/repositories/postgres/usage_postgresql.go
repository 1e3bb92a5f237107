package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

type UsagePostgreSQL struct {
	db *gorm.DB
}

func NewUsagePostgreSQL(db *gorm.DB) repositories.UsageRepository {
	return &UsagePostgreSQL{db: db}
}

func (u *UsagePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return u.db
}

func (u *UsagePostgreSQL) GetCount(ctx context.Context, tx *gorm.DB, userID string, kind models.UsageKind, day string) (int, error) {
	var usage models.DailyUsage
	err := u.getDB(tx).WithContext(ctx).
		Where("user_id = ? AND kind = ? AND usage_date = ?", userID, kind, day).
		First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get usage count: %w", err)
	}
	return usage.Count, nil
}

// IncrementCount is a single-statement upsert-increment: concurrent calls
// for the same (user, kind, day) serialize on the row and no update is lost.
func (u *UsagePostgreSQL) IncrementCount(ctx context.Context, tx *gorm.DB, userID string, kind models.UsageKind, day string) (int, error) {
	var count int
	err := u.getDB(tx).WithContext(ctx).Raw(`
		INSERT INTO daily_usage (user_id, kind, usage_date, count, created_at, updated_at)
		VALUES (?, ?, ?, 1, NOW(), NOW())
		ON CONFLICT (user_id, kind, usage_date)
		DO UPDATE SET count = daily_usage.count + 1, updated_at = NOW()
		RETURNING count`,
		userID, kind, day,
	).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage count: %w", err)
	}
	return count, nil
}

func (u *UsagePostgreSQL) GetStreak(ctx context.Context, tx *gorm.DB, userID string) (*models.UserStreak, error) {
	var streak models.UserStreak
	err := u.getDB(tx).WithContext(ctx).First(&streak, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return &streak, nil
}

func (u *UsagePostgreSQL) UpsertStreak(ctx context.Context, tx *gorm.DB, streak *models.UserStreak) error {
	return u.getDB(tx).WithContext(ctx).Save(streak).Error
}
