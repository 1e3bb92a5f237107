package repositories

import (
	"context"

	"github.com/prepkit/examprep-service/internal/models"
	"gorm.io/gorm"
)

// UsageRepository interface for the daily quota ledger and streaks.
type UsageRepository interface {
	// GetCount returns the counter for (user, kind, day), 0 when no row
	// exists yet.
	GetCount(ctx context.Context, tx *gorm.DB, userID string, kind models.UsageKind, day string) (int, error)

	// IncrementCount atomically creates-or-increments the counter row and
	// returns the new value. Safe under concurrent calls for the same user:
	// single row, upsert-increment, no lost updates.
	IncrementCount(ctx context.Context, tx *gorm.DB, userID string, kind models.UsageKind, day string) (int, error)

	GetStreak(ctx context.Context, tx *gorm.DB, userID string) (*models.UserStreak, error)
	UpsertStreak(ctx context.Context, tx *gorm.DB, streak *models.UserStreak) error
}
