package repositories

import (
	"context"
	"time"

	"github.com/prepkit/examprep-service/internal/models"
	"gorm.io/gorm"
)

// ExamRepository interface for mock exam session persistence.
type ExamRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.MockExamSession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.MockExamSession, error)
	Update(ctx context.Context, tx *gorm.DB, session *models.MockExamSession) error

	List(ctx context.Context, tx *gorm.DB, filters ExamFilters) ([]*models.MockExamSession, int64, error)

	// CountCompletedSince counts a user's COMPLETED sessions with
	// completed_at >= since. This is the monthly mock-exam ledger; abandoned
	// sessions never appear in it.
	CountCompletedSince(ctx context.Context, tx *gorm.DB, userID string, since time.Time) (int64, error)

	GetStats(ctx context.Context, tx *gorm.DB, userID string) (*ExamStats, error)
}
