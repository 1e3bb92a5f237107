package repositories

import (
	"context"

	"github.com/prepkit/examprep-service/internal/models"
	"gorm.io/gorm"
)

// QuestionRepository interface for question pool operations.
//
// Count and FetchByOffsets together implement the count-then-sparse-fetch
// contract used for uniform random exam selection: FetchByOffsets must apply
// the same filter with a stable ordering so that offsets chosen against
// Count address distinct rows.
type QuestionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Explanation backfill is the only permitted post-creation mutation.
	UpdateAIExplanation(ctx context.Context, tx *gorm.DB, id uint, explanation string) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]*models.Question, int64, error)
	Count(ctx context.Context, tx *gorm.DB, filters QuestionFilters) (int64, error)
	FetchByOffsets(ctx context.Context, tx *gorm.DB, filters QuestionFilters, offsets []int) ([]*models.Question, error)
}
