package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/cache"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db, cacheManager: cacheManager}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	return q.getDB(tx).WithContext(ctx).Create(question).Error
}

func (q *QuestionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return q.getDB(tx).WithContext(ctx).CreateInBatches(questions, 100).Error
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var question models.Question

	err := q.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var dbQuestion models.Question
		if err := db.WithContext(ctx).First(&dbQuestion, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get question: %w", err)
		}
		return &dbQuestion, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &question, nil
}

func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var questions []*models.Question
	if err := q.getDB(tx).WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	result := q.getDB(tx).WithContext(ctx).Delete(&models.Question{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	q.cacheManager.InvalidateQuestion(ctx, id)
	return nil
}

// UpdateAIExplanation backfills the generated explanation. Questions accept
// no other post-creation mutation.
func (q *QuestionPostgreSQL) UpdateAIExplanation(ctx context.Context, tx *gorm.DB, id uint, explanation string) error {
	result := q.getDB(tx).WithContext(ctx).
		Model(&models.Question{}).
		Where("id = ?", id).
		Update("ai_explanation", explanation)
	if result.Error != nil {
		return fmt.Errorf("failed to update ai explanation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	q.cacheManager.InvalidateQuestion(ctx, id)
	return nil
}

func (q *QuestionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	db := q.getDB(tx)
	query := ApplyQuestionFilters(db.WithContext(ctx).Model(&models.Question{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count questions: %w", err)
	}

	query = ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var questions []*models.Question
	if err := query.Find(&questions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, total, nil
}

// Count returns the size of the filtered pool; exam creation pairs it with
// FetchByOffsets for uniform sparse selection.
func (q *QuestionPostgreSQL) Count(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) (int64, error) {
	db := q.getDB(tx)
	var count int64
	query := ApplyQuestionFilters(db.WithContext(ctx).Model(&models.Question{}), filters)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

// FetchByOffsets fetches the rows at the given offsets of the filtered pool
// under a stable id ordering. Offsets chosen against Count with the same
// filter therefore address distinct rows without loading the whole pool.
func (q *QuestionPostgreSQL) FetchByOffsets(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters, offsets []int) ([]*models.Question, error) {
	db := q.getDB(tx)
	questions := make([]*models.Question, 0, len(offsets))

	for _, offset := range offsets {
		var question models.Question
		query := ApplyQuestionFilters(db.WithContext(ctx).Model(&models.Question{}), filters)
		err := query.Order("id asc").Offset(offset).Limit(1).First(&question).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Pool shrank between count and fetch; skip the vanished slot.
				continue
			}
			return nil, fmt.Errorf("failed to fetch question at offset %d: %w", offset, err)
		}
		questions = append(questions, &question)
	}

	return questions, nil
}
