package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

// ===== SUBSCRIPTIONS =====

type SubscriptionPostgreSQL struct {
	db *gorm.DB
}

func NewSubscriptionPostgreSQL(db *gorm.DB) repositories.SubscriptionRepository {
	return &SubscriptionPostgreSQL{db: db}
}

func (s *SubscriptionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *SubscriptionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	err := s.getDB(tx).WithContext(ctx).Create(sub).Error
	if err != nil && repositories.IsDuplicateKeyError(err) {
		return repositories.ErrDuplicateKey
	}
	return err
}

func (s *SubscriptionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	return s.getDB(tx).WithContext(ctx).Save(sub).Error
}

func (s *SubscriptionPostgreSQL) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.getDB(tx).WithContext(ctx).First(&sub, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (s *SubscriptionPostgreSQL) GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.getDB(tx).WithContext(ctx).First(&sub, "reference_number = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription by reference: %w", err)
	}
	return &sub, nil
}

func (s *SubscriptionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, userID string) error {
	return s.getDB(tx).WithContext(ctx).Delete(&models.Subscription{}, "user_id = ?", userID).Error
}

// ===== SEASON PASS CODES =====

type CodePostgreSQL struct {
	db *gorm.DB
}

func NewCodePostgreSQL(db *gorm.DB) repositories.CodeRepository {
	return &CodePostgreSQL{db: db}
}

func (c *CodePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

func (c *CodePostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, codes []*models.SeasonPassCode) error {
	if len(codes) == 0 {
		return nil
	}
	return c.getDB(tx).WithContext(ctx).CreateInBatches(codes, 200).Error
}

func (c *CodePostgreSQL) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.SeasonPassCode, error) {
	var spc models.SeasonPassCode
	err := c.getDB(tx).WithContext(ctx).First(&spc, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	return &spc, nil
}

// MarkRedeemed uses a guarded UPDATE so two concurrent redemptions of the
// same code cannot both succeed.
func (c *CodePostgreSQL) MarkRedeemed(ctx context.Context, tx *gorm.DB, code string, userID string) error {
	now := time.Now()
	result := c.getDB(tx).WithContext(ctx).
		Model(&models.SeasonPassCode{}).
		Where("code = ? AND redeemed = false", code).
		Updates(map[string]interface{}{
			"redeemed":    true,
			"redeemed_by": userID,
			"redeemed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark code redeemed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (c *CodePostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.CodeFilters) ([]*models.SeasonPassCode, int64, error) {
	query := c.getDB(tx).WithContext(ctx).Model(&models.SeasonPassCode{})
	if filters.BatchID != nil {
		query = query.Where("batch_id = ?", *filters.BatchID)
	}
	if filters.Redeemed != nil {
		query = query.Where("redeemed = ?", *filters.Redeemed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count codes: %w", err)
	}

	query = ApplyPaginationAndSort(query, "created_at", "desc", filters.Limit, filters.Offset)

	var codes []*models.SeasonPassCode
	if err := query.Find(&codes).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list codes: %w", err)
	}
	return codes, total, nil
}

func (c *CodePostgreSQL) GetBatchStats(ctx context.Context, tx *gorm.DB, batchID string) (*repositories.CodeBatchStats, error) {
	var stats repositories.CodeBatchStats
	err := c.getDB(tx).WithContext(ctx).
		Model(&models.SeasonPassCode{}).
		Select("? as batch_id, COUNT(*) as total, COUNT(*) FILTER (WHERE redeemed) as redeemed", batchID).
		Where("batch_id = ?", batchID).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get batch stats: %w", err)
	}
	return &stats, nil
}

// ===== PAYMENT VERIFICATIONS =====

type VerificationPostgreSQL struct {
	db *gorm.DB
}

func NewVerificationPostgreSQL(db *gorm.DB) repositories.VerificationRepository {
	return &VerificationPostgreSQL{db: db}
}

func (v *VerificationPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return v.db
}

func (v *VerificationPostgreSQL) Create(ctx context.Context, tx *gorm.DB, record *models.PaymentVerification) error {
	return v.getDB(tx).WithContext(ctx).Create(record).Error
}

func (v *VerificationPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaymentVerification, error) {
	var record models.PaymentVerification
	err := v.getDB(tx).WithContext(ctx).First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}
	return &record, nil
}

func (v *VerificationPostgreSQL) Update(ctx context.Context, tx *gorm.DB, record *models.PaymentVerification) error {
	return v.getDB(tx).WithContext(ctx).Save(record).Error
}

func (v *VerificationPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.VerificationFilters) ([]*models.PaymentVerification, int64, error) {
	query := v.getDB(tx).WithContext(ctx).Model(&models.PaymentVerification{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count verifications: %w", err)
	}

	query = ApplyPaginationAndSort(query, "created_at", "desc", filters.Limit, filters.Offset)

	var records []*models.PaymentVerification
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list verifications: %w", err)
	}
	return records, total, nil
}
