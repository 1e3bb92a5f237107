package repositories

import (
	"context"

	"github.com/prepkit/examprep-service/internal/models"
	"gorm.io/gorm"
)

// SubscriptionRepository interface for subscription rows (one per user).
type SubscriptionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
	Update(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
	GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*models.Subscription, error)
	GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.Subscription, error)
	Delete(ctx context.Context, tx *gorm.DB, userID string) error
}

// CodeRepository interface for season pass codes.
type CodeRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, codes []*models.SeasonPassCode) error
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.SeasonPassCode, error)

	// MarkRedeemed flips the redemption flag iff it is still unset; returns
	// ErrNotFound when the code was already redeemed by a concurrent call
	// (guarded UPDATE ... WHERE redeemed = false).
	MarkRedeemed(ctx context.Context, tx *gorm.DB, code string, userID string) error

	List(ctx context.Context, tx *gorm.DB, filters CodeFilters) ([]*models.SeasonPassCode, int64, error)
	GetBatchStats(ctx context.Context, tx *gorm.DB, batchID string) (*CodeBatchStats, error)
}

// VerificationRepository interface for manual payment claims.
type VerificationRepository interface {
	Create(ctx context.Context, tx *gorm.DB, v *models.PaymentVerification) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaymentVerification, error)
	Update(ctx context.Context, tx *gorm.DB, v *models.PaymentVerification) error
	List(ctx context.Context, tx *gorm.DB, filters VerificationFilters) ([]*models.PaymentVerification, int64, error)
}
