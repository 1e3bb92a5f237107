package repositories

import (
	"context"
	"time"

	"github.com/prepkit/examprep-service/internal/models"
	"gorm.io/gorm"
)

// UserRepository interface for user operations.
type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error)
	Update(ctx context.Context, tx *gorm.DB, user *models.User) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error

	// SetPremium flips the entitlement pair on the user row. Must be called
	// inside the same transaction as the subscription write (see
	// Repository.WithTransaction).
	SetPremium(ctx context.Context, tx *gorm.DB, userID string, premium bool, expiry *time.Time) error

	ExistsByEmail(ctx context.Context, tx *gorm.DB, email string) (bool, error)
}
