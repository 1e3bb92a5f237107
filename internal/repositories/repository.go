package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Repository aggregates all per-entity repositories.
type Repository interface {
	User() UserRepository
	Question() QuestionRepository
	Exam() ExamRepository
	Usage() UsageRepository
	Subscription() SubscriptionRepository
	Code() CodeRepository
	Verification() VerificationRepository

	// WithTransaction runs fn inside one database transaction and passes the
	// transaction handle for use as the tx argument of repository calls.
	// Subscription-plus-premium activation relies on this boundary being
	// all-or-nothing.
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager owns the Repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
