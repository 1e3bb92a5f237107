package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

// ===== PER-ENTITY MOCKS =====

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	return m.Called(ctx, tx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error) {
	args := m.Called(ctx, tx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, tx *gorm.DB, user *models.User) error {
	return m.Called(ctx, tx, user).Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *MockUserRepository) SetPremium(ctx context.Context, tx *gorm.DB, userID string, premium bool, expiry *time.Time) error {
	return m.Called(ctx, tx, userID, premium, expiry).Error(0)
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	args := m.Called(ctx, tx, email)
	return args.Bool(0), args.Error(1)
}

type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	return m.Called(ctx, tx, question).Error(0)
}

func (m *MockQuestionRepository) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error {
	return m.Called(ctx, tx, questions).Error(0)
}

func (m *MockQuestionRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Question), args.Error(1)
}

func (m *MockQuestionRepository) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	args := m.Called(ctx, tx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Question), args.Error(1)
}

func (m *MockQuestionRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *MockQuestionRepository) UpdateAIExplanation(ctx context.Context, tx *gorm.DB, id uint, explanation string) error {
	return m.Called(ctx, tx, id, explanation).Error(0)
}

func (m *MockQuestionRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	args := m.Called(ctx, tx, filters)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Question), args.Get(1).(int64), args.Error(2)
}

func (m *MockQuestionRepository) Count(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) (int64, error) {
	args := m.Called(ctx, tx, filters)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQuestionRepository) FetchByOffsets(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters, offsets []int) ([]*models.Question, error) {
	args := m.Called(ctx, tx, filters, offsets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Question), args.Error(1)
}

type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) Create(ctx context.Context, tx *gorm.DB, session *models.MockExamSession) error {
	return m.Called(ctx, tx, session).Error(0)
}

func (m *MockExamRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.MockExamSession, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MockExamSession), args.Error(1)
}

func (m *MockExamRepository) Update(ctx context.Context, tx *gorm.DB, session *models.MockExamSession) error {
	return m.Called(ctx, tx, session).Error(0)
}

func (m *MockExamRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.MockExamSession, int64, error) {
	args := m.Called(ctx, tx, filters)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.MockExamSession), args.Get(1).(int64), args.Error(2)
}

func (m *MockExamRepository) CountCompletedSince(ctx context.Context, tx *gorm.DB, userID string, since time.Time) (int64, error) {
	args := m.Called(ctx, tx, userID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockExamRepository) GetStats(ctx context.Context, tx *gorm.DB, userID string) (*repositories.ExamStats, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.ExamStats), args.Error(1)
}

type MockUsageRepository struct {
	mock.Mock
}

func (m *MockUsageRepository) GetCount(ctx context.Context, tx *gorm.DB, userID string, kind models.UsageKind, day string) (int, error) {
	args := m.Called(ctx, tx, userID, kind, day)
	return args.Int(0), args.Error(1)
}

func (m *MockUsageRepository) IncrementCount(ctx context.Context, tx *gorm.DB, userID string, kind models.UsageKind, day string) (int, error) {
	args := m.Called(ctx, tx, userID, kind, day)
	return args.Int(0), args.Error(1)
}

func (m *MockUsageRepository) GetStreak(ctx context.Context, tx *gorm.DB, userID string) (*models.UserStreak, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserStreak), args.Error(1)
}

func (m *MockUsageRepository) UpsertStreak(ctx context.Context, tx *gorm.DB, streak *models.UserStreak) error {
	return m.Called(ctx, tx, streak).Error(0)
}

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	return m.Called(ctx, tx, sub).Error(0)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	return m.Called(ctx, tx, sub).Error(0)
}

func (m *MockSubscriptionRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*models.Subscription, error) {
	args := m.Called(ctx, tx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.Subscription, error) {
	args := m.Called(ctx, tx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Delete(ctx context.Context, tx *gorm.DB, userID string) error {
	return m.Called(ctx, tx, userID).Error(0)
}

type MockCodeRepository struct {
	mock.Mock
}

func (m *MockCodeRepository) CreateBatch(ctx context.Context, tx *gorm.DB, codes []*models.SeasonPassCode) error {
	return m.Called(ctx, tx, codes).Error(0)
}

func (m *MockCodeRepository) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.SeasonPassCode, error) {
	args := m.Called(ctx, tx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SeasonPassCode), args.Error(1)
}

func (m *MockCodeRepository) MarkRedeemed(ctx context.Context, tx *gorm.DB, code string, userID string) error {
	return m.Called(ctx, tx, code, userID).Error(0)
}

func (m *MockCodeRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.CodeFilters) ([]*models.SeasonPassCode, int64, error) {
	args := m.Called(ctx, tx, filters)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.SeasonPassCode), args.Get(1).(int64), args.Error(2)
}

func (m *MockCodeRepository) GetBatchStats(ctx context.Context, tx *gorm.DB, batchID string) (*repositories.CodeBatchStats, error) {
	args := m.Called(ctx, tx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.CodeBatchStats), args.Error(1)
}

type MockVerificationRepository struct {
	mock.Mock
}

func (m *MockVerificationRepository) Create(ctx context.Context, tx *gorm.DB, v *models.PaymentVerification) error {
	return m.Called(ctx, tx, v).Error(0)
}

func (m *MockVerificationRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.PaymentVerification, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentVerification), args.Error(1)
}

func (m *MockVerificationRepository) Update(ctx context.Context, tx *gorm.DB, v *models.PaymentVerification) error {
	return m.Called(ctx, tx, v).Error(0)
}

func (m *MockVerificationRepository) List(ctx context.Context, tx *gorm.DB, filters repositories.VerificationFilters) ([]*models.PaymentVerification, int64, error) {
	args := m.Called(ctx, tx, filters)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.PaymentVerification), args.Get(1).(int64), args.Error(2)
}

// ===== AGGREGATE =====

// mockRepo satisfies repositories.Repository; WithTransaction runs fn with a
// nil handle since the mocks ignore it.
type mockRepo struct {
	user         *MockUserRepository
	question     *MockQuestionRepository
	exam         *MockExamRepository
	usage        *MockUsageRepository
	subscription *MockSubscriptionRepository
	code         *MockCodeRepository
	verification *MockVerificationRepository
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		user:         new(MockUserRepository),
		question:     new(MockQuestionRepository),
		exam:         new(MockExamRepository),
		usage:        new(MockUsageRepository),
		subscription: new(MockSubscriptionRepository),
		code:         new(MockCodeRepository),
		verification: new(MockVerificationRepository),
	}
}

func (r *mockRepo) User() repositories.UserRepository { return r.user }

func (r *mockRepo) Question() repositories.QuestionRepository { return r.question }

func (r *mockRepo) Exam() repositories.ExamRepository { return r.exam }

func (r *mockRepo) Usage() repositories.UsageRepository { return r.usage }

func (r *mockRepo) Subscription() repositories.SubscriptionRepository { return r.subscription }

func (r *mockRepo) Code() repositories.CodeRepository { return r.code }

func (r *mockRepo) Verification() repositories.VerificationRepository { return r.verification }

func (r *mockRepo) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (r *mockRepo) Ping(ctx context.Context) error { return nil }
func (r *mockRepo) Close() error                   { return nil }
