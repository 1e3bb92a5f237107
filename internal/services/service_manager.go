package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/auth"
	"github.com/prepkit/examprep-service/internal/cache"
	"github.com/prepkit/examprep-service/internal/events"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/validator"
)

// ServiceManagerConfig carries the cross-cutting dependencies the individual
// services need beyond the repository.
type ServiceManagerConfig struct {
	TokenMaker    *auth.Maker
	Publisher     events.EventPublisher
	Cache         *cache.CacheManager
	OpenAIKey     string
	WebhookSecret string
	UsageTimezone string
}

type serviceManager struct {
	db        *gorm.DB
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	userService         UserService
	questionService     QuestionService
	practiceService     PracticeService
	examService         ExamService
	quotaService        QuotaService
	billingService      BillingService
	explanationService  ExplanationService
	importExportService ImportExportService

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a service manager with all dependencies.
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		db:        db,
		repo:      repo,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// Initialize wires up all services. Must be called once before any getter.
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	location, err := time.LoadLocation(sm.config.UsageTimezone)
	if err != nil {
		return fmt.Errorf("invalid usage timezone %q: %w", sm.config.UsageTimezone, err)
	}

	cacheManager := sm.config.Cache
	if cacheManager == nil {
		cacheManager = cache.NewCacheManager(nil)
	}

	sm.quotaService = NewQuotaService(sm.repo, sm.db, sm.logger, cacheManager, location)
	sm.userService = NewUserService(sm.repo, sm.db, sm.logger, sm.validator, sm.config.TokenMaker, sm.quotaService)
	sm.questionService = NewQuestionService(sm.repo, sm.db, sm.logger, sm.validator, cacheManager)
	sm.practiceService = NewPracticeService(sm.repo, sm.db, sm.logger, sm.validator, sm.quotaService, location)
	sm.examService = NewExamService(sm.repo, sm.db, sm.logger, sm.validator, sm.quotaService, sm.config.Publisher)
	sm.billingService = NewBillingService(sm.repo, sm.db, sm.logger, sm.validator, sm.config.Publisher, sm.config.WebhookSecret)
	sm.importExportService = NewImportExportService(sm.repo, sm.db, sm.logger, sm.validator)

	var aiClient explanationClient
	if sm.config.OpenAIKey != "" {
		aiClient = openai.NewClient(sm.config.OpenAIKey)
	}
	sm.explanationService = NewExplanationService(sm.repo, sm.db, sm.logger, sm.quotaService, aiClient)

	sm.initialized = true
	sm.logger.Info("Service manager initialized")
	return nil
}

func (sm *serviceManager) get(name string, initialized bool) {
	if !initialized {
		panic(fmt.Sprintf("%s service accessed before Initialize", name))
	}
}

func (sm *serviceManager) User() UserService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get("user", sm.initialized)
	return sm.userService
}

func (sm *serviceManager) Question() QuestionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get("question", sm.initialized)
	return sm.questionService
}

func (sm *serviceManager) Practice() PracticeService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get("practice", sm.initialized)
	return sm.practiceService
}

func (sm *serviceManager) Exam() ExamService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get("exam", sm.initialized)
	return sm.examService
}

func (sm *serviceManager) Quota() QuotaService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get("quota", sm.initialized)
	return sm.quotaService
}

func (sm *serviceManager) Billing() BillingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get("billing", sm.initialized)
	return sm.billingService
}

func (sm *serviceManager) Explanation() ExplanationService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get("explanation", sm.initialized)
	return sm.explanationService
}

func (sm *serviceManager) ImportExport() ImportExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.get("import/export", sm.initialized)
	return sm.importExportService
}

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if manager, ok := sm.repo.(repositories.RepositoryManager); ok {
		if err := manager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("repository health check failed: %w", err)
		}
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}
	sm.logger.Info("Shutting down service manager")

	if sm.config.Publisher != nil {
		if err := sm.config.Publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}
	if manager, ok := sm.repo.(repositories.RepositoryManager); ok {
		if err := manager.Shutdown(ctx); err != nil {
			sm.logger.Error("Failed to shutdown repository manager", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down")
	return nil
}
