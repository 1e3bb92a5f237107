package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/cache"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/validator"
)

type questionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	cache     *cache.CacheManager
}

func NewQuestionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, cacheManager *cache.CacheManager) QuestionService {
	return &questionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		cache:     cacheManager,
	}
}

func (s *questionService) Create(ctx context.Context, req *QuestionCreateRequest, creatorID string) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := s.requireAdmin(ctx, creatorID, "question", "create"); err != nil {
		return nil, err
	}

	question, err := buildQuestion(req, creatorID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Question().Create(ctx, s.db, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("Question created",
		"question_id", question.ID,
		"category", question.Category,
		"created_by", creatorID)

	return question, nil
}

func (s *questionService) Delete(ctx context.Context, id uint, userID string) error {
	if err := s.requireAdmin(ctx, userID, "question", "delete"); err != nil {
		return err
	}

	if err := s.repo.Question().Delete(ctx, s.db, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to delete question: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateQuestion(ctx, id)
	}

	s.logger.Info("Question deleted", "question_id", id, "deleted_by", userID)
	return nil
}

func (s *questionService) GetByID(ctx context.Context, id uint) (*models.Question, error) {
	question, err := s.repo.Question().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return question, nil
}

func (s *questionService) List(ctx context.Context, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	questions, total, err := s.repo.Question().List(ctx, s.db, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, total, nil
}

func (s *questionService) requireAdmin(ctx context.Context, userID, resource, action string) error {
	user, err := s.repo.User().GetByID(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleAdmin {
		return NewPermissionError(userID, 0, resource, action, "admin role required")
	}
	return nil
}

func buildQuestion(req *QuestionCreateRequest, creatorID string) (*models.Question, error) {
	options := make([]models.QuestionOption, 0, len(req.Options))
	valid := false
	for _, opt := range req.Options {
		options = append(options, models.QuestionOption{ID: opt.ID, Text: opt.Text})
		if opt.ID == req.CorrectOptionID {
			valid = true
		}
	}
	if !valid {
		return nil, fmt.Errorf("%w: correct_option_id must reference one of the options", ErrValidationFailed)
	}

	optionsBlob, err := marshalJSON(options)
	if err != nil {
		return nil, err
	}

	return &models.Question{
		Category:        req.Category,
		Difficulty:      req.Difficulty,
		Text:            req.Text,
		Options:         optionsBlob,
		CorrectOptionID: req.CorrectOptionID,
		Explanation:     req.Explanation,
		CreatedBy:       creatorID,
	}, nil
}
