package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/validator"
)

type practiceService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	quota     QuotaService
	location  *time.Location
}

func NewPracticeService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, quota QuotaService, location *time.Location) PracticeService {
	return &practiceService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		quota:     quota,
		location:  location,
	}
}

// GetQuestions returns a random batch of practice questions with the answer
// key stripped.
func (s *practiceService) GetQuestions(ctx context.Context, userID string, filters repositories.QuestionFilters, count int) ([]*QuestionView, error) {
	if count <= 0 {
		count = 1
	}
	if count > 50 {
		count = 50
	}

	total, err := s.repo.Question().Count(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to count question pool: %w", err)
	}
	if total == 0 {
		return nil, ErrInsufficientQuestions
	}
	if int64(count) > total {
		count = int(total)
	}

	questions, err := s.repo.Question().FetchByOffsets(ctx, s.db, filters, sampleOffsets(int(total), count))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch practice questions: %w", err)
	}
	return toQuestionViews(questions)
}

// SubmitAnswer grades one practice answer. The daily quota is checked before
// grading and the counter incremented only after, so a failed submission
// never burns quota.
func (s *practiceService) SubmitAnswer(ctx context.Context, userID string, req *PracticeAnswerRequest) (*PracticeAnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	user, err := s.repo.User().GetByID(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.quota.CheckDailyQuota(ctx, user, models.UsagePractice); err != nil {
		return nil, err
	}

	question, err := s.repo.Question().GetByID(ctx, s.db, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if !question.HasOption(req.SelectedOptionID) {
		return nil, ErrOptionNotInQuestion
	}

	var usedToday int
	var streak *models.UserStreak
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		usedToday, err = s.quota.RecordUsage(ctx, tx, userID, models.UsagePractice)
		if err != nil {
			return err
		}

		streak, err = s.touchStreak(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	limits := LimitsFor(user, time.Now())
	remaining := Unlimited
	if limits.PracticeDailyLimit != Unlimited {
		remaining = max(limits.PracticeDailyLimit-usedToday, 0)
	}

	return &PracticeAnswerResponse{
		QuestionID:       question.ID,
		Correct:          req.SelectedOptionID == question.CorrectOptionID,
		SelectedOptionID: req.SelectedOptionID,
		CorrectOptionID:  question.CorrectOptionID,
		Explanation:      question.Explanation,
		AIExplanation:    question.AIExplanation,
		UsedToday:        usedToday,
		RemainingToday:   remaining,
		CurrentStreak:    streak.CurrentStreak,
		LongestStreak:    streak.LongestStreak,
	}, nil
}

// GetStreak returns the user's streak row, zero-valued when none exists yet.
func (s *practiceService) GetStreak(ctx context.Context, userID string) (*models.UserStreak, error) {
	streak, err := s.repo.Usage().GetStreak(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return &models.UserStreak{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return streak, nil
}

// touchStreak advances the consecutive-day counter. Same-day activity is a
// no-op, yesterday extends, anything older restarts at one.
func (s *practiceService) touchStreak(ctx context.Context, tx *gorm.DB, userID string) (*models.UserStreak, error) {
	now := time.Now().In(s.location)
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	streak, err := s.repo.Usage().GetStreak(ctx, tx, userID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to get streak: %w", err)
		}
		streak = &models.UserStreak{UserID: userID}
	}

	switch streak.LastActivityDate {
	case today:
		return streak, nil
	case yesterday:
		streak.CurrentStreak++
	default:
		streak.CurrentStreak = 1
	}
	streak.LastActivityDate = today
	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}

	if err := s.repo.Usage().UpsertStreak(ctx, tx, streak); err != nil {
		return nil, fmt.Errorf("failed to update streak: %w", err)
	}
	return streak, nil
}
