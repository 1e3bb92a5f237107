package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/events"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/validator"
)

type examService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	quota     QuotaService
	publisher events.EventPublisher
}

func NewExamService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, quota QuotaService, publisher events.EventPublisher) ExamService {
	return &examService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		quota:     quota,
		publisher: publisher,
	}
}

// ===== SESSION LIFECYCLE =====

func (s *examService) Create(ctx context.Context, req *ExamCreateRequest, userID string) (*ExamSessionResponse, error) {
	s.logger.Info("Creating mock exam session",
		"user_id", userID,
		"total_questions", req.TotalQuestions)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if !req.Mixed && len(req.Categories) == 0 {
		return nil, fmt.Errorf("%w: categories are required unless the exam is mixed", ErrValidationFailed)
	}

	user, err := s.repo.User().GetByID(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	limits := LimitsFor(user, time.Now())
	if req.TotalQuestions > limits.MaxQuestionsPerExam {
		return nil, NewPermissionError(userID, 0, "exam", "create",
			fmt.Sprintf("your plan allows up to %d questions per exam; upgrade to premium to raise the cap", limits.MaxQuestionsPerExam))
	}

	if err := s.quota.CheckExamQuota(ctx, user); err != nil {
		return nil, err
	}

	filters := repositories.QuestionFilters{Difficulty: req.Difficulty}
	if !req.Mixed {
		filters.Categories = req.Categories
	}

	questions, err := s.selectRandomQuestions(ctx, filters, req.TotalQuestions)
	if err != nil {
		return nil, err
	}

	questionIDs := make([]uint, 0, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.ID)
	}

	idsBlob, err := marshalJSON(questionIDs)
	if err != nil {
		return nil, err
	}
	categoriesBlob, err := marshalJSON(filters.Categories)
	if err != nil {
		return nil, err
	}

	session := &models.MockExamSession{
		UserID:           userID,
		Status:           models.ExamInProgress,
		TotalQuestions:   req.TotalQuestions,
		TimeLimitMinutes: req.TimeLimitMinutes,
		PassingScore:     req.PassingScore,
		Mixed:            req.Mixed,
		Categories:       categoriesBlob,
		Difficulty:       req.Difficulty,
		QuestionIDs:      idsBlob,
		Answers:          datatypes.JSON([]byte("{}")),
		Flags:            datatypes.JSON([]byte("[]")),
		StartedAt:        time.Now(),
	}

	if err := s.repo.Exam().Create(ctx, s.db, session); err != nil {
		return nil, fmt.Errorf("failed to create exam session: %w", err)
	}

	views, err := toQuestionViews(questions)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Mock exam session created",
		"exam_id", session.ID,
		"user_id", userID,
		"total_questions", len(questionIDs))

	return &ExamSessionResponse{
		ExamID:           session.ID,
		TotalQuestions:   session.TotalQuestions,
		TimeLimitMinutes: session.TimeLimitMinutes,
		PassingScore:     session.PassingScore,
		Status:           session.Status,
		StartedAt:        session.StartedAt,
		Questions:        views,
	}, nil
}

func (s *examService) RecordAnswer(ctx context.Context, examID uint, userID string, req *ExamAnswerRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		session, err := s.getActiveSession(ctx, tx, examID, userID)
		if err != nil {
			return err
		}

		order, err := decodeQuestionIDs(session.QuestionIDs)
		if err != nil {
			return err
		}
		if !containsID(order, req.QuestionID) {
			return ErrQuestionNotInExam
		}

		question, err := s.repo.Question().GetByID(ctx, tx, req.QuestionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("failed to get question: %w", err)
		}
		if !question.HasOption(req.SelectedOptionID) {
			return ErrOptionNotInQuestion
		}

		answers, err := decodeAnswers(session.Answers)
		if err != nil {
			return err
		}
		answers[req.QuestionID] = req.SelectedOptionID

		session.Answers, err = encodeAnswers(answers)
		if err != nil {
			return err
		}
		if err := s.repo.Exam().Update(ctx, tx, session); err != nil {
			return fmt.Errorf("failed to persist answer: %w", err)
		}
		return nil
	})
}

func (s *examService) ToggleFlag(ctx context.Context, examID uint, userID string, req *ExamFlagRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		session, err := s.getActiveSession(ctx, tx, examID, userID)
		if err != nil {
			return err
		}

		order, err := decodeQuestionIDs(session.QuestionIDs)
		if err != nil {
			return err
		}
		if !containsID(order, req.QuestionID) {
			return ErrQuestionNotInExam
		}

		flags, err := decodeFlags(session.Flags)
		if err != nil {
			return err
		}

		updated := flags[:0]
		for _, id := range flags {
			if id != req.QuestionID {
				updated = append(updated, id)
			}
		}
		if req.Flagged {
			updated = append(updated, req.QuestionID)
		}

		session.Flags, err = marshalJSON(updated)
		if err != nil {
			return err
		}
		if err := s.repo.Exam().Update(ctx, tx, session); err != nil {
			return fmt.Errorf("failed to persist flag: %w", err)
		}
		return nil
	})
}

func (s *examService) Complete(ctx context.Context, examID uint, userID string) (*ExamResultsResponse, error) {
	s.logger.Info("Completing mock exam session", "exam_id", examID, "user_id", userID)

	var results *ExamResultsResponse
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		session, err := s.getActiveSession(ctx, tx, examID, userID)
		if err != nil {
			return err
		}

		outcome, err := s.gradeSession(ctx, tx, session)
		if err != nil {
			return err
		}

		now := time.Now()
		session.Status = models.ExamCompleted
		session.CompletedAt = &now
		session.Score = &outcome.Score

		if err := s.repo.Exam().Update(ctx, tx, session); err != nil {
			return fmt.Errorf("failed to complete exam session: %w", err)
		}

		results = buildResults(session, outcome)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishExamCompleted(userID, results)

	s.logger.Info("Mock exam session completed",
		"exam_id", examID,
		"user_id", userID,
		"score", results.Score,
		"passed", results.Passed)

	return results, nil
}

func (s *examService) Abandon(ctx context.Context, examID uint, userID string) error {
	s.logger.Info("Abandoning mock exam session", "exam_id", examID, "user_id", userID)

	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		session, err := s.getActiveSession(ctx, tx, examID, userID)
		if err != nil {
			return err
		}

		// CompletedAt stays nil; it marks a scored finish only.
		now := time.Now()
		session.Status = models.ExamAbandoned
		session.AbandonedAt = &now

		if err := s.repo.Exam().Update(ctx, tx, session); err != nil {
			return fmt.Errorf("failed to abandon exam session: %w", err)
		}
		return nil
	})
}

// ===== READ OPERATIONS =====

func (s *examService) GetState(ctx context.Context, examID uint, userID string) (*ExamStateResponse, error) {
	session, err := s.getOwnedSession(ctx, s.db, examID, userID)
	if err != nil {
		return nil, err
	}

	order, err := decodeQuestionIDs(session.QuestionIDs)
	if err != nil {
		return nil, err
	}
	answers, err := decodeAnswers(session.Answers)
	if err != nil {
		return nil, err
	}
	flags, err := decodeFlags(session.Flags)
	if err != nil {
		return nil, err
	}

	questions, err := s.repo.Question().GetByIDs(ctx, s.db, order)
	if err != nil {
		return nil, fmt.Errorf("failed to get session questions: %w", err)
	}
	views, err := toQuestionViews(orderQuestions(questions, order))
	if err != nil {
		return nil, err
	}

	state := &ExamStateResponse{
		ExamID:           session.ID,
		Status:           session.Status,
		TotalQuestions:   len(order),
		Answered:         len(answers),
		Flagged:          len(flags),
		Unanswered:       len(order) - len(answers),
		TimeLimitMinutes: session.TimeLimitMinutes,
		PassingScore:     session.PassingScore,
		StartedAt:        session.StartedAt,
		CompletedAt:      session.CompletedAt,
		AbandonedAt:      session.AbandonedAt,
		Score:            session.Score,
		Questions:        views,
		Answers:          answers,
		Flags:            flags,
	}

	if session.Status == models.ExamInProgress {
		deadline := session.StartedAt.Add(time.Duration(session.TimeLimitMinutes) * time.Minute)
		state.RemainingSeconds = max(int(time.Until(deadline).Seconds()), 0)
	}
	return state, nil
}

func (s *examService) Results(ctx context.Context, examID uint, userID string) (*ExamResultsResponse, error) {
	session, err := s.getOwnedSession(ctx, s.db, examID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.ExamCompleted {
		return nil, ErrExamNotActive
	}

	outcome, err := s.gradeSession(ctx, s.db, session)
	if err != nil {
		return nil, err
	}
	return buildResults(session, outcome), nil
}

func (s *examService) List(ctx context.Context, userID string, filters repositories.ExamFilters) (*ExamListResponse, error) {
	filters.UserID = &userID
	sessions, total, err := s.repo.Exam().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list exam sessions: %w", err)
	}

	summaries := make([]*ExamSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, &ExamSummary{
			ExamID:           session.ID,
			Status:           session.Status,
			TotalQuestions:   session.TotalQuestions,
			TimeLimitMinutes: session.TimeLimitMinutes,
			PassingScore:     session.PassingScore,
			Mixed:            session.Mixed,
			StartedAt:        session.StartedAt,
			CompletedAt:      session.CompletedAt,
			AbandonedAt:      session.AbandonedAt,
			Score:            session.Score,
		})
	}

	return &ExamListResponse{Exams: summaries, Total: total}, nil
}

func (s *examService) GetStats(ctx context.Context, userID string) (*repositories.ExamStats, error) {
	stats, err := s.repo.Exam().GetStats(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam stats: %w", err)
	}
	return stats, nil
}

// ===== INTERNAL =====

func (s *examService) gradeSession(ctx context.Context, tx *gorm.DB, session *models.MockExamSession) (*scoreOutcome, error) {
	order, err := decodeQuestionIDs(session.QuestionIDs)
	if err != nil {
		return nil, err
	}
	answers, err := decodeAnswers(session.Answers)
	if err != nil {
		return nil, err
	}

	questions, err := s.repo.Question().GetByIDs(ctx, tx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to get session questions: %w", err)
	}
	return scoreSession(questions, order, answers), nil
}

func (s *examService) publishExamCompleted(userID string, results *ExamResultsResponse) {
	if s.publisher == nil {
		return
	}
	event := events.NewEvent(events.TypeExamCompleted, userID, map[string]interface{}{
		"exam_id": results.ExamID,
		"score":   results.Score,
		"passed":  results.Passed,
	})
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Warn("Failed to publish exam completed event", "exam_id", results.ExamID, "error", err)
	}
}

func buildResults(session *models.MockExamSession, outcome *scoreOutcome) *ExamResultsResponse {
	results := &ExamResultsResponse{
		ExamID:       session.ID,
		Score:        outcome.Score,
		PassingScore: session.PassingScore,
		Passed:       outcome.Score >= float64(session.PassingScore),
		Correct:      outcome.Correct,
		Incorrect:    outcome.Incorrect,
		Unanswered:   outcome.Unanswered,
		Breakdown:    outcome.Breakdown,
	}
	if session.CompletedAt != nil {
		results.ElapsedSeconds = int(session.CompletedAt.Sub(session.StartedAt).Seconds())
	}
	return results
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// orderQuestions returns questions in the session's fixed order.
func orderQuestions(questions []*models.Question, order []uint) []*models.Question {
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]*models.Question, 0, len(order))
	for _, id := range order {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered
}
