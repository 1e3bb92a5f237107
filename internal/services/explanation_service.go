package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

// explanationClient is the slice of the OpenAI client this service needs.
type explanationClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type explanationService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
	quota  QuotaService
	client explanationClient
}

// NewExplanationService creates the AI explanation backfill service. A nil
// client disables generation; cached explanations remain readable.
func NewExplanationService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, quota QuotaService, client explanationClient) ExplanationService {
	return &explanationService{
		repo:   repo,
		db:     db,
		logger: logger,
		quota:  quota,
		client: client,
	}
}

// Explain returns the detailed explanation for one question, generating and
// persisting it on first request. Generation counts against the free tier's
// daily explanation quota; serving an already-cached one is free.
func (s *explanationService) Explain(ctx context.Context, userID string, questionID uint) (*ExplanationResponse, error) {
	user, err := s.repo.User().GetByID(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	question, err := s.repo.Question().GetByID(ctx, s.db, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	if question.AIExplanation != nil && *question.AIExplanation != "" {
		return &ExplanationResponse{
			QuestionID:    questionID,
			Explanation:   question.Explanation,
			AIExplanation: *question.AIExplanation,
			Cached:        true,
		}, nil
	}

	if s.client == nil {
		return &ExplanationResponse{
			QuestionID:  questionID,
			Explanation: question.Explanation,
		}, nil
	}

	if err := s.quota.CheckDailyQuota(ctx, user, models.UsageExplanation); err != nil {
		return nil, err
	}

	generated, err := s.generate(ctx, question)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Question().UpdateAIExplanation(ctx, tx, questionID, generated); err != nil {
			return fmt.Errorf("failed to store explanation: %w", err)
		}
		_, err := s.quota.RecordUsage(ctx, tx, userID, models.UsageExplanation)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("AI explanation generated", "question_id", questionID, "user_id", userID)

	return &ExplanationResponse{
		QuestionID:    questionID,
		Explanation:   question.Explanation,
		AIExplanation: generated,
	}, nil
}

func (s *explanationService) generate(ctx context.Context, question *models.Question) (string, error) {
	options, err := question.DecodedOptions()
	if err != nil {
		return "", fmt.Errorf("failed to decode options: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", question.Text)
	for _, opt := range options {
		fmt.Fprintf(&sb, "%s) %s\n", opt.ID, opt.Text)
	}
	fmt.Fprintf(&sb, "Correct answer: %s\n", question.CorrectOptionID)
	sb.WriteString("Explain for an exam candidate why the correct answer is right and each other option is wrong. Keep it under 200 words.")

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a medical exam tutor writing concise answer explanations."},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		MaxTokens: 400,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate explanation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("explanation model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
