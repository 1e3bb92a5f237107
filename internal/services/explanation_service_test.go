package services

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prepkit/examprep-service/internal/models"
)

type mockExplanationClient struct {
	mock.Mock
}

func (m *mockExplanationClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func completionWith(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func newTestExplanationService(repo *mockRepo, client explanationClient) ExplanationService {
	return NewExplanationService(repo, nil, testLogger(), newTestQuotaService(repo), client)
}

func TestExplain_CachedSkipsQuotaAndClient(t *testing.T) {
	repo := newMockRepo()
	client := new(mockExplanationClient)
	svc := newTestExplanationService(repo, client)

	cached := "cached explanation"
	question := makeQuestion(1, "A")
	question.AIExplanation = &cached

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)
	repo.question.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(question, nil)

	resp, err := svc.Explain(context.Background(), "u1", 1)
	require.NoError(t, err)

	assert.True(t, resp.Cached)
	assert.Equal(t, "cached explanation", resp.AIExplanation)
	client.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
	repo.usage.AssertNotCalled(t, "GetCount", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExplain_GeneratesAndPersists(t *testing.T) {
	repo := newMockRepo()
	client := new(mockExplanationClient)
	svc := newTestExplanationService(repo, client)

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)
	repo.question.On("GetByID", mock.Anything, mock.Anything, uint(1)).
		Return(makeQuestion(1, "A"), nil)
	repo.usage.On("GetCount", mock.Anything, mock.Anything, "u1", models.UsageExplanation, mock.Anything).
		Return(0, nil)
	client.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return len(req.Messages) == 2
	})).Return(completionWith("  generated explanation  "), nil)
	repo.question.On("UpdateAIExplanation", mock.Anything, mock.Anything, uint(1), "generated explanation").
		Return(nil)
	repo.usage.On("IncrementCount", mock.Anything, mock.Anything, "u1", models.UsageExplanation, mock.Anything).
		Return(1, nil)

	resp, err := svc.Explain(context.Background(), "u1", 1)
	require.NoError(t, err)

	assert.False(t, resp.Cached)
	assert.Equal(t, "generated explanation", resp.AIExplanation)
	repo.question.AssertExpectations(t)
	repo.usage.AssertExpectations(t)
}

func TestExplain_QuotaExhausted(t *testing.T) {
	repo := newMockRepo()
	client := new(mockExplanationClient)
	svc := newTestExplanationService(repo, client)

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)
	repo.question.On("GetByID", mock.Anything, mock.Anything, uint(1)).
		Return(makeQuestion(1, "A"), nil)
	repo.usage.On("GetCount", mock.Anything, mock.Anything, "u1", models.UsageExplanation, mock.Anything).
		Return(3, nil)

	_, err := svc.Explain(context.Background(), "u1", 1)

	var quotaErr *QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 3, quotaErr.Limit)
	assert.Equal(t, models.UsageExplanation, quotaErr.Kind)
	client.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
}

func TestExplain_NilClientServesStaticOnly(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExplanationService(repo, nil)

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)
	repo.question.On("GetByID", mock.Anything, mock.Anything, uint(1)).
		Return(makeQuestion(1, "A"), nil)

	resp, err := svc.Explain(context.Background(), "u1", 1)
	require.NoError(t, err)

	assert.Equal(t, "because", resp.Explanation)
	assert.Empty(t, resp.AIExplanation)
	repo.usage.AssertNotCalled(t, "GetCount", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExplain_GenerationFailureBurnsNoQuota(t *testing.T) {
	repo := newMockRepo()
	client := new(mockExplanationClient)
	svc := newTestExplanationService(repo, client)

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)
	repo.question.On("GetByID", mock.Anything, mock.Anything, uint(1)).
		Return(makeQuestion(1, "A"), nil)
	repo.usage.On("GetCount", mock.Anything, mock.Anything, "u1", models.UsageExplanation, mock.Anything).
		Return(0, nil)
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, assert.AnError)

	_, err := svc.Explain(context.Background(), "u1", 1)
	require.Error(t, err)
	repo.usage.AssertNotCalled(t, "IncrementCount", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
