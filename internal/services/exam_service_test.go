package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/prepkit/examprep-service/internal/events"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/validator"
)

func newTestExamService(repo *mockRepo, publisher events.EventPublisher) ExamService {
	return NewExamService(repo, nil, testLogger(), validator.New(), newTestQuotaService(repo), publisher)
}

func makeQuestion(id uint, correct string) *models.Question {
	options, _ := json.Marshal([]models.QuestionOption{
		{ID: "A", Text: "Option A"},
		{ID: "B", Text: "Option B"},
		{ID: "C", Text: "Option C"},
		{ID: "D", Text: "Option D"},
	})
	return &models.Question{
		ID:              id,
		Category:        models.CategoryPharmacology,
		Difficulty:      models.DifficultyMedium,
		Text:            fmt.Sprintf("Question %d", id),
		Options:         datatypes.JSON(options),
		CorrectOptionID: correct,
		Explanation:     "because",
		CreatedBy:       "admin-1",
	}
}

func makeSession(id uint, userID string, status models.ExamStatus, questionIDs []uint) *models.MockExamSession {
	ids, _ := json.Marshal(questionIDs)
	return &models.MockExamSession{
		ID:               id,
		UserID:           userID,
		Status:           status,
		TotalQuestions:   len(questionIDs),
		TimeLimitMinutes: 30,
		PassingScore:     60,
		QuestionIDs:      datatypes.JSON(ids),
		Answers:          datatypes.JSON([]byte("{}")),
		Flags:            datatypes.JSON([]byte("[]")),
		StartedAt:        time.Now().Add(-10 * time.Minute),
	}
}

func examCreateRequest(total int) *ExamCreateRequest {
	return &ExamCreateRequest{
		TotalQuestions:   total,
		TimeLimitMinutes: 30,
		PassingScore:     60,
		Mixed:            true,
	}
}

// ===== CREATE =====

func TestExamCreate_FreeTierCap(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)

	_, err := svc.Create(context.Background(), examCreateRequest(21), "u1")
	require.Error(t, err)

	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Contains(t, permErr.Reason, "20")
}

func TestExamCreate_FreeTierAtCap(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	questions := make([]*models.Question, 0, 20)
	for i := uint(1); i <= 20; i++ {
		questions = append(questions, makeQuestion(i, "A"))
	}

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)
	repo.exam.On("CountCompletedSince", mock.Anything, mock.Anything, "u1", mock.Anything).
		Return(int64(0), nil)
	repo.question.On("Count", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(500), nil)
	repo.question.On("FetchByOffsets", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(offsets []int) bool {
		return len(offsets) == 20
	})).Return(questions, nil)
	repo.exam.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.MockExamSession) bool {
		return s.Status == models.ExamInProgress && s.TotalQuestions == 20
	})).Return(nil)

	resp, err := svc.Create(context.Background(), examCreateRequest(20), "u1")
	require.NoError(t, err)

	assert.Equal(t, models.ExamInProgress, resp.Status)
	assert.Len(t, resp.Questions, 20)
	for _, view := range resp.Questions {
		assert.Len(t, view.Options, 4)
	}
	repo.exam.AssertExpectations(t)
}

func TestExamCreate_InsufficientPool(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)
	repo.exam.On("CountCompletedSince", mock.Anything, mock.Anything, "u1", mock.Anything).
		Return(int64(0), nil)
	repo.question.On("Count", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(12), nil)

	_, err := svc.Create(context.Background(), examCreateRequest(20), "u1")
	assert.ErrorIs(t, err, ErrInsufficientQuestions)
}

func TestExamCreate_MonthlyQuotaExhausted(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	repo.user.On("GetByID", mock.Anything, mock.Anything, "u1").
		Return(&models.User{ID: "u1"}, nil)
	repo.exam.On("CountCompletedSince", mock.Anything, mock.Anything, "u1", mock.Anything).
		Return(int64(3), nil)

	_, err := svc.Create(context.Background(), examCreateRequest(10), "u1")

	var quotaErr *ExamQuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 3, quotaErr.Limit)
}

func TestExamCreate_CategoriesRequiredWhenNotMixed(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	req := examCreateRequest(10)
	req.Mixed = false

	_, err := svc.Create(context.Background(), req, "u1")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

// ===== ANSWERS AND FLAGS =====

func TestRecordAnswer_RoundTrip(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamInProgress, []uint{1, 2, 3})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)
	repo.question.On("GetByID", mock.Anything, mock.Anything, uint(2)).Return(makeQuestion(2, "B"), nil)

	var saved *models.MockExamSession
	repo.exam.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.MockExamSession) bool {
		saved = s
		return true
	})).Return(nil)

	err := svc.RecordAnswer(context.Background(), 5, "u1", &ExamAnswerRequest{QuestionID: 2, SelectedOptionID: "C"})
	require.NoError(t, err)

	answers, err := decodeAnswers(saved.Answers)
	require.NoError(t, err)
	assert.Equal(t, "C", answers[2])

	// A later answer to the same question overwrites the first.
	err = svc.RecordAnswer(context.Background(), 5, "u1", &ExamAnswerRequest{QuestionID: 2, SelectedOptionID: "B"})
	require.NoError(t, err)

	answers, err = decodeAnswers(saved.Answers)
	require.NoError(t, err)
	assert.Equal(t, "B", answers[2])
	assert.Len(t, answers, 1)
}

func TestRecordAnswer_QuestionNotInExam(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamInProgress, []uint{1, 2, 3})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)

	err := svc.RecordAnswer(context.Background(), 5, "u1", &ExamAnswerRequest{QuestionID: 99, SelectedOptionID: "A"})
	assert.ErrorIs(t, err, ErrQuestionNotInExam)
}

func TestRecordAnswer_OptionNotInQuestion(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamInProgress, []uint{1, 2, 3})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)
	repo.question.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(makeQuestion(1, "A"), nil)

	err := svc.RecordAnswer(context.Background(), 5, "u1", &ExamAnswerRequest{QuestionID: 1, SelectedOptionID: "Z"})
	assert.ErrorIs(t, err, ErrOptionNotInQuestion)
}

func TestRecordAnswer_TerminalSession(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamCompleted, []uint{1, 2})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)

	err := svc.RecordAnswer(context.Background(), 5, "u1", &ExamAnswerRequest{QuestionID: 1, SelectedOptionID: "A"})
	assert.ErrorIs(t, err, ErrExamNotActive)
}

func TestRecordAnswer_OtherUsersSession(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamInProgress, []uint{1, 2})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)

	err := svc.RecordAnswer(context.Background(), 5, "u2", &ExamAnswerRequest{QuestionID: 1, SelectedOptionID: "A"})

	var permErr *PermissionError
	assert.ErrorAs(t, err, &permErr)
}

func TestToggleFlag_SetSemantics(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamInProgress, []uint{1, 2, 3})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)

	var saved *models.MockExamSession
	repo.exam.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.MockExamSession) bool {
		saved = s
		return true
	})).Return(nil)

	// Flagging twice keeps a single entry.
	require.NoError(t, svc.ToggleFlag(context.Background(), 5, "u1", &ExamFlagRequest{QuestionID: 2, Flagged: true}))
	require.NoError(t, svc.ToggleFlag(context.Background(), 5, "u1", &ExamFlagRequest{QuestionID: 2, Flagged: true}))

	flags, err := decodeFlags(saved.Flags)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, flags)

	require.NoError(t, svc.ToggleFlag(context.Background(), 5, "u1", &ExamFlagRequest{QuestionID: 2, Flagged: false}))

	flags, err = decodeFlags(saved.Flags)
	require.NoError(t, err)
	assert.Empty(t, flags)
}

// ===== COMPLETION =====

func TestComplete_ScoresAndPublishes(t *testing.T) {
	repo := newMockRepo()
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestExamService(repo, publisher)

	// 3 correct, 1 wrong, 1 unanswered out of 5 scores 60.
	session := makeSession(5, "u1", models.ExamInProgress, []uint{1, 2, 3, 4, 5})
	session.Answers = datatypes.JSON([]byte(`{"1":"A","2":"A","3":"A","4":"B"}`))

	questions := []*models.Question{
		makeQuestion(1, "A"),
		makeQuestion(2, "A"),
		makeQuestion(3, "A"),
		makeQuestion(4, "A"),
		makeQuestion(5, "A"),
	}

	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)
	repo.question.On("GetByIDs", mock.Anything, mock.Anything, []uint{1, 2, 3, 4, 5}).Return(questions, nil)
	repo.exam.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.MockExamSession) bool {
		return s.Status == models.ExamCompleted && s.CompletedAt != nil && s.Score != nil
	})).Return(nil)

	results, err := svc.Complete(context.Background(), 5, "u1")
	require.NoError(t, err)

	assert.Equal(t, 60.0, results.Score)
	assert.Equal(t, 3, results.Correct)
	assert.Equal(t, 1, results.Incorrect)
	assert.Equal(t, 1, results.Unanswered)
	assert.True(t, results.Passed, "60 must pass against a passing score of 60")
	assert.Len(t, results.Breakdown, 5)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeExamCompleted, published[0].Type)
	assert.Equal(t, "u1", published[0].UserID)
}

func TestComplete_AlreadyTerminal(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamAbandoned, []uint{1})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)

	_, err := svc.Complete(context.Background(), 5, "u1")
	assert.ErrorIs(t, err, ErrExamNotActive)
}

func TestAbandon_NoScore(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamInProgress, []uint{1, 2})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)

	var saved *models.MockExamSession
	repo.exam.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.MockExamSession) bool {
		saved = s
		return true
	})).Return(nil)

	require.NoError(t, svc.Abandon(context.Background(), 5, "u1"))

	assert.Equal(t, models.ExamAbandoned, saved.Status)
	assert.NotNil(t, saved.AbandonedAt)
	assert.Nil(t, saved.CompletedAt, "completion timestamp is reserved for scored finishes")
	assert.Nil(t, saved.Score)
}

// ===== STATE =====

func TestGetState_RemainingSecondsClamped(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamInProgress, []uint{1, 2})
	session.StartedAt = time.Now().Add(-2 * time.Hour)
	session.Answers = datatypes.JSON([]byte(`{"1":"A"}`))
	session.Flags = datatypes.JSON([]byte(`[2]`))

	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)
	repo.question.On("GetByIDs", mock.Anything, mock.Anything, []uint{1, 2}).
		Return([]*models.Question{makeQuestion(1, "A"), makeQuestion(2, "B")}, nil)

	state, err := svc.GetState(context.Background(), 5, "u1")
	require.NoError(t, err)

	assert.Equal(t, 0, state.RemainingSeconds)
	assert.Equal(t, 2, state.TotalQuestions)
	assert.Equal(t, 1, state.Answered)
	assert.Equal(t, 1, state.Unanswered)
	assert.Equal(t, 1, state.Flagged)
}

func TestResults_OnlyForCompleted(t *testing.T) {
	repo := newMockRepo()
	svc := newTestExamService(repo, nil)

	session := makeSession(5, "u1", models.ExamInProgress, []uint{1})
	repo.exam.On("GetByID", mock.Anything, mock.Anything, uint(5)).Return(session, nil)

	_, err := svc.Results(context.Background(), 5, "u1")
	assert.ErrorIs(t, err, ErrExamNotActive)
}

// ===== SCORING UNIT TESTS =====

func TestScoreSession_PassBoundaryInclusive(t *testing.T) {
	questions := []*models.Question{
		makeQuestion(1, "A"),
		makeQuestion(2, "A"),
		makeQuestion(3, "A"),
		makeQuestion(4, "A"),
		makeQuestion(5, "A"),
	}
	order := []uint{1, 2, 3, 4, 5}

	outcome := scoreSession(questions, order, map[uint]string{1: "A", 2: "A", 3: "A"})
	assert.Equal(t, 60.0, outcome.Score)
	assert.Equal(t, 3, outcome.Correct)
	assert.Equal(t, 0, outcome.Incorrect)
	assert.Equal(t, 2, outcome.Unanswered)
}

func TestScoreSession_EmptyAnswers(t *testing.T) {
	questions := []*models.Question{makeQuestion(1, "A"), makeQuestion(2, "B")}
	outcome := scoreSession(questions, []uint{1, 2}, map[uint]string{})

	assert.Equal(t, 0.0, outcome.Score)
	assert.Equal(t, 2, outcome.Unanswered)
}

func TestSampleOffsets_DistinctAndInRange(t *testing.T) {
	offsets := sampleOffsets(100, 30)
	require.Len(t, offsets, 30)

	seen := make(map[int]struct{}, len(offsets))
	for _, o := range offsets {
		assert.GreaterOrEqual(t, o, 0)
		assert.Less(t, o, 100)
		_, dup := seen[o]
		assert.False(t, dup, "offset %d drawn twice", o)
		seen[o] = struct{}{}
	}
}
