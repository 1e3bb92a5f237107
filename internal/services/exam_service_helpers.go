package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

// ===== JSON BLOB CODECS =====

func marshalJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session blob: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func decodeQuestionIDs(blob datatypes.JSON) ([]uint, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal(blob, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode question ids: %w", err)
	}
	return ids, nil
}

// decodeAnswers returns the answer map keyed by question id. JSON object keys
// are strings, so the persisted form uses decimal id keys.
func decodeAnswers(blob datatypes.JSON) (map[uint]string, error) {
	if len(blob) == 0 {
		return map[uint]string{}, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	answers := make(map[uint]string, len(raw))
	for key, optionID := range raw {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode answer key %q: %w", key, err)
		}
		answers[uint(id)] = optionID
	}
	return answers, nil
}

func encodeAnswers(answers map[uint]string) (datatypes.JSON, error) {
	raw := make(map[string]string, len(answers))
	for id, optionID := range answers {
		raw[strconv.FormatUint(uint64(id), 10)] = optionID
	}
	return marshalJSON(raw)
}

func decodeFlags(blob datatypes.JSON) ([]uint, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var flags []uint
	if err := json.Unmarshal(blob, &flags); err != nil {
		return nil, fmt.Errorf("failed to decode flags: %w", err)
	}
	return flags, nil
}

// ===== QUESTION SELECTION =====

// selectRandomQuestions implements count-then-sparse-fetch: count the filtered
// pool, draw distinct offsets uniformly, then fetch only the chosen rows. The
// pool is never loaded into memory wholesale.
func (s *examService) selectRandomQuestions(ctx context.Context, filters repositories.QuestionFilters, n int) ([]*models.Question, error) {
	total, err := s.repo.Question().Count(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to count question pool: %w", err)
	}

	if total < int64(n) {
		return nil, fmt.Errorf("%w: requested %d, pool has %d", ErrInsufficientQuestions, n, total)
	}

	offsets := sampleOffsets(int(total), n)
	questions, err := s.repo.Question().FetchByOffsets(ctx, s.db, filters, offsets)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch selected questions: %w", err)
	}

	if len(questions) < n {
		return nil, fmt.Errorf("%w: pool shrank during selection", ErrInsufficientQuestions)
	}

	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	return questions, nil
}

// sampleOffsets draws n distinct offsets uniformly from [0, total).
func sampleOffsets(total, n int) []int {
	chosen := make(map[int]struct{}, n)
	offsets := make([]int, 0, n)
	for len(offsets) < n {
		o := rand.Intn(total)
		if _, dup := chosen[o]; dup {
			continue
		}
		chosen[o] = struct{}{}
		offsets = append(offsets, o)
	}
	return offsets
}

// ===== VIEWS =====

// toQuestionView strips the correct option and explanations so an in-progress
// exam never leaks answers to the client.
func toQuestionView(q *models.Question) (*QuestionView, error) {
	var options []models.QuestionOption
	if len(q.Options) > 0 {
		if err := json.Unmarshal(q.Options, &options); err != nil {
			return nil, fmt.Errorf("failed to decode options for question %d: %w", q.ID, err)
		}
	}
	return &QuestionView{
		ID:         q.ID,
		Category:   q.Category,
		Difficulty: q.Difficulty,
		Text:       q.Text,
		Options:    options,
	}, nil
}

func toQuestionViews(questions []*models.Question) ([]*QuestionView, error) {
	views := make([]*QuestionView, 0, len(questions))
	for _, q := range questions {
		view, err := toQuestionView(q)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// ===== OWNERSHIP / STATE GUARDS =====

// getOwnedSession loads a session and enforces ownership.
func (s *examService) getOwnedSession(ctx context.Context, tx *gorm.DB, examID uint, userID string) (*models.MockExamSession, error) {
	session, err := s.repo.Exam().GetByID(ctx, tx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam session: %w", err)
	}
	if session.UserID != userID {
		return nil, NewPermissionError(userID, examID, "exam", "access", "session belongs to another user")
	}
	return session, nil
}

// getActiveSession additionally requires IN_PROGRESS.
func (s *examService) getActiveSession(ctx context.Context, tx *gorm.DB, examID uint, userID string) (*models.MockExamSession, error) {
	session, err := s.getOwnedSession(ctx, tx, examID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, ErrExamNotActive
	}
	return session, nil
}

// ===== SCORING =====

type scoreOutcome struct {
	Score      float64
	Correct    int
	Incorrect  int
	Unanswered int
	Breakdown  []*QuestionResult
}

// scoreSession grades a session against its question set. Unanswered
// questions count as incorrect and stay in the denominator.
func scoreSession(questions []*models.Question, order []uint, answers map[uint]string) *scoreOutcome {
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	outcome := &scoreOutcome{Breakdown: make([]*QuestionResult, 0, len(order))}
	for _, id := range order {
		q, ok := byID[id]
		if !ok {
			continue
		}

		selected, answered := answers[id]
		result := &QuestionResult{
			QuestionID:       id,
			Text:             q.Text,
			SelectedOptionID: selected,
			CorrectOptionID:  q.CorrectOptionID,
			Explanation:      q.Explanation,
			AIExplanation:    q.AIExplanation,
		}

		switch {
		case !answered:
			outcome.Unanswered++
		case selected == q.CorrectOptionID:
			result.Correct = true
			outcome.Correct++
		default:
			outcome.Incorrect++
		}
		outcome.Breakdown = append(outcome.Breakdown, result)
	}

	if len(order) > 0 {
		outcome.Score = 100 * float64(outcome.Correct) / float64(len(order))
	}
	return outcome
}
