package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepkit/examprep-service/internal/models"
)

func TestValidate_SeasonPassCodeFormat(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"canonical", "SP-7KQ2-M9XW", true},
		{"lowercase accepted", "sp-7kq2-m9xw", true},
		{"surrounding whitespace", "  SP-7KQ2-M9XW  ", true},
		{"ambiguous zero", "SP-70Q2-M9XW", false},
		{"ambiguous oh", "SP-7OQ2-M9XW", false},
		{"ambiguous one", "SP-71Q2-M9XW", false},
		{"missing prefix", "7KQ2-M9XW", false},
		{"wrong group length", "SP-7KQ-M9XW", false},
		{"empty", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(&RedeemCodeRequest{Code: tc.code})
			if tc.valid {
				assert.NoError(t, err, "code %q should validate", tc.code)
			} else {
				assert.Error(t, err, "code %q should be rejected", tc.code)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SP-7KQ2-M9XW", NormalizeCode("  sp-7kq2-m9xw "))
}

func TestValidate_ExamCreateBounds(t *testing.T) {
	v := New()

	valid := &ExamCreateRequest{TotalQuestions: 20, TimeLimitMinutes: 60, PassingScore: 70, Mixed: true}
	assert.NoError(t, v.Validate(valid))

	tooMany := *valid
	tooMany.TotalQuestions = 171
	assert.Error(t, v.Validate(&tooMany))

	badDuration := *valid
	badDuration.TimeLimitMinutes = 301
	assert.Error(t, v.Validate(&badDuration))

	badScore := *valid
	badScore.PassingScore = 101
	assert.Error(t, v.Validate(&badScore))

	badCategory := *valid
	badCategory.Categories = []models.QuestionCategory{"astrology"}
	assert.Error(t, v.Validate(&badCategory))
}

func TestValidate_ErrorsCarryFieldAndRule(t *testing.T) {
	v := New()

	err := v.Validate(&RegisterRequest{Email: "not-an-email", Password: "short"})
	require.Error(t, err)

	var validationErrs ValidationErrors
	require.True(t, errors.As(err, &validationErrs))
	require.NotEmpty(t, validationErrs)

	byField := make(map[string]ValidationError, len(validationErrs))
	for _, ve := range validationErrs {
		byField[ve.Field] = ve
	}

	assert.Equal(t, "email", byField["email"].Rule)
	assert.Equal(t, "min", byField["password"].Rule)
	assert.Contains(t, err.Error(), "email")
}

func TestValidate_QuestionOptionsRange(t *testing.T) {
	v := New()

	req := &QuestionCreateRequest{
		Category:   models.CategoryAnatomy,
		Difficulty: models.DifficultyEasy,
		Text:       "Which bone is the longest in the human body?",
		Options: []QuestionOptionRequest{
			{ID: "A", Text: "Femur"},
			{ID: "B", Text: "Tibia"},
		},
		CorrectOptionID: "A",
	}
	assert.NoError(t, v.Validate(req))

	req.Options = req.Options[:1]
	assert.Error(t, v.Validate(req), "a single option is not a question")
}
