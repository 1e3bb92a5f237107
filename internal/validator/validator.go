package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prepkit/examprep-service/internal/models"
)

// codePattern matches season pass codes such as SP-7KQ2-M9XW. The alphabet
// excludes ambiguous characters (0/O, 1/I/L).
var codePattern = regexp.MustCompile(`^SP-[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{4}-[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{4}$`)

// ValidationError describes a single failed field rule.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule"`
}

// ValidationErrors is a collection of field validation failures.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(msgs, "; ")
}

// ToValidationErrors converts go-playground validator errors into our format.
func ToValidationErrors(err error) ValidationErrors {
	if err == nil {
		return nil
	}

	var errors ValidationErrors
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrors {
			errors = append(errors, ValidationError{
				Field:   strings.ToLower(fe.Field()),
				Message: messageForTag(fe),
				Value:   fe.Value(),
				Rule:    fe.Tag(),
			})
		}
		return errors
	}

	return ValidationErrors{{Field: "request", Message: err.Error(), Rule: "invalid"}}
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "question_category":
		return "must be a valid question category"
	case "difficulty_level":
		return "must be one of EASY, MEDIUM, HARD"
	case "passing_score":
		return "must be between 0 and 100"
	case "exam_duration":
		return "must be between 5 and 300 minutes"
	case "season_pass_code":
		return "must match the SP-XXXX-XXXX code format"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Validator wraps struct validation with domain-specific rules registered.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with all domain rules registered.
func New() *Validator {
	validate := validator.New()

	v := &Validator{validate: validate}
	v.registerDomainRules()

	return v
}

// Validate validates any struct and returns nil or ValidationErrors.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

func (v *Validator) registerDomainRules() {
	// Question category validation
	v.validate.RegisterValidation("question_category", func(fl validator.FieldLevel) bool {
		return models.QuestionCategory(fl.Field().String()).Valid()
	})

	// Difficulty level validation
	v.validate.RegisterValidation("difficulty_level", func(fl validator.FieldLevel) bool {
		return models.DifficultyLevel(fl.Field().String()).Valid()
	})

	// Passing score validation (0-100)
	v.validate.RegisterValidation("passing_score", func(fl validator.FieldLevel) bool {
		score := fl.Field().Int()
		return score >= 0 && score <= 100
	})

	// Exam duration validation (5-300 minutes)
	v.validate.RegisterValidation("exam_duration", func(fl validator.FieldLevel) bool {
		duration := fl.Field().Int()
		return duration >= 5 && duration <= 300
	})

	// Season pass code format validation
	v.validate.RegisterValidation("season_pass_code", func(fl validator.FieldLevel) bool {
		return codePattern.MatchString(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
	})
}

// NormalizeCode canonicalizes user-entered season pass codes before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
