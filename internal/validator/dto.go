package validator

import (
	"time"

	"github.com/prepkit/examprep-service/internal/models"
)

// RegisterRequest represents the request structure for account registration
type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UpdateProfileRequest represents the request structure for profile updates
type UpdateProfileRequest struct {
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
}

// LoginRequest represents the request structure for credential login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// QuestionOptionRequest represents a single answer option on a question
type QuestionOptionRequest struct {
	ID   string `json:"id" validate:"required,min=1,max=10"`
	Text string `json:"text" validate:"required,min=1,max=1000"`
}

// QuestionCreateRequest represents the request structure for creating questions
type QuestionCreateRequest struct {
	Category        models.QuestionCategory `json:"category" validate:"required,question_category"`
	Difficulty      models.DifficultyLevel  `json:"difficulty" validate:"required,difficulty_level"`
	Text            string                  `json:"text" validate:"required,min=1,max=2000"`
	Options         []QuestionOptionRequest `json:"options" validate:"required,min=2,max=6,dive"`
	CorrectOptionID string                  `json:"correct_option_id" validate:"required"`
	Explanation     string                  `json:"explanation" validate:"omitempty,max=2000"`
}

// PracticeAnswerRequest represents a single practice answer submission
type PracticeAnswerRequest struct {
	QuestionID       uint   `json:"question_id" validate:"required"`
	SelectedOptionID string `json:"selected_option_id" validate:"required"`
}

// ExamCreateRequest represents the request structure for starting a mock exam
type ExamCreateRequest struct {
	TotalQuestions   int                       `json:"total_questions" validate:"required,min=1,max=170"`
	TimeLimitMinutes int                       `json:"time_limit_minutes" validate:"required,exam_duration"`
	PassingScore     int                       `json:"passing_score" validate:"passing_score"`
	Mixed            bool                      `json:"mixed"`
	Categories       []models.QuestionCategory `json:"categories" validate:"omitempty,dive,question_category"`
	Difficulty       *models.DifficultyLevel   `json:"difficulty" validate:"omitempty,difficulty_level"`
}

// ExamAnswerRequest represents recording an answer inside a running exam
type ExamAnswerRequest struct {
	QuestionID       uint   `json:"question_id" validate:"required"`
	SelectedOptionID string `json:"selected_option_id" validate:"required"`
}

// ExamFlagRequest represents toggling the review flag on an exam question
type ExamFlagRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
	Flagged    bool `json:"flagged"`
}

// RedeemCodeRequest represents redeeming a season pass code
type RedeemCodeRequest struct {
	Code string `json:"code" validate:"required,season_pass_code"`
}

// VerificationSubmitRequest represents a manual payment verification submission
type VerificationSubmitRequest struct {
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod   string  `json:"payment_method" validate:"required,max=50"`
	ReferenceNumber string  `json:"reference_number" validate:"required,max=100"`
	ProofImageURL   string  `json:"proof_image_url" validate:"omitempty,url,max=500"`
}

// VerificationDecisionRequest represents an admin decision on a verification
type VerificationDecisionRequest struct {
	Approve         *bool  `json:"approve" validate:"required"`
	RejectionReason string `json:"rejection_reason" validate:"omitempty,max=500"`
}

// GenerateCodesRequest represents an admin request to mint season pass codes
type GenerateCodesRequest struct {
	Count     int        `json:"count" validate:"required,min=1,max=1000"`
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     string     `json:"notes" validate:"omitempty,max=500"`
}

// PaymentWebhookPayload represents the provider notification body. It is
// decoded only after the HMAC signature over the raw body has been verified.
type PaymentWebhookPayload struct {
	EventType       string  `json:"event_type" validate:"required"`
	ReferenceNumber string  `json:"reference_number" validate:"required,max=100"`
	UserID          string  `json:"user_id" validate:"required"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod   string  `json:"payment_method" validate:"omitempty,max=50"`
}
