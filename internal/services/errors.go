package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/validator"
)

// ValidationErrors is re-exported so handlers can match it with errors.As.
type ValidationErrors = validator.ValidationErrors

// User errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyTaken  = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Question errors
var (
	ErrQuestionNotFound      = errors.New("question not found")
	ErrInsufficientQuestions = errors.New("not enough questions match the requested criteria")
)

// Exam errors
var (
	ErrExamNotFound        = errors.New("exam session not found")
	ErrExamNotActive       = errors.New("exam session is not in progress")
	ErrExamAlreadyEnded    = errors.New("exam session already ended")
	ErrQuestionNotInExam   = errors.New("question does not belong to this exam session")
	ErrOptionNotInQuestion = errors.New("selected option does not belong to this question")
)

// Billing errors
var (
	ErrCodeNotFound               = errors.New("season pass code not found")
	ErrCodeAlreadyRedeemed        = errors.New("season pass code already redeemed")
	ErrCodeExpired                = errors.New("season pass code expired")
	ErrVerificationNotFound       = errors.New("payment verification not found")
	ErrVerificationAlreadyDecided = errors.New("payment verification already decided")
	ErrSubscriptionNotFound       = errors.New("subscription not found")
	ErrAlreadySubscribed          = errors.New("user already has an active subscription")
)

// Generic errors
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
)

// PermissionError carries context about a denied action.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s: %s", e.UserID, e.Action, e.Resource, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// QuotaError is returned when a free tier limit blocks an action. ResetsAt is
// the next window boundary in the canonical usage timezone.
type QuotaError struct {
	Kind     models.UsageKind
	Limit    int
	Used     int
	ResetsAt time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %s limit %d reached (used %d)", e.Kind, e.Limit, e.Used)
}

// ExamQuotaError is the monthly counterpart of QuotaError for mock exams.
type ExamQuotaError struct {
	Limit    int
	Used     int
	ResetsAt time.Time
}

func (e *ExamQuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: monthly exam limit %d reached (used %d)", e.Limit, e.Used)
}
