package services

import (
	"context"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/validator"
)

// ===== REQUEST DTOs =====

// Use validator request types
type RegisterRequest = validator.RegisterRequest
type UpdateProfileRequest = validator.UpdateProfileRequest
type LoginRequest = validator.LoginRequest
type QuestionCreateRequest = validator.QuestionCreateRequest
type PracticeAnswerRequest = validator.PracticeAnswerRequest
type ExamCreateRequest = validator.ExamCreateRequest
type ExamAnswerRequest = validator.ExamAnswerRequest
type ExamFlagRequest = validator.ExamFlagRequest
type RedeemCodeRequest = validator.RedeemCodeRequest
type VerificationSubmitRequest = validator.VerificationSubmitRequest
type VerificationDecisionRequest = validator.VerificationDecisionRequest
type GenerateCodesRequest = validator.GenerateCodesRequest

// ===== QUESTION DTOs =====

// QuestionView is a question with the answer key stripped.
type QuestionView struct {
	ID         uint                    `json:"id"`
	Category   models.QuestionCategory `json:"category"`
	Difficulty models.DifficultyLevel  `json:"difficulty"`
	Text       string                  `json:"text"`
	Options    []models.QuestionOption `json:"options"`
}

type ExplanationResponse struct {
	QuestionID    uint   `json:"question_id"`
	Explanation   string `json:"explanation"`
	AIExplanation string `json:"ai_explanation,omitempty"`
	Cached        bool   `json:"cached"`
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// ===== EXAM DTOs =====

type ExamSessionResponse struct {
	ExamID           uint              `json:"exam_id"`
	TotalQuestions   int               `json:"total_questions"`
	TimeLimitMinutes int               `json:"time_limit_minutes"`
	PassingScore     int               `json:"passing_score"`
	Status           models.ExamStatus `json:"status"`
	StartedAt        time.Time         `json:"started_at"`
	Questions        []*QuestionView   `json:"questions"`
}

type ExamStateResponse struct {
	ExamID           uint              `json:"exam_id"`
	Status           models.ExamStatus `json:"status"`
	TotalQuestions   int               `json:"total_questions"`
	Answered         int               `json:"answered"`
	Flagged          int               `json:"flagged"`
	Unanswered       int               `json:"unanswered"`
	TimeLimitMinutes int               `json:"time_limit_minutes"`
	PassingScore     int               `json:"passing_score"`
	RemainingSeconds int               `json:"remaining_seconds"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at"`
	AbandonedAt      *time.Time        `json:"abandoned_at"`
	Score            *float64          `json:"score"`
	Questions        []*QuestionView   `json:"questions"`
	Answers          map[uint]string   `json:"answers"`
	Flags            []uint            `json:"flags"`
}

type QuestionResult struct {
	QuestionID       uint    `json:"question_id"`
	Text             string  `json:"text"`
	SelectedOptionID string  `json:"selected_option_id"`
	CorrectOptionID  string  `json:"correct_option_id"`
	Correct          bool    `json:"correct"`
	Explanation      string  `json:"explanation"`
	AIExplanation    *string `json:"ai_explanation,omitempty"`
}

type ExamResultsResponse struct {
	ExamID         uint              `json:"exam_id"`
	Score          float64           `json:"score"`
	PassingScore   int               `json:"passing_score"`
	Passed         bool              `json:"passed"`
	Correct        int               `json:"correct"`
	Incorrect      int               `json:"incorrect"`
	Unanswered     int               `json:"unanswered"`
	ElapsedSeconds int               `json:"elapsed_seconds"`
	Breakdown      []*QuestionResult `json:"breakdown"`
}

type ExamSummary struct {
	ExamID           uint              `json:"exam_id"`
	Status           models.ExamStatus `json:"status"`
	TotalQuestions   int               `json:"total_questions"`
	TimeLimitMinutes int               `json:"time_limit_minutes"`
	PassingScore     int               `json:"passing_score"`
	Mixed            bool              `json:"mixed"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at"`
	AbandonedAt      *time.Time        `json:"abandoned_at"`
	Score            *float64          `json:"score"`
}

type ExamListResponse struct {
	Exams []*ExamSummary `json:"exams"`
	Total int64          `json:"total"`
}

// ===== PRACTICE DTOs =====

type PracticeAnswerResponse struct {
	QuestionID       uint    `json:"question_id"`
	Correct          bool    `json:"correct"`
	SelectedOptionID string  `json:"selected_option_id"`
	CorrectOptionID  string  `json:"correct_option_id"`
	Explanation      string  `json:"explanation"`
	AIExplanation    *string `json:"ai_explanation,omitempty"`
	UsedToday        int     `json:"used_today"`
	RemainingToday   int     `json:"remaining_today"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
}

// PracticeLimitsResponse uses -1 as the unlimited sentinel.
type PracticeLimitsResponse struct {
	IsPremium      bool `json:"is_premium"`
	DailyLimit     int  `json:"daily_limit"`
	UsedToday      int  `json:"used_today"`
	RemainingToday int  `json:"remaining_today"`
}

// ExamLimitsResponse uses -1 as the unlimited sentinel.
type ExamLimitsResponse struct {
	IsPremium               bool `json:"is_premium"`
	MaxQuestionsPerExam     int  `json:"max_questions_per_exam"`
	MonthlyExamLimit        int  `json:"monthly_exam_limit"`
	ExamsUsedThisMonth      int  `json:"exams_used_this_month"`
	RemainingExamsThisMonth int  `json:"remaining_exams_this_month"`
}

// ===== USER DTOs =====

type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type ProfileResponse struct {
	User   *models.User `json:"user"`
	Limits AccessLimits `json:"limits"`
}

// ===== BILLING DTOs =====

type ActivationResponse struct {
	UserID      string                    `json:"user_id"`
	PlanName    string                    `json:"plan_name"`
	Origin      models.PaymentOrigin      `json:"origin"`
	Status      models.SubscriptionStatus `json:"status"`
	ActivatedAt time.Time                 `json:"activated_at"`
	ExpiresAt   *time.Time                `json:"expires_at"`
}

type WebhookResult struct {
	Accepted         bool   `json:"accepted"`
	AlreadyProcessed bool   `json:"already_processed"`
	Reason           string `json:"reason,omitempty"`
}

type GenerateCodesResponse struct {
	BatchID string                   `json:"batch_id"`
	Codes   []*models.SeasonPassCode `json:"codes"`
}

// ===== SERVICE INTERFACES =====

type UserService interface {
	Register(ctx context.Context, req *RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
	GetProfile(ctx context.Context, userID string) (*ProfileResponse, error)
	UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*models.User, error)
	DeleteAccount(ctx context.Context, userID string) error
	GetPracticeLimits(ctx context.Context, userID string) (*PracticeLimitsResponse, error)
	GetExamLimits(ctx context.Context, userID string) (*ExamLimitsResponse, error)
}

type QuestionService interface {
	Create(ctx context.Context, req *QuestionCreateRequest, creatorID string) (*models.Question, error)
	Delete(ctx context.Context, id uint, userID string) error
	GetByID(ctx context.Context, id uint) (*models.Question, error)
	List(ctx context.Context, filters repositories.QuestionFilters) ([]*models.Question, int64, error)
}

type PracticeService interface {
	GetQuestions(ctx context.Context, userID string, filters repositories.QuestionFilters, count int) ([]*QuestionView, error)
	SubmitAnswer(ctx context.Context, userID string, req *PracticeAnswerRequest) (*PracticeAnswerResponse, error)
	GetStreak(ctx context.Context, userID string) (*models.UserStreak, error)
}

type ExamService interface {
	Create(ctx context.Context, req *ExamCreateRequest, userID string) (*ExamSessionResponse, error)
	RecordAnswer(ctx context.Context, examID uint, userID string, req *ExamAnswerRequest) error
	ToggleFlag(ctx context.Context, examID uint, userID string, req *ExamFlagRequest) error
	Complete(ctx context.Context, examID uint, userID string) (*ExamResultsResponse, error)
	Abandon(ctx context.Context, examID uint, userID string) error
	GetState(ctx context.Context, examID uint, userID string) (*ExamStateResponse, error)
	Results(ctx context.Context, examID uint, userID string) (*ExamResultsResponse, error)
	List(ctx context.Context, userID string, filters repositories.ExamFilters) (*ExamListResponse, error)
	GetStats(ctx context.Context, userID string) (*repositories.ExamStats, error)
}

type QuotaService interface {
	UsageDate(now time.Time) string
	CheckDailyQuota(ctx context.Context, user *models.User, kind models.UsageKind) error
	CheckExamQuota(ctx context.Context, user *models.User) error
	RecordUsage(ctx context.Context, tx *gorm.DB, userID string, kind models.UsageKind) (int, error)
	DailyUsed(ctx context.Context, userID string, kind models.UsageKind) (int, error)
	MonthlyExamsUsed(ctx context.Context, userID string) (int, error)
	PracticeLimits(ctx context.Context, user *models.User) (*PracticeLimitsResponse, error)
	ExamLimits(ctx context.Context, user *models.User) (*ExamLimitsResponse, error)
}

type BillingService interface {
	RedeemCode(ctx context.Context, userID string, req *RedeemCodeRequest) (*ActivationResponse, error)
	ProcessWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
	SubmitVerification(ctx context.Context, userID string, req *VerificationSubmitRequest) (*models.PaymentVerification, error)
	DecideVerification(ctx context.Context, adminID string, verificationID uint, req *VerificationDecisionRequest) (*models.PaymentVerification, error)
	ListVerifications(ctx context.Context, filters repositories.VerificationFilters) ([]*models.PaymentVerification, int64, error)
	GenerateCodes(ctx context.Context, adminID string, req *GenerateCodesRequest) (*GenerateCodesResponse, error)
	ListCodes(ctx context.Context, filters repositories.CodeFilters) ([]*models.SeasonPassCode, int64, error)
	GetBatchStats(ctx context.Context, batchID string) (*repositories.CodeBatchStats, error)
	GetSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

type ExplanationService interface {
	Explain(ctx context.Context, userID string, questionID uint) (*ExplanationResponse, error)
}

type ImportExportService interface {
	ImportQuestions(ctx context.Context, creatorID string, r io.Reader) (*ImportResult, error)
	ExportCodes(ctx context.Context, batchID string) ([]byte, error)
}

// ServiceManager provides access to all services with lifecycle management.
type ServiceManager interface {
	User() UserService
	Question() QuestionService
	Practice() PracticeService
	Exam() ExamService
	Quota() QuotaService
	Billing() BillingService
	Explanation() ExplanationService
	ImportExport() ImportExportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
