package services

import (
	"time"

	"github.com/prepkit/examprep-service/internal/models"
)

// Unlimited is the sentinel for limits that do not apply.
const Unlimited = -1

// Free tier caps.
const (
	FreePracticeDailyLimit    = 15
	FreeMaxQuestionsPerExam   = 20
	FreeMonthlyExamLimit      = 3
	FreeExplanationDailyLimit = 3
)

// PremiumMaxQuestionsPerExam caps a premium exam at the size of the real
// certification exam.
const PremiumMaxQuestionsPerExam = 170

// AccessLimits is the limit set in force for one user at one point in time.
type AccessLimits struct {
	IsPremium             bool `json:"is_premium"`
	PracticeDailyLimit    int  `json:"practice_daily_limit"`
	MaxQuestionsPerExam   int  `json:"max_questions_per_exam"`
	MonthlyExamLimit      int  `json:"monthly_exam_limit"`
	ExplanationDailyLimit int  `json:"explanation_daily_limit"`
}

// EffectivePremium reports whether the user's premium access is currently in
// force. A nil expiry means the subscription does not expire.
func EffectivePremium(user *models.User, now time.Time) bool {
	if user == nil || !user.IsPremium {
		return false
	}
	if user.PremiumExpiry != nil && !now.Before(*user.PremiumExpiry) {
		return false
	}
	return true
}

// LimitsFor derives the entitlement limits for a user. It is a pure function
// of the user's premium state at the given instant.
func LimitsFor(user *models.User, now time.Time) AccessLimits {
	if EffectivePremium(user, now) {
		return AccessLimits{
			IsPremium:             true,
			PracticeDailyLimit:    Unlimited,
			MaxQuestionsPerExam:   PremiumMaxQuestionsPerExam,
			MonthlyExamLimit:      Unlimited,
			ExplanationDailyLimit: Unlimited,
		}
	}
	return AccessLimits{
		IsPremium:             false,
		PracticeDailyLimit:    FreePracticeDailyLimit,
		MaxQuestionsPerExam:   FreeMaxQuestionsPerExam,
		MonthlyExamLimit:      FreeMonthlyExamLimit,
		ExplanationDailyLimit: FreeExplanationDailyLimit,
	}
}
