package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prepkit/examprep-service/internal/models"
)

func TestLimitsFor_FreeTier(t *testing.T) {
	user := &models.User{ID: "u1", IsPremium: false}

	limits := LimitsFor(user, time.Now())

	assert.False(t, limits.IsPremium)
	assert.Equal(t, 15, limits.PracticeDailyLimit)
	assert.Equal(t, 20, limits.MaxQuestionsPerExam)
	assert.Equal(t, 3, limits.MonthlyExamLimit)
	assert.Equal(t, 3, limits.ExplanationDailyLimit)
}

func TestLimitsFor_Premium(t *testing.T) {
	user := &models.User{ID: "u1", IsPremium: true}

	limits := LimitsFor(user, time.Now())

	assert.True(t, limits.IsPremium)
	assert.Equal(t, Unlimited, limits.PracticeDailyLimit)
	assert.Equal(t, 170, limits.MaxQuestionsPerExam)
	assert.Equal(t, Unlimited, limits.MonthlyExamLimit)
	assert.Equal(t, Unlimited, limits.ExplanationDailyLimit)
}

func TestEffectivePremium_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		user *models.User
		want bool
	}{
		{"nil user", nil, false},
		{"not premium", &models.User{IsPremium: false}, false},
		{"premium without expiry", &models.User{IsPremium: true}, true},
		{"premium with future expiry", &models.User{IsPremium: true, PremiumExpiry: &future}, true},
		{"premium with past expiry", &models.User{IsPremium: true, PremiumExpiry: &past}, false},
		{"premium expiring exactly now", &models.User{IsPremium: true, PremiumExpiry: &now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectivePremium(tt.user, now))
		})
	}
}

func TestEffectivePremium_ExpiryDowngradesLimits(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	user := &models.User{ID: "u1", IsPremium: true, PremiumExpiry: &past}

	limits := LimitsFor(user, time.Now())

	assert.False(t, limits.IsPremium)
	assert.Equal(t, 15, limits.PracticeDailyLimit)
}
