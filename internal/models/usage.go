package models

import "time"

// UsageKind selects which daily counter a ledger operation targets.
type UsageKind string

const (
	UsagePractice    UsageKind = "practice"
	UsageExplanation UsageKind = "explanation"
)

// DailyUsage is one counter row per (user, kind, canonical calendar day).
// Rows are created lazily on first use and incremented atomically, never
// decremented. UsageDate is the canonical day in the configured usage
// timezone, stored as yyyy-mm-dd.
type DailyUsage struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"not null;size:36;uniqueIndex:idx_user_kind_date"`
	Kind      UsageKind `json:"kind" gorm:"not null;size:20;uniqueIndex:idx_user_kind_date"`
	UsageDate string    `json:"usage_date" gorm:"not null;size:10;uniqueIndex:idx_user_kind_date"`
	Count     int       `json:"count" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DailyUsage) TableName() string {
	return "daily_usage"
}

// UserStreak tracks consecutive practice days per user. LastActivityDate is
// a canonical day string like DailyUsage.UsageDate.
type UserStreak struct {
	UserID           string     `json:"user_id" gorm:"primaryKey;size:36"`
	CurrentStreak    int        `json:"current_streak" gorm:"not null;default:0"`
	LongestStreak    int        `json:"longest_streak" gorm:"not null;default:0"`
	LastActivityDate string     `json:"last_activity_date" gorm:"size:10"`
	LastRepairedAt   *time.Time `json:"last_repaired_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserStreak) TableName() string {
	return "user_streaks"
}
