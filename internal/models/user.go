package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           string   `json:"id" gorm:"primaryKey;size:36"`
	FullName     string   `json:"full_name" gorm:"not null;size:100"`
	Email        string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	PasswordHash string   `json:"-" gorm:"not null;size:255"`
	Role         UserRole `json:"role" gorm:"default:user;size:20"`

	// Entitlement. PremiumExpiry == nil on a premium user means the
	// subscription does not expire.
	IsPremium     bool       `json:"is_premium" gorm:"default:false;index"`
	PremiumExpiry *time.Time `json:"premium_expiry"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}
