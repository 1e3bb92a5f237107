package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionExpired  SubscriptionStatus = "expired"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

type PaymentOrigin string

const (
	OriginWebhook PaymentOrigin = "webhook"
	OriginManual  PaymentOrigin = "manual"
	OriginCode    PaymentOrigin = "code"
)

// Subscription records a user's Season Pass entitlement. At most one row per
// user; repeated activations update the existing row.
type Subscription struct {
	ID     uint               `json:"id" gorm:"primaryKey"`
	UserID string             `json:"user_id" gorm:"not null;uniqueIndex;size:36"`
	Status SubscriptionStatus `json:"status" gorm:"default:active;size:20;index"`

	PlanName      string        `json:"plan_name" gorm:"not null;size:50"`
	PaymentMethod string        `json:"payment_method" gorm:"size:50"`
	Origin        PaymentOrigin `json:"origin" gorm:"not null;size:20"`

	// External transaction id or redeemed code; idempotency key for the
	// webhook path.
	ReferenceNumber string     `json:"reference_number" gorm:"index;size:100"`
	Amount          float64    `json:"amount"`
	ExpiresAt       *time.Time `json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// SeasonPassCode is a one-time redeemable token. Mutated exactly once, at
// redemption; immutable thereafter.
type SeasonPassCode struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Code string `json:"code" gorm:"uniqueIndex;not null;size:20"`

	Redeemed   bool       `json:"redeemed" gorm:"default:false;index"`
	RedeemedBy *string    `json:"redeemed_by" gorm:"size:36"`
	RedeemedAt *time.Time `json:"redeemed_at"`

	BatchID   string     `json:"batch_id" gorm:"index;size:36"`
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     string     `json:"notes" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SeasonPassCode) TableName() string {
	return "season_pass_codes"
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// PaymentVerification is a manual-payment claim. Decided at most once by an
// admin.
type PaymentVerification struct {
	ID     uint               `json:"id" gorm:"primaryKey"`
	UserID string             `json:"user_id" gorm:"not null;index;size:36"`
	Status VerificationStatus `json:"status" gorm:"default:pending;index;size:20"`

	Amount          float64 `json:"amount" gorm:"not null"`
	PaymentMethod   string  `json:"payment_method" gorm:"not null;size:50"`
	ReferenceNumber string  `json:"reference_number" gorm:"not null;size:100"`
	ProofImageURL   *string `json:"proof_image_url" gorm:"size:500"`

	ActivationCode  string     `json:"activation_code" gorm:"size:36"`
	DecidedBy       *string    `json:"decided_by" gorm:"size:36"`
	DecidedAt       *time.Time `json:"decided_at"`
	RejectionReason *string    `json:"rejection_reason" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (PaymentVerification) TableName() string {
	return "payment_verifications"
}

// WebhookEvent is the payload delivered by the payment gateway collaborator.
// The raw body is what the signature covers; RawPayload keeps it for audit.
type WebhookEvent struct {
	EventType       string         `json:"event_type"`
	ReferenceNumber string         `json:"reference_number"`
	UserID          string         `json:"user_id"`
	Amount          float64        `json:"amount"`
	PaymentMethod   string         `json:"payment_method"`
	RawPayload      datatypes.JSON `json:"-"`
}
