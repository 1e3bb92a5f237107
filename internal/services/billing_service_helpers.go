package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
)

// codeAlphabet excludes ambiguous characters (0/O, 1/I/L) so codes survive
// being read aloud or transcribed from paper.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const seasonPassPlan = "season_pass"

// VerifyWebhookSignature checks the HMAC-SHA256 signature computed over the
// raw request body, base64-encoded, using constant-time comparison.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ComputeWebhookSignature produces the signature a trusted sender would send.
func ComputeWebhookSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// generateCode mints one SP-XXXX-XXXX code from crypto randomness. Bytes at
// or above the largest multiple of the alphabet size are discarded so every
// character is equally likely.
func generateCode() (string, error) {
	const limit = byte(256 - 256%len(codeAlphabet))

	chars := make([]byte, 0, 8)
	buf := make([]byte, 16)
	for len(chars) < 8 {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read randomness: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			chars = append(chars, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(chars) == 8 {
				break
			}
		}
	}
	return fmt.Sprintf("SP-%s-%s", chars[:4], chars[4:]), nil
}

// activatePremium applies the subscription upsert and the user premium flag
// inside the caller's transaction. Both writes commit together or not at all;
// a partial activation (paid but locked out) must be impossible.
func (s *billingService) activatePremium(ctx context.Context, tx *gorm.DB, userID string, origin models.PaymentOrigin, reference, paymentMethod string, amount float64, expiresAt *time.Time) (*models.Subscription, error) {
	existing, err := s.repo.Subscription().GetByUserID(ctx, tx, userID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub := existing
	if sub == nil {
		sub = &models.Subscription{UserID: userID}
	}
	sub.Status = models.SubscriptionActive
	sub.PlanName = seasonPassPlan
	sub.PaymentMethod = paymentMethod
	sub.Origin = origin
	sub.ReferenceNumber = reference
	sub.Amount = amount
	sub.ExpiresAt = expiresAt

	if existing == nil {
		err = s.repo.Subscription().Create(ctx, tx, sub)
	} else {
		err = s.repo.Subscription().Update(ctx, tx, sub)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist subscription: %w", err)
	}

	if err := s.repo.User().SetPremium(ctx, tx, userID, true, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to set premium flag: %w", err)
	}
	return sub, nil
}

// hasActiveSubscription reports whether the user already holds an active,
// unexpired subscription.
func (s *billingService) hasActiveSubscription(ctx context.Context, tx *gorm.DB, userID string) (bool, error) {
	sub, err := s.repo.Subscription().GetByUserID(ctx, tx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.Status != models.SubscriptionActive {
		return false, nil
	}
	if sub.ExpiresAt != nil && !time.Now().Before(*sub.ExpiresAt) {
		return false, nil
	}
	return true, nil
}
