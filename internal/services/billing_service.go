package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/events"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/validator"
)

type billingService struct {
	repo          repositories.Repository
	db            *gorm.DB
	logger        *slog.Logger
	validator     *validator.Validator
	publisher     events.EventPublisher
	webhookSecret string
}

func NewBillingService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, webhookSecret string) BillingService {
	return &billingService{
		repo:          repo,
		db:            db,
		logger:        logger,
		validator:     validator,
		publisher:     publisher,
		webhookSecret: webhookSecret,
	}
}

// ===== CODE REDEMPTION =====

func (s *billingService) RedeemCode(ctx context.Context, userID string, req *RedeemCodeRequest) (*ActivationResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	code := validator.NormalizeCode(req.Code)

	s.logger.Info("Redeeming season pass code", "user_id", userID)

	active, err := s.hasActiveSubscription(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrAlreadySubscribed
	}

	var sub *models.Subscription
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		pass, err := s.repo.Code().GetByCode(ctx, tx, code)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrCodeNotFound
			}
			return fmt.Errorf("failed to get code: %w", err)
		}
		if pass.Redeemed {
			return ErrCodeAlreadyRedeemed
		}
		if pass.ExpiresAt != nil && !time.Now().Before(*pass.ExpiresAt) {
			return ErrCodeExpired
		}

		// Guarded update; loses the race cleanly if someone else redeemed
		// the code between the read above and here.
		if err := s.repo.Code().MarkRedeemed(ctx, tx, code, userID); err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrCodeAlreadyRedeemed
			}
			return fmt.Errorf("failed to mark code redeemed: %w", err)
		}

		sub, err = s.activatePremium(ctx, tx, userID, models.OriginCode, code, "season_pass_code", 0, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishActivation(userID, models.OriginCode, code)
	s.publishEvent(events.TypeCodeRedeemed, userID, map[string]interface{}{"code": code})

	s.logger.Info("Season pass code redeemed", "user_id", userID)

	return activationResponse(sub), nil
}

// ===== WEBHOOK PAYMENTS =====

// ProcessWebhook verifies and applies one gateway notification. Any returned
// error is for internal logging only; the transport layer always acknowledges
// with success so the gateway does not retry an unfixable request.
func (s *billingService) ProcessWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if !VerifyWebhookSignature(s.webhookSecret, body, signature) {
		s.logger.Warn("Webhook signature verification failed", "body_bytes", len(body))
		return &WebhookResult{Accepted: false, Reason: "invalid signature"}, ErrUnauthorized
	}

	var payload validator.PaymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Warn("Webhook payload malformed", "error", err)
		return &WebhookResult{Accepted: false, Reason: "malformed payload"}, fmt.Errorf("%w: %s", ErrValidationFailed, err)
	}
	if err := s.validator.Validate(&payload); err != nil {
		s.logger.Warn("Webhook payload invalid", "error", err)
		return &WebhookResult{Accepted: false, Reason: "invalid payload"}, err
	}

	event := &models.WebhookEvent{
		EventType:       payload.EventType,
		ReferenceNumber: payload.ReferenceNumber,
		UserID:          payload.UserID,
		Amount:          payload.Amount,
		PaymentMethod:   payload.PaymentMethod,
		RawPayload:      datatypes.JSON(body),
	}
	return s.applyWebhookEvent(ctx, event)
}

func (s *billingService) applyWebhookEvent(ctx context.Context, event *models.WebhookEvent) (*WebhookResult, error) {
	// Idempotency: a subscription already holding this reference means the
	// gateway re-delivered an event we fully processed.
	existing, err := s.repo.Subscription().GetByReference(ctx, s.db, event.ReferenceNumber)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check reference: %w", err)
	}
	if existing != nil {
		s.logger.Info("Webhook already processed",
			"reference_number", event.ReferenceNumber,
			"user_id", event.UserID)
		return &WebhookResult{Accepted: true, AlreadyProcessed: true}, nil
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		_, err := s.activatePremium(ctx, tx, event.UserID, models.OriginWebhook, event.ReferenceNumber, event.PaymentMethod, event.Amount, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishActivation(event.UserID, models.OriginWebhook, event.ReferenceNumber)

	s.logger.Info("Webhook payment activated",
		"reference_number", event.ReferenceNumber,
		"user_id", event.UserID,
		"amount", event.Amount)

	return &WebhookResult{Accepted: true}, nil
}

// ===== MANUAL VERIFICATION =====

func (s *billingService) SubmitVerification(ctx context.Context, userID string, req *VerificationSubmitRequest) (*models.PaymentVerification, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	verification := &models.PaymentVerification{
		UserID:          userID,
		Status:          models.VerificationPending,
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		ReferenceNumber: req.ReferenceNumber,
		ActivationCode:  uuid.New().String(),
	}
	if req.ProofImageURL != "" {
		verification.ProofImageURL = &req.ProofImageURL
	}

	if err := s.repo.Verification().Create(ctx, s.db, verification); err != nil {
		return nil, fmt.Errorf("failed to create verification: %w", err)
	}

	s.logger.Info("Payment verification submitted",
		"verification_id", verification.ID,
		"user_id", userID,
		"reference_number", req.ReferenceNumber)

	return verification, nil
}

func (s *billingService) DecideVerification(ctx context.Context, adminID string, verificationID uint, req *VerificationDecisionRequest) (*models.PaymentVerification, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var verification *models.PaymentVerification
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		verification, err = s.repo.Verification().GetByID(ctx, tx, verificationID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrVerificationNotFound
			}
			return fmt.Errorf("failed to get verification: %w", err)
		}
		if verification.Status != models.VerificationPending {
			return ErrVerificationAlreadyDecided
		}

		now := time.Now()
		verification.DecidedBy = &adminID
		verification.DecidedAt = &now

		if *req.Approve {
			verification.Status = models.VerificationApproved
			if _, err := s.activatePremium(ctx, tx, verification.UserID, models.OriginManual, verification.ReferenceNumber, verification.PaymentMethod, verification.Amount, nil); err != nil {
				return err
			}
		} else {
			verification.Status = models.VerificationRejected
			if req.RejectionReason != "" {
				verification.RejectionReason = &req.RejectionReason
			}
		}

		if err := s.repo.Verification().Update(ctx, tx, verification); err != nil {
			return fmt.Errorf("failed to update verification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if verification.Status == models.VerificationApproved {
		s.publishActivation(verification.UserID, models.OriginManual, verification.ReferenceNumber)
	}

	s.logger.Info("Payment verification decided",
		"verification_id", verificationID,
		"status", verification.Status,
		"decided_by", adminID)

	return verification, nil
}

func (s *billingService) ListVerifications(ctx context.Context, filters repositories.VerificationFilters) ([]*models.PaymentVerification, int64, error) {
	verifications, total, err := s.repo.Verification().List(ctx, s.db, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list verifications: %w", err)
	}
	return verifications, total, nil
}

// ===== CODE ADMINISTRATION =====

func (s *billingService) GenerateCodes(ctx context.Context, adminID string, req *GenerateCodesRequest) (*GenerateCodesResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	batchID := uuid.New().String()
	codes := make([]*models.SeasonPassCode, 0, req.Count)
	seen := make(map[string]struct{}, req.Count)
	for len(codes) < req.Count {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, &models.SeasonPassCode{
			Code:      code,
			BatchID:   batchID,
			ExpiresAt: req.ExpiresAt,
			Notes:     req.Notes,
		})
	}

	if err := s.repo.Code().CreateBatch(ctx, s.db, codes); err != nil {
		return nil, fmt.Errorf("failed to create code batch: %w", err)
	}

	s.logger.Info("Season pass codes generated",
		"batch_id", batchID,
		"count", len(codes),
		"created_by", adminID)

	return &GenerateCodesResponse{BatchID: batchID, Codes: codes}, nil
}

func (s *billingService) ListCodes(ctx context.Context, filters repositories.CodeFilters) ([]*models.SeasonPassCode, int64, error) {
	codes, total, err := s.repo.Code().List(ctx, s.db, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list codes: %w", err)
	}
	return codes, total, nil
}

func (s *billingService) GetBatchStats(ctx context.Context, batchID string) (*repositories.CodeBatchStats, error) {
	stats, err := s.repo.Code().GetBatchStats(ctx, s.db, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch stats: %w", err)
	}
	return stats, nil
}

// ===== SUBSCRIPTIONS =====

func (s *billingService) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.repo.Subscription().GetByUserID(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ===== INTERNAL =====

func (s *billingService) publishActivation(userID string, origin models.PaymentOrigin, reference string) {
	s.publishEvent(events.TypePremiumActivated, userID, map[string]interface{}{
		"origin":           origin,
		"reference_number": reference,
	})
}

func (s *billingService) publishEvent(eventType, userID string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(events.NewEvent(eventType, userID, data)); err != nil {
		s.logger.Warn("Failed to publish event", "type", eventType, "error", err)
	}
}

func activationResponse(sub *models.Subscription) *ActivationResponse {
	return &ActivationResponse{
		UserID:      sub.UserID,
		PlanName:    sub.PlanName,
		Origin:      sub.Origin,
		Status:      sub.Status,
		ActivatedAt: sub.UpdatedAt,
		ExpiresAt:   sub.ExpiresAt,
	}
}
