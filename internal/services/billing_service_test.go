package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/events"
	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/validator"
)

const testWebhookSecret = "test-webhook-secret"

func newTestBillingService(repo *mockRepo, publisher events.EventPublisher) BillingService {
	return NewBillingService(repo, nil, testLogger(), validator.New(), publisher, testWebhookSecret)
}

// ===== CODE REDEMPTION =====

func TestRedeemCode_HappyPath(t *testing.T) {
	repo := newMockRepo()
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestBillingService(repo, publisher)

	pass := &models.SeasonPassCode{Code: "SP-ABCD-2345"}

	repo.subscription.On("GetByUserID", mock.Anything, mock.Anything, "u1").
		Return(nil, repositories.ErrNotFound)
	repo.code.On("GetByCode", mock.Anything, mock.Anything, "SP-ABCD-2345").Return(pass, nil)
	repo.code.On("MarkRedeemed", mock.Anything, mock.Anything, "SP-ABCD-2345", "u1").Return(nil)
	repo.subscription.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(sub *models.Subscription) bool {
		return sub.UserID == "u1" &&
			sub.Status == models.SubscriptionActive &&
			sub.Origin == models.OriginCode &&
			sub.ReferenceNumber == "SP-ABCD-2345" &&
			sub.ExpiresAt == nil
	})).Return(nil)
	repo.user.On("SetPremium", mock.Anything, mock.Anything, "u1", true, (*time.Time)(nil)).Return(nil)

	resp, err := svc.RedeemCode(context.Background(), "u1", &RedeemCodeRequest{Code: "sp-abcd-2345"})
	require.NoError(t, err)

	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, models.SubscriptionActive, resp.Status)
	assert.Equal(t, models.OriginCode, resp.Origin)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 2)
	assert.Equal(t, events.TypePremiumActivated, published[0].Type)
	assert.Equal(t, events.TypeCodeRedeemed, published[1].Type)
	repo.user.AssertExpectations(t)
}

func TestRedeemCode_NotFound(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	repo.subscription.On("GetByUserID", mock.Anything, mock.Anything, "u1").
		Return(nil, repositories.ErrNotFound)
	repo.code.On("GetByCode", mock.Anything, mock.Anything, "SP-ABCD-2345").
		Return(nil, repositories.ErrNotFound)

	_, err := svc.RedeemCode(context.Background(), "u1", &RedeemCodeRequest{Code: "SP-ABCD-2345"})
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRedeemCode_AlreadyRedeemed(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	repo.subscription.On("GetByUserID", mock.Anything, mock.Anything, "u1").
		Return(nil, repositories.ErrNotFound)
	repo.code.On("GetByCode", mock.Anything, mock.Anything, "SP-ABCD-2345").
		Return(&models.SeasonPassCode{Code: "SP-ABCD-2345", Redeemed: true}, nil)

	_, err := svc.RedeemCode(context.Background(), "u1", &RedeemCodeRequest{Code: "SP-ABCD-2345"})
	assert.ErrorIs(t, err, ErrCodeAlreadyRedeemed)
}

func TestRedeemCode_Expired(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	expired := time.Now().Add(-time.Hour)
	repo.subscription.On("GetByUserID", mock.Anything, mock.Anything, "u1").
		Return(nil, repositories.ErrNotFound)
	repo.code.On("GetByCode", mock.Anything, mock.Anything, "SP-ABCD-2345").
		Return(&models.SeasonPassCode{Code: "SP-ABCD-2345", ExpiresAt: &expired}, nil)

	_, err := svc.RedeemCode(context.Background(), "u1", &RedeemCodeRequest{Code: "SP-ABCD-2345"})
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestRedeemCode_AlreadySubscribed(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	repo.subscription.On("GetByUserID", mock.Anything, mock.Anything, "u1").
		Return(&models.Subscription{UserID: "u1", Status: models.SubscriptionActive}, nil)

	_, err := svc.RedeemCode(context.Background(), "u1", &RedeemCodeRequest{Code: "SP-ABCD-2345"})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
	repo.code.AssertNotCalled(t, "GetByCode", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeemCode_LosesRaceOnGuardedUpdate(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	repo.subscription.On("GetByUserID", mock.Anything, mock.Anything, "u1").
		Return(nil, repositories.ErrNotFound)
	repo.code.On("GetByCode", mock.Anything, mock.Anything, "SP-ABCD-2345").
		Return(&models.SeasonPassCode{Code: "SP-ABCD-2345"}, nil)
	// Another redemption won between the read and the guarded update.
	repo.code.On("MarkRedeemed", mock.Anything, mock.Anything, "SP-ABCD-2345", "u1").
		Return(repositories.ErrNotFound)

	_, err := svc.RedeemCode(context.Background(), "u1", &RedeemCodeRequest{Code: "SP-ABCD-2345"})
	assert.ErrorIs(t, err, ErrCodeAlreadyRedeemed)
}

func TestRedeemCode_InvalidFormat(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	_, err := svc.RedeemCode(context.Background(), "u1", &RedeemCodeRequest{Code: "SP-A0CD-2345"})
	require.Error(t, err)

	var validationErrs ValidationErrors
	assert.ErrorAs(t, err, &validationErrs)
}

// ===== WEBHOOKS =====

func webhookBody(reference string) []byte {
	return []byte(fmt.Sprintf(`{"event_type":"payment.succeeded","reference_number":%q,"user_id":"u1","amount":499000,"payment_method":"momo"}`, reference))
}

func TestProcessWebhook_InvalidSignature(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	body := webhookBody("tx-1")
	result, err := svc.ProcessWebhook(context.Background(), body, "bogus-signature")

	assert.ErrorIs(t, err, ErrUnauthorized)
	require.NotNil(t, result)
	assert.False(t, result.Accepted)
	assert.Equal(t, "invalid signature", result.Reason)
	repo.subscription.AssertNotCalled(t, "GetByReference", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessWebhook_TamperedBody(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	body := webhookBody("tx-1")
	signature := ComputeWebhookSignature(testWebhookSecret, body)
	tampered := webhookBody("tx-2")

	result, err := svc.ProcessWebhook(context.Background(), tampered, signature)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, result.Accepted)
}

func TestProcessWebhook_ActivatesPremium(t *testing.T) {
	repo := newMockRepo()
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestBillingService(repo, publisher)

	body := webhookBody("tx-1")
	signature := ComputeWebhookSignature(testWebhookSecret, body)

	repo.subscription.On("GetByReference", mock.Anything, mock.Anything, "tx-1").
		Return(nil, repositories.ErrNotFound)
	repo.subscription.On("GetByUserID", mock.Anything, mock.Anything, "u1").
		Return(nil, repositories.ErrNotFound)
	repo.subscription.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(sub *models.Subscription) bool {
		return sub.Origin == models.OriginWebhook && sub.ReferenceNumber == "tx-1" && sub.Amount == 499000
	})).Return(nil)
	repo.user.On("SetPremium", mock.Anything, mock.Anything, "u1", true, (*time.Time)(nil)).Return(nil)

	result, err := svc.ProcessWebhook(context.Background(), body, signature)
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.False(t, result.AlreadyProcessed)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypePremiumActivated, published[0].Type)
}

func TestProcessWebhook_IdempotentOnReference(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	body := webhookBody("tx-1")
	signature := ComputeWebhookSignature(testWebhookSecret, body)

	repo.subscription.On("GetByReference", mock.Anything, mock.Anything, "tx-1").
		Return(&models.Subscription{UserID: "u1", ReferenceNumber: "tx-1"}, nil)

	result, err := svc.ProcessWebhook(context.Background(), body, signature)
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.True(t, result.AlreadyProcessed)
	repo.subscription.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	repo.user.AssertNotCalled(t, "SetPremium", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// stagedActivationRepo layers commit/rollback semantics over the mocks:
// writes made inside WithTransaction are staged and only become visible when
// the callback returns nil. An error discards the staged writes, the way a
// real transaction rolls back.
type stagedActivationRepo struct {
	*mockRepo

	failPremium bool

	committedSubs []*models.Subscription
	premiumSet    bool

	stagedSubs    []*models.Subscription
	stagedPremium bool
}

func newStagedActivationRepo() *stagedActivationRepo {
	return &stagedActivationRepo{mockRepo: newMockRepo()}
}

func (r *stagedActivationRepo) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.stagedSubs = nil
	r.stagedPremium = false
	if err := fn(nil); err != nil {
		r.stagedSubs = nil
		r.stagedPremium = false
		return err
	}
	r.committedSubs = append(r.committedSubs, r.stagedSubs...)
	if r.stagedPremium {
		r.premiumSet = true
	}
	return nil
}

func (r *stagedActivationRepo) Subscription() repositories.SubscriptionRepository {
	return &stagedSubscriptionRepo{MockSubscriptionRepository: r.mockRepo.subscription, repo: r}
}

func (r *stagedActivationRepo) User() repositories.UserRepository {
	return &stagedUserRepo{MockUserRepository: r.mockRepo.user, repo: r}
}

type stagedSubscriptionRepo struct {
	*MockSubscriptionRepository
	repo *stagedActivationRepo
}

func (s *stagedSubscriptionRepo) Create(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	s.repo.stagedSubs = append(s.repo.stagedSubs, sub)
	return nil
}

func (s *stagedSubscriptionRepo) Update(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	s.repo.stagedSubs = append(s.repo.stagedSubs, sub)
	return nil
}

func (s *stagedSubscriptionRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*models.Subscription, error) {
	for _, sub := range s.repo.stagedSubs {
		if sub.UserID == userID {
			return sub, nil
		}
	}
	for _, sub := range s.repo.committedSubs {
		if sub.UserID == userID {
			return sub, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *stagedSubscriptionRepo) GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.Subscription, error) {
	for _, sub := range s.repo.committedSubs {
		if sub.ReferenceNumber == reference {
			return sub, nil
		}
	}
	return nil, repositories.ErrNotFound
}

type stagedUserRepo struct {
	*MockUserRepository
	repo *stagedActivationRepo
}

func (u *stagedUserRepo) SetPremium(ctx context.Context, tx *gorm.DB, userID string, premium bool, expiry *time.Time) error {
	if u.repo.failPremium {
		return errors.New("connection reset")
	}
	u.repo.stagedPremium = premium
	return nil
}

func TestProcessWebhook_PremiumFlagFailureAborts(t *testing.T) {
	repo := newStagedActivationRepo()
	repo.failPremium = true
	svc := NewBillingService(repo, nil, testLogger(), validator.New(), nil, testWebhookSecret)

	body := webhookBody("tx-1")
	signature := ComputeWebhookSignature(testWebhookSecret, body)

	_, err := svc.ProcessWebhook(context.Background(), body, signature)
	require.Error(t, err)

	// The subscription row staged before the failing premium write must be
	// discarded with it.
	assert.Empty(t, repo.committedSubs)
	assert.False(t, repo.premiumSet)

	// A retry after the fault clears starts from a clean slate: the webhook
	// activates instead of short-circuiting as already processed.
	repo.failPremium = false
	result, err := svc.ProcessWebhook(context.Background(), body, signature)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.False(t, result.AlreadyProcessed)
	require.Len(t, repo.committedSubs, 1)
	assert.Equal(t, "tx-1", repo.committedSubs[0].ReferenceNumber)
	assert.True(t, repo.premiumSet)
}

func TestProcessWebhook_MalformedPayload(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	body := []byte(`{"event_type":`)
	signature := ComputeWebhookSignature(testWebhookSecret, body)

	result, err := svc.ProcessWebhook(context.Background(), body, signature)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.False(t, result.Accepted)
	assert.Equal(t, "malformed payload", result.Reason)
}

// ===== MANUAL VERIFICATION =====

func TestSubmitVerification_Pending(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	repo.verification.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(v *models.PaymentVerification) bool {
		return v.Status == models.VerificationPending && v.ActivationCode != ""
	})).Return(nil)

	verification, err := svc.SubmitVerification(context.Background(), "u1", &VerificationSubmitRequest{
		Amount:          499000,
		PaymentMethod:   "bank_transfer",
		ReferenceNumber: "FT2026-0001",
	})
	require.NoError(t, err)

	assert.Equal(t, models.VerificationPending, verification.Status)
	assert.Equal(t, "u1", verification.UserID)
	assert.NotEmpty(t, verification.ActivationCode)
}

func TestDecideVerification_Approve(t *testing.T) {
	repo := newMockRepo()
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestBillingService(repo, publisher)

	pending := &models.PaymentVerification{
		ID:              7,
		UserID:          "u1",
		Status:          models.VerificationPending,
		Amount:          499000,
		PaymentMethod:   "bank_transfer",
		ReferenceNumber: "FT2026-0001",
	}

	repo.verification.On("GetByID", mock.Anything, mock.Anything, uint(7)).Return(pending, nil)
	repo.subscription.On("GetByUserID", mock.Anything, mock.Anything, "u1").
		Return(nil, repositories.ErrNotFound)
	repo.subscription.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(sub *models.Subscription) bool {
		return sub.Origin == models.OriginManual && sub.ReferenceNumber == "FT2026-0001"
	})).Return(nil)
	repo.user.On("SetPremium", mock.Anything, mock.Anything, "u1", true, (*time.Time)(nil)).Return(nil)
	repo.verification.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	approve := true
	verification, err := svc.DecideVerification(context.Background(), "admin-1", 7, &VerificationDecisionRequest{Approve: &approve})
	require.NoError(t, err)

	assert.Equal(t, models.VerificationApproved, verification.Status)
	require.NotNil(t, verification.DecidedBy)
	assert.Equal(t, "admin-1", *verification.DecidedBy)
	assert.NotNil(t, verification.DecidedAt)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypePremiumActivated, published[0].Type)
}

func TestDecideVerification_Reject(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	pending := &models.PaymentVerification{ID: 7, UserID: "u1", Status: models.VerificationPending}

	repo.verification.On("GetByID", mock.Anything, mock.Anything, uint(7)).Return(pending, nil)
	repo.verification.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	approve := false
	verification, err := svc.DecideVerification(context.Background(), "admin-1", 7, &VerificationDecisionRequest{
		Approve:         &approve,
		RejectionReason: "reference not found in bank statement",
	})
	require.NoError(t, err)

	assert.Equal(t, models.VerificationRejected, verification.Status)
	require.NotNil(t, verification.RejectionReason)
	assert.Equal(t, "reference not found in bank statement", *verification.RejectionReason)
	repo.user.AssertNotCalled(t, "SetPremium", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDecideVerification_OneShot(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	decided := &models.PaymentVerification{ID: 7, UserID: "u1", Status: models.VerificationApproved}
	repo.verification.On("GetByID", mock.Anything, mock.Anything, uint(7)).Return(decided, nil)

	approve := true
	_, err := svc.DecideVerification(context.Background(), "admin-1", 7, &VerificationDecisionRequest{Approve: &approve})
	assert.ErrorIs(t, err, ErrVerificationAlreadyDecided)
}

// ===== CODE ADMINISTRATION =====

func TestGenerateCodes_BatchFormat(t *testing.T) {
	repo := newMockRepo()
	svc := newTestBillingService(repo, nil)

	var created []*models.SeasonPassCode
	repo.code.On("CreateBatch", mock.Anything, mock.Anything, mock.MatchedBy(func(codes []*models.SeasonPassCode) bool {
		created = codes
		return true
	})).Return(nil)

	resp, err := svc.GenerateCodes(context.Background(), "admin-1", &GenerateCodesRequest{Count: 25})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.BatchID)
	require.Len(t, created, 25)

	seen := make(map[string]struct{}, len(created))
	for _, code := range created {
		assert.Regexp(t, `^SP-[A-HJ-KM-NP-Z2-9]{4}-[A-HJ-KM-NP-Z2-9]{4}$`, code.Code)
		assert.Equal(t, resp.BatchID, code.BatchID)
		_, dup := seen[code.Code]
		assert.False(t, dup, "code %s minted twice", code.Code)
		seen[code.Code] = struct{}{}
	}
}

func TestGenerateCode_AlphabetExcludesAmbiguous(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.NotContains(t, code[3:], "0")
		assert.NotContains(t, code[3:], "O")
		assert.NotContains(t, code[3:], "1")
		assert.NotContains(t, code[3:], "I")
		assert.NotContains(t, code[3:], "L")
	}
}

func TestGenerateCode_CoversFullAlphabet(t *testing.T) {
	// 500 codes draw 4000 characters; with unbiased sampling every one of the
	// 31 alphabet characters appears with overwhelming probability.
	seen := make(map[byte]int, len(codeAlphabet))
	for i := 0; i < 500; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		for _, c := range []byte(code[3:7] + code[8:]) {
			seen[c]++
		}
	}

	for i := 0; i < len(codeAlphabet); i++ {
		assert.Positive(t, seen[codeAlphabet[i]], "character %c never drawn", codeAlphabet[i])
	}
}

// ===== SIGNATURES =====

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"amount":1}`)
	signature := ComputeWebhookSignature("secret", body)

	assert.True(t, VerifyWebhookSignature("secret", body, signature))
	assert.False(t, VerifyWebhookSignature("other-secret", body, signature))
	assert.False(t, VerifyWebhookSignature("secret", []byte(`{"amount":2}`), signature))
	assert.False(t, VerifyWebhookSignature("", body, signature), "empty secret must never verify")
	assert.False(t, VerifyWebhookSignature("secret", body, ""), "empty signature must never verify")
}
