package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/services"
	"github.com/prepkit/examprep-service/internal/utils"
)

// webhookSignatureHeader carries the gateway's HMAC over the raw body.
const webhookSignatureHeader = "X-Api-Signature"

type BillingHandler struct {
	BaseHandler
	billingService services.BillingService
	exportService  services.ImportExportService
}

func NewBillingHandler(
	billingService services.BillingService,
	exportService services.ImportExportService,
	logger utils.Logger,
) *BillingHandler {
	return &BillingHandler{
		BaseHandler:    NewBaseHandler(logger),
		billingService: billingService,
		exportService:  exportService,
	}
}

// RedeemCode redeems a season pass code
// @Summary Redeem season pass code
// @Description Redeems an SP-XXXX-XXXX code and activates premium for the user
// @Tags billing
// @Accept json
// @Produce json
// @Param request body services.RedeemCodeRequest true "Code"
// @Success 200 {object} services.ActivationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /billing/redeem [post]
func (h *BillingHandler) RedeemCode(c *gin.Context) {
	var req services.RedeemCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	resp, err := h.billingService.RedeemCode(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PaymentWebhook receives gateway payment notifications
// @Summary Payment webhook
// @Description Verifies the HMAC signature over the raw body and activates premium. Always acknowledges with 200 so the gateway does not retry; the outcome is carried in the body.
// @Tags billing
// @Accept json
// @Produce json
// @Param X-Api-Signature header string true "HMAC-SHA256 signature, base64"
// @Success 200 {object} services.WebhookResult
// @Router /webhooks/payment [post]
func (h *BillingHandler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.LogError(c, err, "Failed to read webhook body")
		c.JSON(http.StatusOK, services.WebhookResult{Reason: "unreadable body"})
		return
	}

	result, err := h.billingService.ProcessWebhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader))
	if err != nil {
		// Logged and swallowed: the gateway gets a 200 either way, retrying
		// an invalid or unverifiable notification cannot succeed.
		h.LogError(c, err, "Webhook processing failed")
	}
	if result == nil {
		result = &services.WebhookResult{}
	}

	c.JSON(http.StatusOK, result)
}

// GetSubscription returns the user's subscription
// @Summary Get subscription
// @Tags billing
// @Produce json
// @Success 200 {object} models.Subscription
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /billing/subscription [get]
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	sub, err := h.billingService.GetSubscription(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// SubmitVerification submits a manual payment for review
// @Summary Submit payment verification
// @Description Submits proof of a bank transfer for admin review
// @Tags billing
// @Accept json
// @Produce json
// @Param request body services.VerificationSubmitRequest true "Payment details"
// @Success 201 {object} models.PaymentVerification
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /billing/verifications [post]
func (h *BillingHandler) SubmitVerification(c *gin.Context) {
	var req services.VerificationSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	verification, err := h.billingService.SubmitVerification(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, verification)
}

// DecideVerification approves or rejects a pending verification
// @Summary Decide payment verification
// @Description Approves (activating premium) or rejects a pending verification. A verification can be decided exactly once.
// @Tags billing
// @Accept json
// @Produce json
// @Param id path uint true "Verification ID"
// @Param request body services.VerificationDecisionRequest true "Decision"
// @Success 200 {object} models.PaymentVerification
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/verifications/{id} [put]
func (h *BillingHandler) DecideVerification(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.VerificationDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	adminID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	verification, err := h.billingService.DecideVerification(c.Request.Context(), adminID, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, verification)
}

// ListVerifications lists payment verifications
// @Summary List payment verifications
// @Tags billing
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Param status query string false "Verification status"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Router /admin/verifications [get]
func (h *BillingHandler) ListVerifications(c *gin.Context) {
	filters := h.parseVerificationFilters(c)

	verifications, total, err := h.billingService.ListVerifications(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verifications": verifications,
		"total":         total,
	})
}

// GenerateCodes mints a batch of season pass codes
// @Summary Generate season pass codes
// @Tags billing
// @Accept json
// @Produce json
// @Param request body services.GenerateCodesRequest true "Batch parameters"
// @Success 201 {object} services.GenerateCodesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /admin/codes [post]
func (h *BillingHandler) GenerateCodes(c *gin.Context) {
	var req services.GenerateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	adminID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Generating season pass codes", "count", req.Count)

	resp, err := h.billingService.GenerateCodes(c.Request.Context(), adminID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListCodes lists season pass codes
// @Summary List season pass codes
// @Tags billing
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(50)
// @Param batch_id query string false "Batch ID"
// @Param redeemed query bool false "Redemption state"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Router /admin/codes [get]
func (h *BillingHandler) ListCodes(c *gin.Context) {
	filters := h.parseCodeFilters(c)

	codes, total, err := h.billingService.ListCodes(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"codes": codes,
		"total": total,
	})
}

// GetBatchStats returns redemption statistics for a code batch
// @Summary Get code batch stats
// @Tags billing
// @Produce json
// @Param batch_id path string true "Batch ID"
// @Success 200 {object} repositories.CodeBatchStats
// @Failure 401 {object} ErrorResponse
// @Router /admin/codes/batches/{batch_id}/stats [get]
func (h *BillingHandler) GetBatchStats(c *gin.Context) {
	batchID := c.Param("batch_id")
	if batchID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid batch_id",
		})
		return
	}

	stats, err := h.billingService.GetBatchStats(c.Request.Context(), batchID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportCodes downloads a code batch as a spreadsheet
// @Summary Export code batch
// @Description Streams the batch as an .xlsx file for offline distribution
// @Tags billing
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param batch_id path string true "Batch ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /admin/codes/batches/{batch_id}/export [get]
func (h *BillingHandler) ExportCodes(c *gin.Context) {
	batchID := c.Param("batch_id")
	if batchID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid batch_id",
		})
		return
	}

	data, err := h.exportService.ExportCodes(c.Request.Context(), batchID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="codes-%s.xlsx"`, batchID))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *BillingHandler) parseVerificationFilters(c *gin.Context) repositories.VerificationFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.VerificationFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if status := c.Query("status"); status != "" {
		verificationStatus := models.VerificationStatus(status)
		filters.Status = &verificationStatus
	}

	return filters
}

func (h *BillingHandler) parseCodeFilters(c *gin.Context) repositories.CodeFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 50)

	filters := repositories.CodeFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if batchID := c.Query("batch_id"); batchID != "" {
		filters.BatchID = &batchID
	}

	if redeemedStr := c.Query("redeemed"); redeemedStr != "" {
		redeemed := redeemedStr == "true"
		filters.Redeemed = &redeemed
	}

	return filters
}
