package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prepkit/examprep-service/internal/services"
	"github.com/prepkit/examprep-service/internal/utils"
)

// ErrorResponse is the uniform error body returned by all endpoints.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps endpoints that return no domain payload.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs at info level with the request-scoped logger.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.LoggerFromContext(c, h.logger).Info(msg, args...)
}

// LogError logs at error level with the request-scoped logger.
func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.LoggerFromContext(c, h.logger).Error(msg, append(args, "error", err)...)
}

func (h *BaseHandler) getUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		return ""
	}
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// requireUserID aborts with 401 when the auth middleware did not run.
func (h *BaseHandler) requireUserID(c *gin.Context) (string, bool) {
	userID := h.getUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID, true
}

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: err.Error(),
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// handleServiceError maps service errors onto HTTP statuses. All handlers
// share one error vocabulary, so the mapping lives here.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var quotaError *services.QuotaError
	if errors.As(err, &quotaError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Daily limit reached",
			Details: map[string]interface{}{
				"kind":      quotaError.Kind,
				"limit":     quotaError.Limit,
				"used":      quotaError.Used,
				"resets_at": quotaError.ResetsAt,
			},
		})
		return
	}

	var examQuotaError *services.ExamQuotaError
	if errors.As(err, &examQuotaError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Monthly exam limit reached",
			Details: map[string]interface{}{
				"limit":     examQuotaError.Limit,
				"used":      examQuotaError.Used,
				"resets_at": examQuotaError.ResetsAt,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "User not found",
		})
	case errors.Is(err, services.ErrEmailAlreadyTaken):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Email is already registered",
		})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Invalid email or password",
		})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Question not found",
		})
	case errors.Is(err, services.ErrInsufficientQuestions):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Not enough questions match the requested filters",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrExamNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Exam session not found",
		})
	case errors.Is(err, services.ErrExamNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Exam session is not in progress",
		})
	case errors.Is(err, services.ErrQuestionNotInExam):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Question is not part of this exam session",
		})
	case errors.Is(err, services.ErrOptionNotInQuestion):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Selected option does not exist on this question",
		})
	case errors.Is(err, services.ErrCodeNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Season pass code not found",
		})
	case errors.Is(err, services.ErrCodeAlreadyRedeemed):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Season pass code has already been redeemed",
		})
	case errors.Is(err, services.ErrCodeExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Season pass code has expired",
		})
	case errors.Is(err, services.ErrVerificationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Payment verification not found",
		})
	case errors.Is(err, services.ErrVerificationAlreadyDecided):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Payment verification has already been decided",
		})
	case errors.Is(err, services.ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "No subscription found",
		})
	case errors.Is(err, services.ErrAlreadySubscribed):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "User already has an active subscription",
		})
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Unauthorized access",
		})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden - insufficient permissions",
		})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
