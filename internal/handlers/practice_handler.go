package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/services"
	"github.com/prepkit/examprep-service/internal/utils"
)

type PracticeHandler struct {
	BaseHandler
	practiceService    services.PracticeService
	explanationService services.ExplanationService
}

func NewPracticeHandler(
	practiceService services.PracticeService,
	explanationService services.ExplanationService,
	logger utils.Logger,
) *PracticeHandler {
	return &PracticeHandler{
		BaseHandler:        NewBaseHandler(logger),
		practiceService:    practiceService,
		explanationService: explanationService,
	}
}

// GetPracticeQuestions returns a random batch of practice questions
// @Summary Get practice questions
// @Description Returns random questions matching the filters with the answer key stripped
// @Tags practice
// @Produce json
// @Param count query int false "Number of questions" default(10)
// @Param category query string false "Question category"
// @Param difficulty query string false "Difficulty level"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /practice/questions [get]
func (h *PracticeHandler) GetPracticeQuestions(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	count := h.parseIntQuery(c, "count", 10)
	filters := repositories.QuestionFilters{}
	if category := c.Query("category"); category != "" {
		filters.Categories = []models.QuestionCategory{models.QuestionCategory(category)}
	}
	if difficulty := c.Query("difficulty"); difficulty != "" {
		level := models.DifficultyLevel(difficulty)
		filters.Difficulty = &level
	}

	questions, err := h.practiceService.GetQuestions(c.Request.Context(), userID, filters, count)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questions": questions,
		"count":     len(questions),
	})
}

// SubmitPracticeAnswer grades one practice answer
// @Summary Submit practice answer
// @Description Grades one answer and returns correctness, the correct option, explanations, updated usage and streak. Counts against the free tier's daily practice limit.
// @Tags practice
// @Accept json
// @Produce json
// @Param answer body services.PracticeAnswerRequest true "Answer data"
// @Success 200 {object} services.PracticeAnswerResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /practice/answers [post]
func (h *PracticeHandler) SubmitPracticeAnswer(c *gin.Context) {
	var req services.PracticeAnswerRequest
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

	resp, err := h.practiceService.SubmitAnswer(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetStreak returns the user's consecutive-day practice streak
// @Summary Get streak
// @Tags practice
// @Produce json
// @Success 200 {object} models.UserStreak
// @Failure 401 {object} ErrorResponse
// @Router /practice/streak [get]
func (h *PracticeHandler) GetStreak(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	streak, err := h.practiceService.GetStreak(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, streak)
}

// ExplainQuestion returns a detailed explanation for a question
// @Summary Explain question
// @Description Returns the AI-generated explanation, generating and caching it on first request. Generation counts against the daily explanation limit; cached reads are free.
// @Tags practice
// @Produce json
// @Param id path uint true "Question ID"
// @Success 200 {object} services.ExplanationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id}/explanation [get]
func (h *PracticeHandler) ExplainQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	resp, err := h.explanationService.Explain(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
