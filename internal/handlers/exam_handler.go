package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/services"
	"github.com/prepkit/examprep-service/internal/utils"
)

type ExamHandler struct {
	BaseHandler
	examService services.ExamService
}

func NewExamHandler(examService services.ExamService, logger utils.Logger) *ExamHandler {
	return &ExamHandler{
		BaseHandler: NewBaseHandler(logger),
		examService: examService,
	}
}

// CreateExam starts a new timed mock exam session
// @Summary Create exam session
// @Description Selects random questions per the filters and opens an IN_PROGRESS session. Counts against the monthly exam limit only once completed.
// @Tags exams
// @Accept json
// @Produce json
// @Param exam body services.ExamCreateRequest true "Exam configuration"
// @Success 201 {object} services.ExamSessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /exams [post]
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req services.ExamCreateRequest
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

	session, err := h.examService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetExamState returns the current snapshot of a session
// @Summary Get exam state
// @Description Returns status, answered/flagged counts, remaining seconds and the question set
// @Tags exams
// @Produce json
// @Param id path uint true "Exam session ID"
// @Success 200 {object} services.ExamStateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id} [get]
func (h *ExamHandler) GetExamState(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	state, err := h.examService.GetState(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// RecordExamAnswer records one answer inside a running session
// @Summary Record exam answer
// @Description Records or overwrites the answer to one question of an in-progress session
// @Tags exams
// @Accept json
// @Produce json
// @Param id path uint true "Exam session ID"
// @Param answer body services.ExamAnswerRequest true "Answer data"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /exams/{id}/answers [put]
func (h *ExamHandler) RecordExamAnswer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ExamAnswerRequest
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

	if err := h.examService.RecordAnswer(c.Request.Context(), id, userID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Answer recorded"})
}

// FlagExamQuestion toggles the review flag on a question
// @Summary Flag exam question
// @Tags exams
// @Accept json
// @Produce json
// @Param id path uint true "Exam session ID"
// @Param flag body services.ExamFlagRequest true "Flag data"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /exams/{id}/flags [put]
func (h *ExamHandler) FlagExamQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ExamFlagRequest
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

	if err := h.examService.ToggleFlag(c.Request.Context(), id, userID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Flag updated"})
}

// CompleteExam ends a session and grades it
// @Summary Complete exam
// @Description Transitions the session to COMPLETED, grades it and returns the results. Unanswered questions count against the score.
// @Tags exams
// @Produce json
// @Param id path uint true "Exam session ID"
// @Success 200 {object} services.ExamResultsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /exams/{id}/complete [post]
func (h *ExamHandler) CompleteExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	results, err := h.examService.Complete(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// AbandonExam ends a session without grading it
// @Summary Abandon exam
// @Description Transitions the session to ABANDONED. Abandoned exams never count against the monthly limit.
// @Tags exams
// @Produce json
// @Param id path uint true "Exam session ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /exams/{id}/abandon [post]
func (h *ExamHandler) AbandonExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.examService.Abandon(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Exam abandoned"})
}

// GetExamResults returns the graded results of a completed session
// @Summary Get exam results
// @Tags exams
// @Produce json
// @Param id path uint true "Exam session ID"
// @Success 200 {object} services.ExamResultsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /exams/{id}/results [get]
func (h *ExamHandler) GetExamResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	results, err := h.examService.Results(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// ListExams lists the user's exam sessions
// @Summary List exams
// @Tags exams
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Param status query string false "Exam status"
// @Success 200 {object} services.ExamListResponse
// @Failure 401 {object} ErrorResponse
// @Router /exams [get]
func (h *ExamHandler) ListExams(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	exams, err := h.examService.List(c.Request.Context(), userID, h.parseExamFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exams)
}

// GetExamStats returns aggregate exam statistics for the user
// @Summary Get exam stats
// @Tags exams
// @Produce json
// @Success 200 {object} repositories.ExamStats
// @Failure 401 {object} ErrorResponse
// @Router /exams/stats [get]
func (h *ExamHandler) GetExamStats(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.examService.GetStats(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ExamHandler) parseExamFilters(c *gin.Context) repositories.ExamFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.ExamFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if status := c.Query("status"); status != "" {
		examStatus := models.ExamStatus(status)
		filters.Status = &examStatus
	}

	return filters
}
