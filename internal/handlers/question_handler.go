package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/services"
	"github.com/prepkit/examprep-service/internal/utils"
)

type QuestionHandler struct {
	BaseHandler
	questionService services.QuestionService
	importService   services.ImportExportService
}

func NewQuestionHandler(
	questionService services.QuestionService,
	importService services.ImportExportService,
	logger utils.Logger,
) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler:     NewBaseHandler(logger),
		questionService: questionService,
		importService:   importService,
	}
}

// CreateQuestion creates a new question
// @Summary Create question
// @Description Creates a question. Questions are immutable after creation; only the explanation can be backfilled.
// @Tags questions
// @Accept json
// @Produce json
// @Param question body services.QuestionCreateRequest true "Question data"
// @Success 201 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /questions [post]
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req services.QuestionCreateRequest
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

	question, err := h.questionService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

// GetQuestion retrieves a question by ID
// @Summary Get question
// @Tags questions
// @Produce json
// @Param id path uint true "Question ID"
// @Success 200 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id} [get]
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	question, err := h.questionService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// ListQuestions lists questions with filters
// @Summary List questions
// @Tags questions
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Param category query string false "Question category"
// @Param difficulty query string false "Difficulty level"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /questions [get]
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	h.LogRequest(c, "Listing questions")

	filters := h.parseQuestionFilters(c)
	questions, total, err := h.questionService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questions": questions,
		"total":     total,
	})
}

// DeleteQuestion deletes a question
// @Summary Delete question
// @Tags questions
// @Produce json
// @Param id path uint true "Question ID"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id} [delete]
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting question", "question_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ImportQuestions bulk-imports questions from a spreadsheet
// @Summary Import questions
// @Description Imports questions from an uploaded .xlsx file. The batch is all-or-nothing; row errors are reported per row.
// @Tags questions
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Question spreadsheet (.xlsx)"
// @Success 200 {object} services.ImportResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /questions/import [post]
func (h *QuestionHandler) ImportQuestions(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Missing upload file",
			Details: err.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Failed to open upload",
			Details: err.Error(),
		})
		return
	}
	defer file.Close()

	h.LogRequest(c, "Importing questions", "filename", fileHeader.Filename)

	result, err := h.importService.ImportQuestions(c.Request.Context(), userID, file)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *QuestionHandler) parseQuestionFilters(c *gin.Context) repositories.QuestionFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.QuestionFilters{
		Limit:  size,
		Offset: (page - 1) * size,
	}

	if category := c.Query("category"); category != "" {
		filters.Categories = []models.QuestionCategory{models.QuestionCategory(category)}
	}

	if difficulty := c.Query("difficulty"); difficulty != "" {
		level := models.DifficultyLevel(difficulty)
		filters.Difficulty = &level
	}

	return filters
}
