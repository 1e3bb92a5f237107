package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/prepkit/examprep-service/internal/models"
	"github.com/prepkit/examprep-service/internal/repositories"
	"github.com/prepkit/examprep-service/internal/validator"
)

// Import sheet layout: category, difficulty, text, option ids (pipe
// separated), option texts (pipe separated), correct option id, explanation.
const importColumns = 7

type importExportService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewImportExportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator) ImportExportService {
	return &importExportService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
	}
}

// ImportQuestions reads an xlsx workbook and creates every parseable row in
// one batch. Rows that fail to parse are reported, not imported; the batch
// itself is all-or-nothing.
func (s *importExportService) ImportQuestions(ctx context.Context, creatorID string, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %s", ErrValidationFailed, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	result := &ImportResult{}
	questions := make([]*models.Question, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		question, err := parseQuestionRow(row, creatorID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", i+1, err))
			continue
		}
		if err := s.validator.Validate(questionToCreateRequest(question)); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", i+1, err))
			continue
		}
		questions = append(questions, question)
	}

	if len(questions) > 0 {
		if err := s.repo.Question().CreateBatch(ctx, s.db, questions); err != nil {
			return nil, fmt.Errorf("failed to import questions: %w", err)
		}
	}
	result.Imported = len(questions)

	s.logger.Info("Question import finished",
		"imported", result.Imported,
		"failed", result.Failed,
		"created_by", creatorID)

	return result, nil
}

// ExportCodes writes a season pass code batch as an xlsx workbook, one code
// per row with its redemption state.
func (s *importExportService) ExportCodes(ctx context.Context, batchID string) ([]byte, error) {
	codes, _, err := s.repo.Code().List(ctx, s.db, repositories.CodeFilters{BatchID: &batchID})
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	if len(codes) == 0 {
		return nil, ErrCodeNotFound
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	headers := []string{"Code", "Redeemed", "Redeemed By", "Redeemed At", "Expires At", "Notes"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, code := range codes {
		values := []interface{}{code.Code, code.Redeemed, deref(code.RedeemedBy), formatTimePtr(code.RedeemedAt), formatTimePtr(code.ExpiresAt), code.Notes}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func parseQuestionRow(row []string, creatorID string) (*models.Question, error) {
	if len(row) < importColumns-1 {
		return nil, fmt.Errorf("expected at least %d columns, got %d", importColumns-1, len(row))
	}

	category := models.QuestionCategory(strings.ToLower(strings.TrimSpace(row[0])))
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q", row[0])
	}
	difficulty := models.DifficultyLevel(strings.ToUpper(strings.TrimSpace(row[1])))
	if !difficulty.Valid() {
		return nil, fmt.Errorf("unknown difficulty %q", row[1])
	}

	text := strings.TrimSpace(row[2])
	if text == "" {
		return nil, fmt.Errorf("question text is empty")
	}

	ids := splitCell(row[3])
	texts := splitCell(row[4])
	if len(ids) != len(texts) || len(ids) < 2 {
		return nil, fmt.Errorf("option ids and texts must align and contain at least two entries")
	}

	correct := strings.TrimSpace(row[5])
	options := make([]models.QuestionOption, 0, len(ids))
	found := false
	for i := range ids {
		options = append(options, models.QuestionOption{ID: ids[i], Text: texts[i]})
		if ids[i] == correct {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("correct option %q not among option ids", correct)
	}

	optionsBlob, err := marshalJSON(options)
	if err != nil {
		return nil, err
	}

	question := &models.Question{
		Category:        category,
		Difficulty:      difficulty,
		Text:            text,
		Options:         optionsBlob,
		CorrectOptionID: correct,
		CreatedBy:       creatorID,
	}
	if len(row) >= importColumns {
		question.Explanation = strings.TrimSpace(row[6])
	}
	return question, nil
}

func questionToCreateRequest(q *models.Question) *QuestionCreateRequest {
	options, _ := q.DecodedOptions()
	reqOptions := make([]validator.QuestionOptionRequest, 0, len(options))
	for _, opt := range options {
		reqOptions = append(reqOptions, validator.QuestionOptionRequest{ID: opt.ID, Text: opt.Text})
	}
	return &QuestionCreateRequest{
		Category:        q.Category,
		Difficulty:      q.Difficulty,
		Text:            q.Text,
		Options:         reqOptions,
		CorrectOptionID: q.CorrectOptionID,
		Explanation:     q.Explanation,
	}
}

func splitCell(cell string) []string {
	parts := strings.Split(cell, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
