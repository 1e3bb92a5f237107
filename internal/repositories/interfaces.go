package repositories

import (
	"time"

	"github.com/prepkit/examprep-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

// QuestionFilters narrows the question pool. Empty Categories with
// Difficulty nil means the whole pool.
type QuestionFilters struct {
	Categories []models.QuestionCategory `json:"categories"`
	Difficulty *models.DifficultyLevel   `json:"difficulty"`
	CreatedBy  *string                   `json:"created_by"`
	Limit      int                       `json:"limit"`
	Offset     int                       `json:"offset"`
	SortBy     string                    `json:"sort_by"`
	SortOrder  string                    `json:"sort_order"`
}

type ExamFilters struct {
	Status    *models.ExamStatus `json:"status"`
	UserID    *string            `json:"user_id"`
	DateFrom  *time.Time         `json:"date_from"`
	DateTo    *time.Time         `json:"date_to"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`
	SortOrder string             `json:"sort_order"`
}

type CodeFilters struct {
	BatchID  *string `json:"batch_id"`
	Redeemed *bool   `json:"redeemed"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
}

type VerificationFilters struct {
	Status *models.VerificationStatus `json:"status"`
	UserID *string                    `json:"user_id"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

type ExamStats struct {
	TotalExams      int                       `json:"total_exams"`
	StatusBreakdown map[models.ExamStatus]int `json:"status_breakdown"`
	AverageScore    float64                   `json:"average_score"`
	PassRate        float64                   `json:"pass_rate"`
}

type CodeBatchStats struct {
	BatchID  string `json:"batch_id"`
	Total    int    `json:"total"`
	Redeemed int    `json:"redeemed"`
}
