package models

import (
	"time"

	"gorm.io/datatypes"
)

type ExamStatus string

const (
	ExamInProgress ExamStatus = "IN_PROGRESS"
	ExamCompleted  ExamStatus = "COMPLETED"
	ExamAbandoned  ExamStatus = "ABANDONED"
)

// Terminal reports whether no further mutation of the session is permitted.
func (s ExamStatus) Terminal() bool {
	return s == ExamCompleted || s == ExamAbandoned
}

// MockExamSession is one timed attempt at a fixed set of questions.
//
// QuestionIDs is fixed at creation; Answers and Flags may only reference ids
// within it. Once the status is terminal the row is immutable.
type MockExamSession struct {
	ID     uint       `json:"id" gorm:"primaryKey"`
	UserID string     `json:"user_id" gorm:"not null;index;size:36"`
	Status ExamStatus `json:"status" gorm:"default:IN_PROGRESS;index;size:15"`

	TotalQuestions   int  `json:"total_questions" gorm:"not null"`
	TimeLimitMinutes int  `json:"time_limit_minutes" gorm:"not null"`
	PassingScore     int  `json:"passing_score" gorm:"not null"`
	Mixed            bool `json:"mixed" gorm:"default:false"`

	// Filters recorded for review; Categories is empty for a mixed exam.
	Categories datatypes.JSON   `json:"categories" gorm:"type:jsonb"` // []QuestionCategory
	Difficulty *DifficultyLevel `json:"difficulty" gorm:"size:10"`

	// Session state blobs.
	QuestionIDs datatypes.JSON `json:"question_ids" gorm:"type:jsonb;not null"` // []uint, ordered
	Answers     datatypes.JSON `json:"answers" gorm:"type:jsonb"`               // map[questionID]optionID
	Flags       datatypes.JSON `json:"flags" gorm:"type:jsonb"`                 // []uint

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	AbandonedAt *time.Time `json:"abandoned_at"`
	Score       *float64   `json:"score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

func (MockExamSession) TableName() string {
	return "mock_exam_sessions"
}
