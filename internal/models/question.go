package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type QuestionCategory string

const (
	CategoryPharmacology QuestionCategory = "pharmacology"
	CategoryAnatomy      QuestionCategory = "anatomy"
	CategoryPhysiology   QuestionCategory = "physiology"
	CategoryPathology    QuestionCategory = "pathology"
	CategoryClinical     QuestionCategory = "clinical"
)

// AllCategories lists every valid question category. "mixed" exam filters
// expand to this set.
var AllCategories = []QuestionCategory{
	CategoryPharmacology,
	CategoryAnatomy,
	CategoryPhysiology,
	CategoryPathology,
	CategoryClinical,
}

func (c QuestionCategory) Valid() bool {
	for _, v := range AllCategories {
		if c == v {
			return true
		}
	}
	return false
}

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "EASY"
	DifficultyMedium DifficultyLevel = "MEDIUM"
	DifficultyHard   DifficultyLevel = "HARD"
)

func (d DifficultyLevel) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// QuestionOption is one answer choice. Options are stored on the question
// as an ordered JSONB array.
type QuestionOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is immutable after creation except for explanation backfill.
type Question struct {
	ID         uint             `json:"id" gorm:"primaryKey"`
	Category   QuestionCategory `json:"category" gorm:"not null;index;size:30"`
	Difficulty DifficultyLevel  `json:"difficulty" gorm:"not null;index;size:10"`
	Text       string           `json:"text" gorm:"type:text;not null"`

	// Ordered option list and the id of the correct one.
	Options         datatypes.JSON `json:"options" gorm:"type:jsonb;not null"` // []QuestionOption
	CorrectOptionID string         `json:"correct_option_id" gorm:"not null;size:10"`

	Explanation   string  `json:"explanation" gorm:"type:text"`
	AIExplanation *string `json:"ai_explanation" gorm:"type:text"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// DecodedOptions unmarshals the option list from the JSONB column.
func (q *Question) DecodedOptions() ([]QuestionOption, error) {
	if len(q.Options) == 0 {
		return nil, nil
	}
	var options []QuestionOption
	if err := json.Unmarshal(q.Options, &options); err != nil {
		return nil, err
	}
	return options, nil
}

// HasOption reports whether the given option id exists on this question.
func (q *Question) HasOption(optionID string) bool {
	options, err := q.DecodedOptions()
	if err != nil {
		return false
	}
	for _, opt := range options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}
