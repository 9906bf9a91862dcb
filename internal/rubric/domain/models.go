// Package domain contains the grading rubric read model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Rubric holds everything the grader needs to evaluate answers to one question:
// the question itself, the evaluation criteria and two calibration exemplars.
type Rubric struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	QuestionID      snowflake.ID      `gorm:"not null;uniqueIndex"`
	QuestionText    string            `gorm:"type:text;not null"`
	Criteria        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	ExcellentAnswer string            `gorm:"type:text;not null"`
	PoorAnswer      string            `gorm:"type:text;not null"`
	MaxScore        int               `gorm:"not null;default:10"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Rubric) TableName() string { return "rubrics" }

// Service resolves rubrics by question.
type Service interface {
	GetByQuestion(ctx context.Context, questionID snowflake.ID) (*Rubric, error)
}

// Repository persists rubrics.
type Repository interface {
	FindByQuestion(ctx context.Context, db *gorm.DB, questionID snowflake.ID) (*Rubric, error)
}

var ErrNotFound = errors.New("rubric_not_found")
