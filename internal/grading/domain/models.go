// Package domain contains the submission lifecycle and feedback models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Submission status values. A submission only ever moves forward except
// for the recovery path, which may put a stuck processing row back in the
// queue.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TerminalStatus reports whether a status will never change again.
func TerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Submission is one graded answer attempt.
type Submission struct {
	ID                   snowflake.ID  `gorm:"primaryKey"`
	StudentID            snowflake.ID  `gorm:"not null;uniqueIndex:uq_submissions_attempt,priority:1"`
	QuestionID           snowflake.ID  `gorm:"not null;uniqueIndex:uq_submissions_attempt,priority:2"`
	AnswerText           string        `gorm:"type:text;not null"`
	AttemptNumber        int           `gorm:"not null;uniqueIndex:uq_submissions_attempt,priority:3"`
	PreviousSubmissionID *snowflake.ID `gorm:"index"`
	Status               string        `gorm:"type:text;not null;default:'pending';index:idx_submissions_status_started,priority:1"`
	FailureReason        *string       `gorm:"type:text"`
	StartedAt            *time.Time    `gorm:"index:idx_submissions_status_started,priority:2"`
	CompletedAt          *time.Time
	CreatedAt            time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Submission) TableName() string { return "submissions" }

// Feedback is the graded result for one submission. At most one row per
// submission ever exists.
type Feedback struct {
	ID               snowflake.ID   `gorm:"primaryKey"`
	SubmissionID     snowflake.ID   `gorm:"not null;uniqueIndex"`
	Score            int            `gorm:"not null"`
	MaxScore         int            `gorm:"not null;default:10"`
	Strengths        datatypes.JSON `gorm:"type:jsonb;not null"`
	Improvements     datatypes.JSON `gorm:"type:jsonb;not null"`
	DetailedFeedback string         `gorm:"type:text;not null"`
	OffTopic         bool           `gorm:"not null;default:false"`
	TokensInput      int64          `gorm:"not null;default:0"`
	TokensOutput     int64          `gorm:"not null;default:0"`
	CostUSD          float64        `gorm:"not null;default:0"`
	CreatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Feedback) TableName() string { return "feedbacks" }
