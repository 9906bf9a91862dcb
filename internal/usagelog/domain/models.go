// Package domain contains the append-only usage audit trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
)

// UsageLogEntry records one grading attempt, successful or not.
// Rows are immutable once written.
type UsageLogEntry struct {
	ID           snowflake.ID        `gorm:"primaryKey"`
	StudentID    snowflake.ID        `gorm:"not null;index:idx_usage_logs_student_time,priority:1"`
	Feature      quotadomain.Feature `gorm:"type:text;not null"`
	ReferenceID  snowflake.ID        `gorm:"not null;index"`
	TokensInput  int64               `gorm:"not null;default:0"`
	TokensOutput int64               `gorm:"not null;default:0"`
	CostUSD      float64             `gorm:"type:numeric(12,6);not null;default:0"`
	LatencyMS    int64               `gorm:"not null;default:0"`
	Success      bool                `gorm:"not null"`
	ErrorCode    *string             `gorm:"type:text"`
	ErrorMessage *string             `gorm:"type:text"`
	CreatedAt    time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_usage_logs_student_time,priority:2"`
}

// TableName sets the database table name.
func (UsageLogEntry) TableName() string { return "usage_logs" }
