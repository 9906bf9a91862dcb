// Package domain contains persistence models and contracts for monthly usage quotas.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Feature identifies a quota-gated premium capability.
type Feature string

const (
	FeatureAnswerGrading Feature = "answer_grading"
	FeatureStudyPath     Feature = "study_path"
)

// Known reports whether the feature code is one we meter.
func (f Feature) Known() bool {
	switch f {
	case FeatureAnswerGrading, FeatureStudyPath:
		return true
	default:
		return false
	}
}

// UsageQuota is the durable source-of-truth row for one (student, month, feature).
type UsageQuota struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	StudentID  snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_quotas_student_month_feature,priority:1"`
	Month      string       `gorm:"type:text;not null;uniqueIndex:ux_usage_quotas_student_month_feature,priority:2"`
	Feature    Feature      `gorm:"type:text;not null;uniqueIndex:ux_usage_quotas_student_month_feature,priority:3"`
	UsedCount  int          `gorm:"not null;default:0"`
	LimitCount int          `gorm:"not null"`
	ResetDate  time.Time    `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageQuota) TableName() string { return "usage_quotas" }

// MonthKey formats the quota period for a point in time, e.g. "2026-09".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NextReset returns the first day of the month following t, at midnight UTC.
func NextReset(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
