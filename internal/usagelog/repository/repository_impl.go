package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/usagelog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.UsageLogEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_logs (id, student_id, feature, reference_id, tokens_input, tokens_output,
		                         cost_usd, latency_ms, success, error_code, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.StudentID,
		entry.Feature,
		entry.ReferenceID,
		entry.TokensInput,
		entry.TokensOutput,
		entry.CostUSD,
		entry.LatencyMS,
		entry.Success,
		entry.ErrorCode,
		entry.ErrorMessage,
		entry.CreatedAt,
	).Error
}

func (r *repo) MonthToDateCost(ctx context.Context, db *gorm.DB, studentID snowflake.ID, since time.Time) (float64, error) {
	var total float64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_logs
		 WHERE student_id = ? AND created_at >= ?`,
		studentID,
		since,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
