package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureRow(ctx context.Context, db *gorm.DB, quota *domain.UsageQuota) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "month"}, {Name: "feature"}},
			DoNothing: true,
		}).
		Create(quota).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, studentID snowflake.ID, month string, feature domain.Feature) (*domain.UsageQuota, error) {
	var quota domain.UsageQuota
	err := db.WithContext(ctx).Raw(
		`SELECT id, student_id, month, feature, used_count, limit_count, reset_date, created_at, updated_at
		 FROM usage_quotas WHERE student_id = ? AND month = ? AND feature = ?`,
		studentID,
		month,
		feature,
	).Scan(&quota).Error
	if err != nil {
		return nil, err
	}
	if quota.ID == 0 {
		return nil, nil
	}
	return &quota, nil
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, studentID snowflake.ID, month string, feature domain.Feature) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE usage_quotas
		 SET used_count = used_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE student_id = ? AND month = ? AND feature = ? AND used_count < limit_count`,
		studentID,
		month,
		feature,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SyncUsed(ctx context.Context, db *gorm.DB, studentID snowflake.ID, month string, feature domain.Feature, used int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE usage_quotas
		 SET used_count = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE student_id = ? AND month = ? AND feature = ? AND used_count < ?`,
		used,
		studentID,
		month,
		feature,
		used,
	).Error
}
