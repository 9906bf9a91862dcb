package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists the durable quota rows.
type Repository interface {
	// EnsureRow inserts the month's row if it does not exist yet.
	EnsureRow(ctx context.Context, db *gorm.DB, quota *UsageQuota) error

	Find(ctx context.Context, db *gorm.DB, studentID snowflake.ID, month string, feature Feature) (*UsageQuota, error)

	// Increment adds one to used_count only while it is below the limit.
	// Returns false when the row was already at its limit.
	Increment(ctx context.Context, db *gorm.DB, studentID snowflake.ID, month string, feature Feature) (bool, error)

	// SyncUsed raises used_count to at least the given value. Used to write
	// accelerator increments through to the durable row.
	SyncUsed(ctx context.Context, db *gorm.DB, studentID snowflake.ID, month string, feature Feature, used int) error
}
