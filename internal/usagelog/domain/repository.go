package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists usage log rows.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *UsageLogEntry) error

	// MonthToDateCost sums successful spend for a student since the given instant.
	MonthToDateCost(ctx context.Context, db *gorm.DB, studentID snowflake.ID, since time.Time) (float64, error)
}
