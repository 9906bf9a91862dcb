package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists submissions and feedback. Status transitions use
// conditional updates so concurrent workers never double-claim a row.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Submission) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Submission, error)
	MaxAttempt(ctx context.Context, db *gorm.DB, studentID, questionID snowflake.ID) (int, error)

	// ListPendingIDs returns up to limit pending submission ids, oldest first.
	ListPendingIDs(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error)

	// ClaimPending moves one pending submission to processing. Returns false
	// when another worker got there first.
	ClaimPending(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error

	// RequeueStuck puts processing submissions older than cutoff back to
	// pending and returns how many rows moved.
	RequeueStuck(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)

	InsertFeedback(ctx context.Context, db *gorm.DB, fb *Feedback) error
	FindFeedback(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) (*Feedback, error)
}
