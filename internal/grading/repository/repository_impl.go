package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/grading/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Submission) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Submission, error) {
	var sub domain.Submission
	err := db.WithContext(ctx).Raw(
		`SELECT id, student_id, question_id, answer_text, attempt_number, previous_submission_id,
		        status, failure_reason, started_at, completed_at, created_at, updated_at
		 FROM submissions WHERE id = ?`,
		id,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) MaxAttempt(ctx context.Context, db *gorm.DB, studentID, questionID snowflake.ID) (int, error) {
	var max int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(attempt_number), 0) FROM submissions WHERE student_id = ? AND question_id = ?`,
		studentID,
		questionID,
	).Scan(&max).Error
	return max, err
}

func (r *repo) ListPendingIDs(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM submissions WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		domain.StatusPending,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ClaimPending(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE submissions
		 SET status = ?, started_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusProcessing,
		now,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE submissions
		 SET status = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted,
		now,
		now,
		id,
		domain.StatusProcessing,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE submissions
		 SET status = ?, failure_reason = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		reason,
		now,
		now,
		id,
		domain.StatusProcessing,
	).Error
}

func (r *repo) RequeueStuck(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE submissions
		 SET status = ?, started_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE status = ? AND started_at < ?`,
		domain.StatusPending,
		domain.StatusProcessing,
		cutoff,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) InsertFeedback(ctx context.Context, db *gorm.DB, fb *domain.Feedback) error {
	return db.WithContext(ctx).Create(fb).Error
}

func (r *repo) FindFeedback(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) (*domain.Feedback, error) {
	var fb domain.Feedback
	err := db.WithContext(ctx).Raw(
		`SELECT id, submission_id, score, max_score, strengths, improvements, detailed_feedback, off_topic,
		        tokens_input, tokens_output, cost_usd, created_at
		 FROM feedbacks WHERE submission_id = ?`,
		submissionID,
	).Scan(&fb).Error
	if err != nil {
		return nil, err
	}
	if fb.ID == 0 {
		return nil, nil
	}
	return &fb, nil
}
