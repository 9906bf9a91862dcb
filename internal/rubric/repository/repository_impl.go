package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/rubric/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByQuestion(ctx context.Context, db *gorm.DB, questionID snowflake.ID) (*domain.Rubric, error) {
	var rubric domain.Rubric
	err := db.WithContext(ctx).Raw(
		`SELECT id, question_id, question_text, criteria, excellent_answer, poor_answer, max_score, created_at, updated_at
		 FROM rubrics WHERE question_id = ?`,
		questionID,
	).Scan(&rubric).Error
	if err != nil {
		return nil, err
	}
	if rubric.ID == 0 {
		return nil, nil
	}
	return &rubric, nil
}
