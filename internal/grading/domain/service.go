package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
)

// CreateSubmissionRequest is the intake payload for a new answer.
type CreateSubmissionRequest struct {
	StudentID  snowflake.ID
	QuestionID snowflake.ID
	AnswerText string
}

// CreateSubmissionResponse acknowledges an accepted submission.
type CreateSubmissionResponse struct {
	SubmissionID               snowflake.ID      `json:"submission_id"`
	Status                     string            `json:"status"`
	AttemptNumber              int               `json:"attempt_number"`
	EstimatedCompletionSeconds int               `json:"estimated_completion_seconds"`
	FeedbackPollPath           string            `json:"feedback_poll_path,omitempty"`
	Quota                      quotadomain.Usage `json:"quota"`
}

// FeedbackResponse is the poll answer for a submission's grading state.
// Feedback is set only when Status is completed.
type FeedbackResponse struct {
	SubmissionID         snowflake.ID  `json:"submission_id"`
	Status               string        `json:"status"`
	AttemptNumber        int           `json:"attempt_number"`
	PreviousSubmissionID *snowflake.ID `json:"previous_submission_id,omitempty"`
	FailureReason        *string       `json:"failure_reason,omitempty"`
	Feedback             *FeedbackView `json:"feedback,omitempty"`
}

// FeedbackView is the client-facing shape of a graded result.
type FeedbackView struct {
	Score            int        `json:"score"`
	MaxScore         int        `json:"max_score"`
	Strengths        []string   `json:"strengths"`
	Improvements     []string   `json:"improvements"`
	DetailedFeedback string     `json:"detailed_feedback"`
	OffTopic         bool       `json:"off_topic"`
	TokensUsed       TokensUsed `json:"tokens_used"`
	CostUSD          float64    `json:"cost_usd"`
}

// TokensUsed breaks down the provider spend behind a graded result.
type TokensUsed struct {
	In    int64 `json:"in"`
	Out   int64 `json:"out"`
	Total int64 `json:"total"`
}

// Service accepts submissions and serves grading results.
type Service interface {
	Create(ctx context.Context, req CreateSubmissionRequest) (*CreateSubmissionResponse, error)
	GetFeedback(ctx context.Context, studentID, submissionID snowflake.ID) (*FeedbackResponse, error)
}

var (
	ErrInvalidStudent      = errors.New("invalid_student")
	ErrInvalidQuestion     = errors.New("invalid_question")
	ErrInvalidAnswerLength = errors.New("invalid_answer_length")
	ErrAttemptLimitReached = errors.New("attempt_limit_reached")
	ErrSubmissionNotFound  = errors.New("submission_not_found")
)

// SchemaError reports a provider response that does not satisfy the grade
// result contract. Never retried: the same prompt yields the same shape.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema_validation: %s", e.Reason)
}

// Grader runs the full grading pipeline for one claimed submission.
type Grader interface {
	Grade(ctx context.Context, submissionID snowflake.ID) error
}
