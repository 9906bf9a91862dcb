package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Usage sources, reported so callers can see which store answered.
const (
	SourceAccelerator = "accelerator"
	SourceDatabase    = "database"
)

// Usage is a point-in-time view of one quota counter.
type Usage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
	Source    string    `json:"source,omitempty"`
}

// GetUsageRequest identifies a quota counter.
type GetUsageRequest struct {
	StudentID snowflake.ID
	Feature   Feature
}

// Service is the quota ledger: it answers usage queries and atomically
// consumes one unit of allowance per accepted request.
type Service interface {
	GetUsage(ctx context.Context, req GetUsageRequest) (Usage, error)

	// CheckAndIncrement consumes one unit for the current month. It fails
	// with *ExceededError when the counter is already at its limit, without
	// incrementing.
	CheckAndIncrement(ctx context.Context, studentID snowflake.ID, feature Feature) (Usage, error)
}

var (
	ErrInvalidStudent = errors.New("invalid_student")
	ErrInvalidFeature = errors.New("invalid_feature")
)

// ExceededError reports an exhausted monthly allowance.
type ExceededError struct {
	Feature  Feature
	Used     int
	Limit    int
	ResetsAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota_exceeded: %s at %d/%d, resets %s", e.Feature, e.Used, e.Limit, e.ResetsAt.Format(time.RFC3339))
}
