package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
)

// LogRequest describes one grading attempt to be recorded.
type LogRequest struct {
	StudentID    snowflake.ID
	Feature      quotadomain.Feature
	ReferenceID  snowflake.ID
	TokensInput  int64
	TokensOutput int64
	CostUSD      float64
	LatencyMS    int64
	Success      bool
	ErrorCode    string
	ErrorMessage string
}

// Accountant computes LLM spend and keeps the immutable usage ledger.
type Accountant interface {
	// CalculateCost prices a token count. Deterministic and linear.
	CalculateCost(tokensIn, tokensOut int64) float64

	// LogUsage appends one ledger entry and evaluates the student's
	// month-to-date spend against the alert threshold. The returned flag is
	// advisory; persistence failures are swallowed after logging because the
	// audit trail must never unwind an already-persisted grading result.
	LogUsage(ctx context.Context, req LogRequest) (alert bool)
}
