package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/config"
	"github.com/mentora-app/mentora/internal/grading/domain"
	gradingrepo "github.com/mentora-app/mentora/internal/grading/repository"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeQuota counts increments and denies once the limit is reached.
type fakeQuota struct {
	limit int
	used  int
	calls int
}

func (f *fakeQuota) GetUsage(ctx context.Context, req quotadomain.GetUsageRequest) (quotadomain.Usage, error) {
	return quotadomain.Usage{Used: f.used, Limit: f.limit, Remaining: f.limit - f.used}, nil
}

func (f *fakeQuota) CheckAndIncrement(ctx context.Context, studentID snowflake.ID, feature quotadomain.Feature) (quotadomain.Usage, error) {
	f.calls++
	if f.used >= f.limit {
		return quotadomain.Usage{}, &quotadomain.ExceededError{Feature: feature, Used: f.used, Limit: f.limit}
	}
	f.used++
	return quotadomain.Usage{Used: f.used, Limit: f.limit, Remaining: f.limit - f.used}, nil
}

func gradingTestConfig() config.Config {
	return config.Config{
		Grading: config.GradingConfig{
			AnswerMinLen:               20,
			AnswerMaxLen:               5000,
			MaxAttempts:                3,
			MinDetailedFeedbackLen:     50,
			EstimatedCompletionSeconds: 30,
		},
	}
}

func newSubmissionService(t *testing.T, quota *fakeQuota) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Submission{}, &domain.Feedback{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		Config: gradingTestConfig(),
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, time.September, 5, 9, 0, 0, 0, time.UTC)),
		Repo:   gradingrepo.Provide(),
		Quota:  quota,
	})
	return svc, db
}

func validAnswer() string {
	return strings.Repeat("photosynthesis converts light ", 4)
}

func TestCreateSubmission(t *testing.T) {
	quota := &fakeQuota{limit: 10}
	svc, db := newSubmissionService(t, quota)
	ctx := context.Background()

	resp, err := svc.Create(ctx, domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(20),
		AnswerText: validAnswer(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.Equal(t, 1, resp.AttemptNumber)
	assert.Equal(t, 30, resp.EstimatedCompletionSeconds)
	assert.Equal(t, 1, resp.Quota.Used)
	assert.Equal(t, 1, quota.calls)

	var sub domain.Submission
	require.NoError(t, db.First(&sub, "id = ?", resp.SubmissionID).Error)
	assert.Equal(t, domain.StatusPending, sub.Status)
	assert.Nil(t, sub.PreviousSubmissionID)
}

func TestCreateSubmissionAnswerLength(t *testing.T) {
	svc, _ := newSubmissionService(t, &fakeQuota{limit: 10})
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(20),
		AnswerText: "too short",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAnswerLength)

	_, err = svc.Create(ctx, domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(20),
		AnswerText: strings.Repeat("a", 5001),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAnswerLength)
}

func TestCreateSubmissionValidationSkipsQuota(t *testing.T) {
	quota := &fakeQuota{limit: 10}
	svc, _ := newSubmissionService(t, quota)

	_, err := svc.Create(context.Background(), domain.CreateSubmissionRequest{
		StudentID:  0,
		QuestionID: snowflake.ID(20),
		AnswerText: validAnswer(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStudent)
	assert.Zero(t, quota.calls)
}

func TestResubmissionLineage(t *testing.T) {
	quota := &fakeQuota{limit: 10}
	svc, db := newSubmissionService(t, quota)
	ctx := context.Background()

	first, err := svc.Create(ctx, domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(20),
		AnswerText: validAnswer(),
	})
	require.NoError(t, err)

	second, err := svc.Create(ctx, domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(20),
		AnswerText: validAnswer(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)

	var sub domain.Submission
	require.NoError(t, db.First(&sub, "id = ?", second.SubmissionID).Error)
	require.NotNil(t, sub.PreviousSubmissionID)
	assert.Equal(t, first.SubmissionID, *sub.PreviousSubmissionID)
}

func TestAttemptLimit(t *testing.T) {
	quota := &fakeQuota{limit: 10}
	svc, _ := newSubmissionService(t, quota)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, domain.CreateSubmissionRequest{
			StudentID:  snowflake.ID(10),
			QuestionID: snowflake.ID(20),
			AnswerText: validAnswer(),
		})
		require.NoError(t, err)
	}

	_, err := svc.Create(ctx, domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(20),
		AnswerText: validAnswer(),
	})
	assert.ErrorIs(t, err, domain.ErrAttemptLimitReached)
	// The fourth attempt was rejected before quota was touched.
	assert.Equal(t, 3, quota.calls)

	// A different question starts its own attempt count.
	resp, err := svc.Create(ctx, domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(21),
		AnswerText: validAnswer(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.AttemptNumber)
}

func TestCreateSubmissionQuotaExceeded(t *testing.T) {
	svc, db := newSubmissionService(t, &fakeQuota{limit: 0})

	_, err := svc.Create(context.Background(), domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(20),
		AnswerText: validAnswer(),
	})
	var exceeded *quotadomain.ExceededError
	require.ErrorAs(t, err, &exceeded)

	var count int64
	require.NoError(t, db.Model(&domain.Submission{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetFeedbackStates(t *testing.T) {
	svc, db := newSubmissionService(t, &fakeQuota{limit: 10})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateSubmissionRequest{
		StudentID:  snowflake.ID(10),
		QuestionID: snowflake.ID(20),
		AnswerText: validAnswer(),
	})
	require.NoError(t, err)

	resp, err := svc.GetFeedback(ctx, snowflake.ID(10), created.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.Nil(t, resp.Feedback)

	// Another student cannot see it.
	_, err = svc.GetFeedback(ctx, snowflake.ID(11), created.SubmissionID)
	assert.ErrorIs(t, err, domain.ErrSubmissionNotFound)

	// Unknown id.
	_, err = svc.GetFeedback(ctx, snowflake.ID(10), snowflake.ID(987654))
	assert.ErrorIs(t, err, domain.ErrSubmissionNotFound)

	// Completed with a feedback row returns the full payload.
	now := time.Now().UTC()
	require.NoError(t, db.Exec(`UPDATE submissions SET status = ?, started_at = ? WHERE id = ?`, domain.StatusProcessing, now, created.SubmissionID).Error)
	require.NoError(t, db.Create(&domain.Feedback{
		ID:               snowflake.ID(555),
		SubmissionID:     created.SubmissionID,
		Score:            8,
		MaxScore:         10,
		Strengths:        []byte(`["clear structure"]`),
		Improvements:     []byte(`["add examples"]`),
		DetailedFeedback: strings.Repeat("solid answer ", 5),
		TokensInput:      900,
		TokensOutput:     200,
		CostUSD:          0.0075,
		CreatedAt:        now,
	}).Error)
	require.NoError(t, db.Exec(`UPDATE submissions SET status = ?, completed_at = ? WHERE id = ?`, domain.StatusCompleted, now, created.SubmissionID).Error)

	resp, err = svc.GetFeedback(ctx, snowflake.ID(10), created.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, resp.Status)
	require.NotNil(t, resp.Feedback)
	assert.Equal(t, 8, resp.Feedback.Score)
	assert.Equal(t, []string{"clear structure"}, resp.Feedback.Strengths)
	assert.Equal(t, []string{"add examples"}, resp.Feedback.Improvements)
	assert.Equal(t, int64(1100), resp.Feedback.TokensUsed.Total)
	assert.InDelta(t, 0.0075, resp.Feedback.CostUSD, 1e-9)
}
