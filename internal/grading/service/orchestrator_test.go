package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/grading/domain"
	gradingrepo "github.com/mentora-app/mentora/internal/grading/repository"
	"github.com/mentora-app/mentora/internal/llm"
	rubricdomain "github.com/mentora-app/mentora/internal/rubric/domain"
	usagedomain "github.com/mentora-app/mentora/internal/usagelog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeRubrics struct {
	rubric *rubricdomain.Rubric
}

func (f *fakeRubrics) GetByQuestion(ctx context.Context, questionID snowflake.ID) (*rubricdomain.Rubric, error) {
	if f.rubric == nil || f.rubric.QuestionID != questionID {
		return nil, rubricdomain.ErrNotFound
	}
	return f.rubric, nil
}

type fakeLLM struct {
	calls     int
	responses []llm.Response
	errs      []error
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], f.errs[idx]
}

type fakeAccountant struct {
	logged []usagedomain.LogRequest
}

func (f *fakeAccountant) CalculateCost(tokensIn, tokensOut int64) float64 {
	return float64(tokensIn)*0.000005 + float64(tokensOut)*0.000015
}

func (f *fakeAccountant) LogUsage(ctx context.Context, req usagedomain.LogRequest) bool {
	f.logged = append(f.logged, req)
	return false
}

func testRubric() *rubricdomain.Rubric {
	return &rubricdomain.Rubric{
		ID:           snowflake.ID(1),
		QuestionID:   snowflake.ID(20),
		QuestionText: "Explain how photosynthesis converts sunlight into chemical energy in plants.",
		Criteria: datatypes.JSONMap{
			"accuracy": "scientific accuracy of the explanation",
			"depth":    "covers light and dark reactions",
		},
		ExcellentAnswer: "Photosynthesis uses chlorophyll to capture light...",
		PoorAnswer:      "Plants eat sunlight.",
		MaxScore:        10,
	}
}

func goodGradeJSON() string {
	return `{
		"score": 8,
		"strengths": ["accurate description of light reactions", "clear structure"],
		"improvements": ["mention the Calvin cycle explicitly"],
		"detailed_feedback": "Your explanation of how chloroplasts capture light energy is accurate and well organized overall."
	}`
}

func newOrchestrator(t *testing.T, client llm.Client, acc *fakeAccountant) (domain.Grader, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Submission{}, &domain.Feedback{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	grader := NewOrchestrator(OrchestratorParams{
		Config:     gradingTestConfig(),
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, time.September, 5, 9, 0, 0, 0, time.UTC)),
		Repo:       gradingrepo.Provide(),
		Rubrics:    &fakeRubrics{rubric: testRubric()},
		Client:     client,
		Accountant: acc,
	})
	return grader, db, node
}

func seedProcessing(t *testing.T, db *gorm.DB, node *snowflake.Node, answer string) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	sub := &domain.Submission{
		ID:            node.Generate(),
		StudentID:     snowflake.ID(10),
		QuestionID:    snowflake.ID(20),
		AnswerText:    answer,
		AttemptNumber: 1,
		Status:        domain.StatusProcessing,
		StartedAt:     &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.Create(sub).Error)
	return sub.ID
}

func onTopicAnswer() string {
	return "Photosynthesis converts sunlight into chemical energy: chlorophyll in plants absorbs light and stores the energy as glucose."
}

func TestGradeCompletes(t *testing.T) {
	acc := &fakeAccountant{}
	client := &fakeLLM{
		responses: []llm.Response{{Content: goodGradeJSON(), TokensInput: 900, TokensOutput: 200, Latency: 750 * time.Millisecond}},
		errs:      []error{nil},
	}
	grader, db, node := newOrchestrator(t, client, acc)
	id := seedProcessing(t, db, node, onTopicAnswer())

	require.NoError(t, grader.Grade(context.Background(), id))

	var sub domain.Submission
	require.NoError(t, db.First(&sub, "id = ?", id).Error)
	assert.Equal(t, domain.StatusCompleted, sub.Status)
	require.NotNil(t, sub.CompletedAt)

	var fb domain.Feedback
	require.NoError(t, db.First(&fb, "submission_id = ?", id).Error)
	assert.Equal(t, 8, fb.Score)
	assert.False(t, fb.OffTopic)
	assert.Equal(t, int64(900), fb.TokensInput)
	assert.Equal(t, int64(200), fb.TokensOutput)
	assert.InDelta(t, 900*0.000005+200*0.000015, fb.CostUSD, 1e-9)

	require.Len(t, acc.logged, 1)
	entry := acc.logged[0]
	assert.True(t, entry.Success)
	assert.Equal(t, int64(900), entry.TokensInput)
	assert.Equal(t, int64(200), entry.TokensOutput)
	assert.InDelta(t, 900*0.000005+200*0.000015, entry.CostUSD, 1e-9)
}

func TestGradeOffTopicSkipsProvider(t *testing.T) {
	acc := &fakeAccountant{}
	client := &fakeLLM{responses: []llm.Response{{}}, errs: []error{nil}}
	grader, db, node := newOrchestrator(t, client, acc)
	id := seedProcessing(t, db, node, "My favorite football team won the championship final last weekend and it was a great match.")

	require.NoError(t, grader.Grade(context.Background(), id))

	// The provider was never called.
	assert.Zero(t, client.calls)

	var fb domain.Feedback
	require.NoError(t, db.First(&fb, "submission_id = ?", id).Error)
	assert.True(t, fb.OffTopic)
	assert.Zero(t, fb.Score)
	assert.Zero(t, fb.TokensInput)
	assert.Zero(t, fb.CostUSD)

	var sub domain.Submission
	require.NoError(t, db.First(&sub, "id = ?", id).Error)
	assert.Equal(t, domain.StatusCompleted, sub.Status)

	// Exactly one ledger entry, with no token spend.
	require.Len(t, acc.logged, 1)
	assert.True(t, acc.logged[0].Success)
	assert.Zero(t, acc.logged[0].TokensInput)
	assert.Zero(t, acc.logged[0].CostUSD)
}

func TestGradeProviderFailure(t *testing.T) {
	acc := &fakeAccountant{}
	client := &fakeLLM{
		responses: []llm.Response{{}},
		errs:      []error{&llm.Error{Kind: llm.KindTimeout, Message: "deadline exceeded"}},
	}
	grader, db, node := newOrchestrator(t, client, acc)
	id := seedProcessing(t, db, node, onTopicAnswer())

	require.NoError(t, grader.Grade(context.Background(), id))

	var sub domain.Submission
	require.NoError(t, db.First(&sub, "id = ?", id).Error)
	assert.Equal(t, domain.StatusFailed, sub.Status)
	require.NotNil(t, sub.FailureReason)

	require.Len(t, acc.logged, 1)
	entry := acc.logged[0]
	assert.False(t, entry.Success)
	assert.Equal(t, "llm_timeout", entry.ErrorCode)
	assert.Zero(t, entry.TokensInput)
	assert.Zero(t, entry.CostUSD)
}

func TestGradeSchemaViolationFails(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "I would grade this an 8 out of 10."},
		{"missing strengths", `{"score": 8, "improvements": ["x"], "detailed_feedback": "` + onTopicAnswer() + `"}`},
		{"score out of range", `{"score": 11, "strengths": ["a"], "improvements": ["b"], "detailed_feedback": "` + onTopicAnswer() + `"}`},
		{"feedback too short", `{"score": 8, "strengths": ["a"], "improvements": ["b"], "detailed_feedback": "ok"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			acc := &fakeAccountant{}
			client := &fakeLLM{
				responses: []llm.Response{{Content: tc.content, TokensInput: 500, TokensOutput: 100}},
				errs:      []error{nil},
			}
			grader, db, node := newOrchestrator(t, client, acc)
			id := seedProcessing(t, db, node, onTopicAnswer())

			require.NoError(t, grader.Grade(context.Background(), id))

			var sub domain.Submission
			require.NoError(t, db.First(&sub, "id = ?", id).Error)
			assert.Equal(t, domain.StatusFailed, sub.Status)

			require.Len(t, acc.logged, 1)
			entry := acc.logged[0]
			assert.False(t, entry.Success)
			assert.Equal(t, "schema_validation", entry.ErrorCode)
			// Tokens were spent even though the result was unusable.
			assert.Equal(t, int64(500), entry.TokensInput)
		})
	}
}

func TestGradeRubricMissing(t *testing.T) {
	acc := &fakeAccountant{}
	client := &fakeLLM{responses: []llm.Response{{}}, errs: []error{nil}}
	grader, db, node := newOrchestrator(t, client, acc)

	now := time.Now().UTC()
	sub := &domain.Submission{
		ID:            node.Generate(),
		StudentID:     snowflake.ID(10),
		QuestionID:    snowflake.ID(999),
		AnswerText:    onTopicAnswer(),
		AttemptNumber: 1,
		Status:        domain.StatusProcessing,
		StartedAt:     &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.Create(sub).Error)

	require.NoError(t, grader.Grade(context.Background(), sub.ID))

	var got domain.Submission
	require.NoError(t, db.First(&got, "id = ?", sub.ID).Error)
	assert.Equal(t, domain.StatusFailed, got.Status)

	require.Len(t, acc.logged, 1)
	assert.Equal(t, "rubric_not_found", acc.logged[0].ErrorCode)
}

func TestGradeIgnoresNonProcessing(t *testing.T) {
	acc := &fakeAccountant{}
	client := &fakeLLM{responses: []llm.Response{{}}, errs: []error{nil}}
	grader, db, node := newOrchestrator(t, client, acc)

	now := time.Now().UTC()
	sub := &domain.Submission{
		ID:            node.Generate(),
		StudentID:     snowflake.ID(10),
		QuestionID:    snowflake.ID(20),
		AnswerText:    onTopicAnswer(),
		AttemptNumber: 1,
		Status:        domain.StatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.Create(sub).Error)

	require.NoError(t, grader.Grade(context.Background(), sub.ID))
	assert.Zero(t, client.calls)
	assert.Empty(t, acc.logged)
}
