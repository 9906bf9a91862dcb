package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/config"
	"github.com/mentora-app/mentora/internal/grading/domain"
	"github.com/mentora-app/mentora/internal/llm"
	obsmetrics "github.com/mentora-app/mentora/internal/observability/metrics"
	"github.com/mentora-app/mentora/internal/offtopic"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
	rubricdomain "github.com/mentora-app/mentora/internal/rubric/domain"
	usagedomain "github.com/mentora-app/mentora/internal/usagelog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	gradeSchemaName = "grade_result"
	maxListItems    = 5
	maxOutputTokens = 1200
)

// gradeSchema is the structured-output contract sent to the provider.
var gradeSchema = json.RawMessage(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["score", "strengths", "improvements", "detailed_feedback"],
	"properties": {
		"score": {"type": "integer", "minimum": 0, "maximum": 10},
		"strengths": {"type": "array", "minItems": 1, "maxItems": 5, "items": {"type": "string"}},
		"improvements": {"type": "array", "minItems": 1, "maxItems": 5, "items": {"type": "string"}},
		"detailed_feedback": {"type": "string"}
	}
}`)

type gradeResult struct {
	Score            *int     `json:"score"`
	Strengths        []string `json:"strengths"`
	Improvements     []string `json:"improvements"`
	DetailedFeedback string   `json:"detailed_feedback"`
}

type OrchestratorParams struct {
	fx.In

	Config     config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Rubrics    rubricdomain.Service
	Client     llm.Client
	Accountant usagedomain.Accountant
}

// Orchestrator grades one claimed submission end to end: rubric lookup,
// off-topic pre-filter, provider call, result validation, persistence and
// exactly one usage ledger entry.
type Orchestrator struct {
	cfg        config.GradingConfig
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	rubrics    rubricdomain.Service
	client     llm.Client
	accountant usagedomain.Accountant
}

func NewOrchestrator(p OrchestratorParams) domain.Grader {
	return &Orchestrator{
		cfg:        p.Config.Grading,
		db:         p.DB,
		log:        p.Log.Named("grading.orchestrator"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		rubrics:    p.Rubrics,
		client:     p.Client,
		accountant: p.Accountant,
	}
}

func (o *Orchestrator) Grade(ctx context.Context, submissionID snowflake.ID) error {
	started := o.clock.Now()

	sub, err := o.repo.FindByID(ctx, o.db, submissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrSubmissionNotFound
	}
	if sub.Status != domain.StatusProcessing {
		// Lost the claim or already finished elsewhere; nothing to do.
		return nil
	}

	outcome, err := o.grade(ctx, sub)
	metrics := obsmetrics.Grading()
	metrics.IncJob(outcome)
	metrics.ObserveJobDuration(outcome, o.clock.Now().Sub(started))
	return err
}

func (o *Orchestrator) grade(ctx context.Context, sub *domain.Submission) (string, error) {
	rubric, err := o.rubrics.GetByQuestion(ctx, sub.QuestionID)
	if err != nil {
		if errors.Is(err, rubricdomain.ErrNotFound) {
			return obsmetrics.JobOutcomeFailed, o.fail(ctx, sub, "rubric_not_found", err.Error())
		}
		return obsmetrics.JobOutcomeFailed, err
	}

	if offtopic.Detect(rubric.QuestionText, sub.AnswerText) {
		if err := o.completeOffTopic(ctx, sub, rubric); err != nil {
			return obsmetrics.JobOutcomeFailed, err
		}
		return obsmetrics.JobOutcomeOffTopic, nil
	}

	resp, err := o.client.Complete(ctx, llm.Request{
		System:     systemPrompt(rubric),
		User:       userPrompt(rubric, sub),
		SchemaName: gradeSchemaName,
		Schema:     gradeSchema,
		MaxTokens:  maxOutputTokens,
	})
	if err != nil {
		return obsmetrics.JobOutcomeFailed, o.fail(ctx, sub, llm.Code(err), err.Error())
	}

	result, err := o.parseGradeResult(resp.Content)
	if err != nil {
		// Schema violations are deterministic for a given response; the
		// tokens were still spent, so the ledger entry carries them.
		failErr := o.failWithUsage(ctx, sub, "schema_validation", err.Error(), &resp)
		return obsmetrics.JobOutcomeFailed, failErr
	}

	cost := o.accountant.CalculateCost(resp.TokensInput, resp.TokensOutput)
	fb := &domain.Feedback{
		ID:               o.genID.Generate(),
		SubmissionID:     sub.ID,
		Score:            *result.Score,
		MaxScore:         rubric.MaxScore,
		Strengths:        mustJSON(result.Strengths),
		Improvements:     mustJSON(result.Improvements),
		DetailedFeedback: result.DetailedFeedback,
		TokensInput:      resp.TokensInput,
		TokensOutput:     resp.TokensOutput,
		CostUSD:          cost,
		CreatedAt:        o.clock.Now().UTC(),
	}

	if err := o.persistCompleted(ctx, sub, fb); err != nil {
		return obsmetrics.JobOutcomeFailed, err
	}

	o.accountant.LogUsage(ctx, usagedomain.LogRequest{
		StudentID:    sub.StudentID,
		Feature:      quotadomain.FeatureAnswerGrading,
		ReferenceID:  sub.ID,
		TokensInput:  resp.TokensInput,
		TokensOutput: resp.TokensOutput,
		CostUSD:      cost,
		LatencyMS:    resp.Latency.Milliseconds(),
		Success:      true,
	})

	o.log.Info("submission graded",
		zap.String("submission_id", sub.ID.String()),
		zap.Int("score", fb.Score),
		zap.Float64("cost_usd", cost),
	)
	return obsmetrics.JobOutcomeCompleted, nil
}

// completeOffTopic stores a canned zero-score result without spending
// provider tokens. The ledger still gets a success entry so every attempt
// leaves exactly one row.
func (o *Orchestrator) completeOffTopic(ctx context.Context, sub *domain.Submission, rubric *rubricdomain.Rubric) error {
	fb := &domain.Feedback{
		ID:           o.genID.Generate(),
		SubmissionID: sub.ID,
		Score:        0,
		MaxScore:     rubric.MaxScore,
		Strengths:    mustJSON([]string{"You submitted an answer and engaged with the exercise."}),
		Improvements: mustJSON([]string{"Re-read the question and make sure your answer addresses what it asks."}),
		DetailedFeedback: "Your answer does not appear to address the question being asked. " +
			"Review the question carefully, identify its key terms, and write an answer that engages with them directly.",
		OffTopic:  true,
		CreatedAt: o.clock.Now().UTC(),
	}

	if err := o.persistCompleted(ctx, sub, fb); err != nil {
		return err
	}

	o.accountant.LogUsage(ctx, usagedomain.LogRequest{
		StudentID:   sub.StudentID,
		Feature:     quotadomain.FeatureAnswerGrading,
		ReferenceID: sub.ID,
		Success:     true,
	})

	o.log.Info("submission judged off-topic",
		zap.String("submission_id", sub.ID.String()),
		zap.String("student_id", sub.StudentID.String()),
	)
	return nil
}

// persistCompleted writes the feedback row and flips the submission in one
// transaction so a completed submission always has its result.
func (o *Orchestrator) persistCompleted(ctx context.Context, sub *domain.Submission, fb *domain.Feedback) error {
	now := o.clock.Now().UTC()
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.repo.InsertFeedback(ctx, tx, fb); err != nil {
			return err
		}
		return o.repo.MarkCompleted(ctx, tx, sub.ID, now)
	})
}

func (o *Orchestrator) fail(ctx context.Context, sub *domain.Submission, code, reason string) error {
	return o.failWithUsage(ctx, sub, code, reason, nil)
}

func (o *Orchestrator) failWithUsage(ctx context.Context, sub *domain.Submission, code, reason string, resp *llm.Response) error {
	if err := o.repo.MarkFailed(ctx, o.db, sub.ID, reason, o.clock.Now().UTC()); err != nil {
		return err
	}

	entry := usagedomain.LogRequest{
		StudentID:    sub.StudentID,
		Feature:      quotadomain.FeatureAnswerGrading,
		ReferenceID:  sub.ID,
		Success:      false,
		ErrorCode:    code,
		ErrorMessage: reason,
	}
	if resp != nil {
		entry.TokensInput = resp.TokensInput
		entry.TokensOutput = resp.TokensOutput
		entry.CostUSD = o.accountant.CalculateCost(resp.TokensInput, resp.TokensOutput)
		entry.LatencyMS = resp.Latency.Milliseconds()
	}
	o.accountant.LogUsage(ctx, entry)

	o.log.Warn("submission grading failed",
		zap.String("submission_id", sub.ID.String()),
		zap.String("error_code", code),
		zap.String("reason", reason),
	)
	return nil
}

func (o *Orchestrator) parseGradeResult(content string) (*gradeResult, error) {
	var result gradeResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, &domain.SchemaError{Reason: "response is not valid JSON: " + err.Error()}
	}
	if result.Score == nil {
		return nil, &domain.SchemaError{Reason: "missing score"}
	}
	if *result.Score < 0 || *result.Score > 10 {
		return nil, &domain.SchemaError{Reason: fmt.Sprintf("score %d out of range", *result.Score)}
	}
	if err := validateList("strengths", result.Strengths); err != nil {
		return nil, err
	}
	if err := validateList("improvements", result.Improvements); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(result.DetailedFeedback)) < o.cfg.MinDetailedFeedbackLen {
		return nil, &domain.SchemaError{Reason: "detailed_feedback too short"}
	}
	return &result, nil
}

func validateList(name string, items []string) error {
	if len(items) < 1 || len(items) > maxListItems {
		return &domain.SchemaError{Reason: fmt.Sprintf("%s must contain between 1 and %d entries", name, maxListItems)}
	}
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			return &domain.SchemaError{Reason: name + " contains an empty entry"}
		}
	}
	return nil
}

func systemPrompt(rubric *rubricdomain.Rubric) string {
	var b strings.Builder
	b.WriteString("You are an experienced teacher grading a student's written answer. ")
	b.WriteString("Grade strictly against the rubric below and respond only with the requested JSON.\n\n")
	fmt.Fprintf(&b, "Maximum score: %d\n", rubric.MaxScore)
	if len(rubric.Criteria) > 0 {
		b.WriteString("Criteria:\n")
		for name, desc := range rubric.Criteria {
			fmt.Fprintf(&b, "- %s: %v\n", name, desc)
		}
	}
	fmt.Fprintf(&b, "\nExample of an excellent answer:\n%s\n", rubric.ExcellentAnswer)
	fmt.Fprintf(&b, "\nExample of a poor answer:\n%s\n", rubric.PoorAnswer)
	return b.String()
}

func userPrompt(rubric *rubricdomain.Rubric, sub *domain.Submission) string {
	return fmt.Sprintf("Question:\n%s\n\nStudent's answer:\n%s", rubric.QuestionText, sub.AnswerText)
}

func mustJSON(items []string) []byte {
	data, err := json.Marshal(items)
	if err != nil {
		// A []string cannot fail to marshal.
		panic(err)
	}
	return data
}
