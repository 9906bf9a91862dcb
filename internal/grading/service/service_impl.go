package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/config"
	"github.com/mentora-app/mentora/internal/grading/domain"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
	"github.com/mentora-app/mentora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Quota  quotadomain.Service
}

type Service struct {
	cfg   config.GradingConfig
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	quota quotadomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		cfg:   p.Config.Grading,
		db:    p.DB,
		log:   p.Log.Named("grading.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		quota: p.Quota,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSubmissionRequest) (*domain.CreateSubmissionResponse, error) {
	if req.StudentID == 0 {
		return nil, domain.ErrInvalidStudent
	}
	if req.QuestionID == 0 {
		return nil, domain.ErrInvalidQuestion
	}
	if n := len(req.AnswerText); n < s.cfg.AnswerMinLen || n > s.cfg.AnswerMaxLen {
		return nil, domain.ErrInvalidAnswerLength
	}

	lastAttempt, err := s.repo.MaxAttempt(ctx, s.db, req.StudentID, req.QuestionID)
	if err != nil {
		return nil, err
	}
	if lastAttempt >= s.cfg.MaxAttempts {
		return nil, domain.ErrAttemptLimitReached
	}

	// Quota is consumed before the row exists so a crash between the two
	// can only over-count, never hand out free gradings.
	usage, err := s.quota.CheckAndIncrement(ctx, req.StudentID, quotadomain.FeatureAnswerGrading)
	if err != nil {
		return nil, err
	}

	sub := &domain.Submission{
		ID:            s.genID.Generate(),
		StudentID:     req.StudentID,
		QuestionID:    req.QuestionID,
		AnswerText:    req.AnswerText,
		AttemptNumber: lastAttempt + 1,
		Status:        domain.StatusPending,
		CreatedAt:     s.clock.Now().UTC(),
		UpdatedAt:     s.clock.Now().UTC(),
	}
	if lastAttempt > 0 {
		if prev, err := s.findLatestAttempt(ctx, req.StudentID, req.QuestionID, lastAttempt); err == nil && prev != nil {
			sub.PreviousSubmissionID = &prev.ID
		}
	}

	if err := s.repo.Insert(ctx, s.db, sub); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent request claimed this attempt number first.
			return nil, domain.ErrAttemptLimitReached
		}
		return nil, err
	}

	s.log.Info("submission accepted",
		zap.String("submission_id", sub.ID.String()),
		zap.String("student_id", req.StudentID.String()),
		zap.Int("attempt", sub.AttemptNumber),
	)

	return &domain.CreateSubmissionResponse{
		SubmissionID:               sub.ID,
		Status:                     sub.Status,
		AttemptNumber:              sub.AttemptNumber,
		EstimatedCompletionSeconds: s.cfg.EstimatedCompletionSeconds,
		Quota:                      usage,
	}, nil
}

func (s *Service) GetFeedback(ctx context.Context, studentID, submissionID snowflake.ID) (*domain.FeedbackResponse, error) {
	if studentID == 0 {
		return nil, domain.ErrInvalidStudent
	}

	sub, err := s.repo.FindByID(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}
	// Other students' submissions are indistinguishable from missing ones.
	if sub == nil || sub.StudentID != studentID {
		return nil, domain.ErrSubmissionNotFound
	}

	resp := &domain.FeedbackResponse{
		SubmissionID:         sub.ID,
		Status:               sub.Status,
		AttemptNumber:        sub.AttemptNumber,
		PreviousSubmissionID: sub.PreviousSubmissionID,
		FailureReason:        sub.FailureReason,
	}

	if sub.Status != domain.StatusCompleted {
		return resp, nil
	}

	fb, err := s.repo.FindFeedback(ctx, s.db, sub.ID)
	if err != nil {
		return nil, err
	}
	if fb == nil {
		// Completed without feedback should not happen; surface it as still
		// processing rather than inventing a result.
		s.log.Error("completed submission has no feedback row", zap.String("submission_id", sub.ID.String()))
		resp.Status = domain.StatusProcessing
		return resp, nil
	}

	view, err := feedbackView(fb)
	if err != nil {
		return nil, err
	}
	resp.Feedback = view
	return resp, nil
}

func (s *Service) findLatestAttempt(ctx context.Context, studentID, questionID snowflake.ID, attempt int) (*domain.Submission, error) {
	var sub domain.Submission
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM submissions WHERE student_id = ? AND question_id = ? AND attempt_number = ?`,
		studentID,
		questionID,
		attempt,
	).Scan(&sub).Error
	if err != nil || sub.ID == 0 {
		return nil, err
	}
	return &sub, nil
}

func feedbackView(fb *domain.Feedback) (*domain.FeedbackView, error) {
	view := &domain.FeedbackView{
		Score:            fb.Score,
		MaxScore:         fb.MaxScore,
		DetailedFeedback: fb.DetailedFeedback,
		OffTopic:         fb.OffTopic,
		TokensUsed: domain.TokensUsed{
			In:    fb.TokensInput,
			Out:   fb.TokensOutput,
			Total: fb.TokensInput + fb.TokensOutput,
		},
		CostUSD: fb.CostUSD,
	}
	if err := json.Unmarshal(fb.Strengths, &view.Strengths); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fb.Improvements, &view.Improvements); err != nil {
		return nil, err
	}
	return view, nil
}
