package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/config"
	obsmetrics "github.com/mentora-app/mentora/internal/observability/metrics"
	"github.com/mentora-app/mentora/internal/quota/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const keyQuotaCounter = "quota:%s:%s:%s" // feature, student, month

var errInvalidScriptReply = errors.New("invalid quota script reply")

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Limits *config.QuotaLimitsHolder
	Redis  redis.Cmdable `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	limits  *config.QuotaLimitsHolder
	counter *Counter
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("quota.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		limits:  p.Limits,
		counter: NewCounter(p.Redis),
	}
}

func (s *Service) GetUsage(ctx context.Context, req domain.GetUsageRequest) (domain.Usage, error) {
	if req.StudentID == 0 {
		return domain.Usage{}, domain.ErrInvalidStudent
	}
	if !req.Feature.Known() {
		return domain.Usage{}, domain.ErrInvalidFeature
	}

	limit := s.limits.Current().For(string(req.Feature))
	now := s.clock.Now().UTC()
	month := domain.MonthKey(now)
	resetsAt := domain.NextReset(now)

	if s.counter != nil {
		key := counterKey(req.Feature, req.StudentID, month)
		used, ok, err := s.counter.Get(ctx, key)
		if err != nil {
			s.log.Warn("quota accelerator read failed, falling back", zap.Error(err))
		} else if ok {
			return usage(used, limit, resetsAt, domain.SourceAccelerator), nil
		}
	}

	row, err := s.repo.Find(ctx, s.db, req.StudentID, month, req.Feature)
	if err != nil {
		return domain.Usage{}, err
	}
	used := 0
	if row != nil {
		used = row.UsedCount
	}
	return usage(used, limit, resetsAt, domain.SourceDatabase), nil
}

func (s *Service) CheckAndIncrement(ctx context.Context, studentID snowflake.ID, feature domain.Feature) (domain.Usage, error) {
	if studentID == 0 {
		return domain.Usage{}, domain.ErrInvalidStudent
	}
	if !feature.Known() {
		return domain.Usage{}, domain.ErrInvalidFeature
	}

	limit := s.limits.Current().For(string(feature))
	now := s.clock.Now().UTC()
	month := domain.MonthKey(now)
	resetsAt := domain.NextReset(now)

	if limit <= 0 {
		obsmetrics.Grading().IncQuotaDenied(string(feature))
		return domain.Usage{}, &domain.ExceededError{Feature: feature, Used: 0, Limit: limit, ResetsAt: resetsAt}
	}

	if s.counter != nil {
		u, err := s.incrementAccelerated(ctx, studentID, feature, month, limit, resetsAt)
		if err == nil {
			return u, nil
		}
		var exceeded *domain.ExceededError
		if errors.As(err, &exceeded) {
			return domain.Usage{}, err
		}
		s.log.Warn("quota accelerator unavailable, falling back to database",
			zap.String("feature", string(feature)),
			zap.Error(err),
		)
	}

	return s.incrementDurable(ctx, studentID, feature, month, limit, resetsAt)
}

// incrementAccelerated runs the atomic compare-then-increment on redis.
// A missing key is seeded from the durable row first so a flushed or expired
// accelerator never resets a student's month.
func (s *Service) incrementAccelerated(ctx context.Context, studentID snowflake.ID, feature domain.Feature, month string, limit int, resetsAt time.Time) (domain.Usage, error) {
	key := counterKey(feature, studentID, month)

	for attempt := 0; attempt < 2; attempt++ {
		used, status, err := s.counter.Incr(ctx, key, limit)
		if err != nil {
			return domain.Usage{}, err
		}

		switch status {
		case incrAllowed:
			s.writeThrough(ctx, studentID, feature, month, limit, resetsAt, used)
			return usage(used, limit, resetsAt, domain.SourceAccelerator), nil
		case incrDenied:
			obsmetrics.Grading().IncQuotaDenied(string(feature))
			return domain.Usage{}, &domain.ExceededError{Feature: feature, Used: used, Limit: limit, ResetsAt: resetsAt}
		case incrMissing:
			seed := 0
			row, err := s.repo.Find(ctx, s.db, studentID, month, feature)
			if err != nil {
				return domain.Usage{}, err
			}
			if row != nil {
				seed = row.UsedCount
			}
			if err := s.counter.Seed(ctx, key, seed); err != nil {
				return domain.Usage{}, err
			}
		}
	}

	return domain.Usage{}, errInvalidScriptReply
}

// incrementDurable is the fallback path: a transactional upsert plus a
// conditional column increment, so concurrent requests cannot overshoot.
func (s *Service) incrementDurable(ctx context.Context, studentID snowflake.ID, feature domain.Feature, month string, limit int, resetsAt time.Time) (domain.Usage, error) {
	var used int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureRow(ctx, tx, &domain.UsageQuota{
			ID:         s.genID.Generate(),
			StudentID:  studentID,
			Month:      month,
			Feature:    feature,
			UsedCount:  0,
			LimitCount: limit,
			ResetDate:  resetsAt,
			CreatedAt:  s.clock.Now().UTC(),
			UpdatedAt:  s.clock.Now().UTC(),
		}); err != nil {
			return err
		}

		ok, err := s.repo.Increment(ctx, tx, studentID, month, feature)
		if err != nil {
			return err
		}

		row, err := s.repo.Find(ctx, tx, studentID, month, feature)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("quota row missing after upsert for student %s", studentID)
		}

		if !ok {
			obsmetrics.Grading().IncQuotaDenied(string(feature))
			return &domain.ExceededError{Feature: feature, Used: row.UsedCount, Limit: row.LimitCount, ResetsAt: row.ResetDate}
		}
		used = row.UsedCount
		return nil
	})
	if err != nil {
		var exceeded *domain.ExceededError
		if errors.As(err, &exceeded) {
			return domain.Usage{}, exceeded
		}
		return domain.Usage{}, err
	}

	return usage(used, limit, resetsAt, domain.SourceDatabase), nil
}

// writeThrough mirrors an accelerator increment onto the durable row.
// Best effort: the quota decision was already made, so failures only log.
func (s *Service) writeThrough(ctx context.Context, studentID snowflake.ID, feature domain.Feature, month string, limit int, resetsAt time.Time, used int) {
	err := s.repo.EnsureRow(ctx, s.db, &domain.UsageQuota{
		ID:         s.genID.Generate(),
		StudentID:  studentID,
		Month:      month,
		Feature:    feature,
		UsedCount:  0,
		LimitCount: limit,
		ResetDate:  resetsAt,
		CreatedAt:  s.clock.Now().UTC(),
		UpdatedAt:  s.clock.Now().UTC(),
	})
	if err == nil {
		err = s.repo.SyncUsed(ctx, s.db, studentID, month, feature, used)
	}
	if err != nil {
		s.log.Warn("quota write-through failed",
			zap.String("student_id", studentID.String()),
			zap.String("feature", string(feature)),
			zap.Int("used", used),
			zap.Error(err),
		)
	}
}

func counterKey(feature domain.Feature, studentID snowflake.ID, month string) string {
	return fmt.Sprintf(keyQuotaCounter, feature, studentID, month)
}

func usage(used, limit int, resetsAt time.Time, source string) domain.Usage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.Usage{
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetsAt:  resetsAt,
		Source:    source,
	}
}
