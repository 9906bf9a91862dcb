// Package worker drains the submission queue and runs the grading
// pipeline out of band from the HTTP request path.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/config"
	gradingdomain "github.com/mentora-app/mentora/internal/grading/domain"
	obsmetrics "github.com/mentora-app/mentora/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("worker: missing dependency")

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   gradingdomain.Repository
	Grader gradingdomain.Grader
}

// Worker claims pending submissions and grades them with bounded
// concurrency. Several replicas can run against the same database; the
// conditional claim update keeps them from stepping on each other.
type Worker struct {
	cfg    config.WorkerConfig
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   gradingdomain.Repository
	grader gradingdomain.Grader
}

func New(p Params) (*Worker, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.Grader == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.Worker
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Worker{
		cfg:    cfg,
		db:     p.DB,
		log:    p.Log.Named("worker").With(zap.String("component", "grading_worker")),
		clock:  p.Clock,
		repo:   p.Repo,
		grader: p.Grader,
	}, nil
}

// RunOnce performs one full pass: recover stuck work, then drain one
// batch of pending submissions.
func (w *Worker) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	log := w.log.With(zap.String("run_id", runID))

	var runErr error
	if err := w.recoverySweep(ctx, log); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := w.drainPending(ctx, log); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// RunForever loops RunOnce on the poll interval until the context is done.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("worker run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// recoverySweep returns submissions stuck in processing to the queue.
// A crashed worker leaves its claims behind; anything older than the
// recovery threshold is assumed orphaned.
func (w *Worker) recoverySweep(ctx context.Context, log *zap.Logger) error {
	cutoff := w.clock.Now().UTC().Add(-w.cfg.RecoveryThreshold)
	moved, err := w.repo.RequeueStuck(ctx, w.db, cutoff)
	if err != nil {
		return err
	}
	if moved > 0 {
		obsmetrics.Grading().IncRequeued(int(moved))
		log.Warn("requeued stuck submissions", zap.Int64("count", moved))
	}
	return nil
}

func (w *Worker) drainPending(ctx context.Context, log *zap.Logger) error {
	ids, err := w.repo.ListPendingIDs(ctx, w.db, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	errs := make([]error, len(ids))

	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, id snowflake.ID) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = w.gradeOne(ctx, log, id)
		}(i, id)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (w *Worker) gradeOne(ctx context.Context, log *zap.Logger, id snowflake.ID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking job must not take the whole worker down; the
			// recovery sweep will pick the claim back up.
			log.Error("grading job panicked",
				zap.String("submission_id", id.String()),
				zap.Any("panic", r),
			)
			err = errors.New("grading job panicked")
		}
	}()

	claimed, err := w.repo.ClaimPending(ctx, w.db, id, w.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	jobCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	if err := w.grader.Grade(jobCtx, id); err != nil {
		log.Warn("grading job errored",
			zap.String("submission_id", id.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
