package llm

import (
	"context"
	"time"

	"github.com/mentora-app/mentora/internal/config"
	"go.uber.org/zap"
)

// Retrying wraps a Client with bounded retries on transient failures.
// Client-class errors return immediately; timeouts and server errors are
// retried with exponential backoff under an overall deadline.
type Retrying struct {
	inner       Client
	log         *zap.Logger
	maxAttempts int
	backoffBase time.Duration
	overall     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	onAttempt   func(kind string)
}

// RetryOption configures the wrapper.
type RetryOption func(*Retrying)

// WithSleep overrides the backoff sleep, used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *Retrying) { r.sleep = fn }
}

// WithAttemptObserver reports the outcome kind of every provider attempt,
// "ok" on success.
func WithAttemptObserver(fn func(kind string)) RetryOption {
	return func(r *Retrying) { r.onAttempt = fn }
}

// NewRetrying wraps inner with the retry policy from cfg.
func NewRetrying(inner Client, cfg config.LLMConfig, log *zap.Logger, opts ...RetryOption) *Retrying {
	r := &Retrying{
		inner:       inner,
		log:         log.Named("llm.retry"),
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		overall:     cfg.OverallTimeout,
		sleep:       sleepCtx,
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Client = (*Retrying)(nil)

func (r *Retrying) Complete(ctx context.Context, req Request) (Response, error) {
	if r.overall > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.overall)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			r.observe("ok")
			return resp, nil
		}
		r.observe(kindOf(err))
		lastErr = err

		if !IsRetryable(err) || attempt == r.maxAttempts {
			break
		}
		if ctx.Err() != nil {
			break
		}

		backoff := r.backoffBase * time.Duration(1<<(attempt-1))
		r.log.Warn("provider attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := r.sleep(ctx, backoff); err != nil {
			lastErr = &Error{Kind: KindTimeout, Message: "deadline reached while backing off"}
			break
		}
	}
	return Response{}, lastErr
}

func (r *Retrying) observe(kind string) {
	if r.onAttempt != nil {
		r.onAttempt(kind)
	}
}

func kindOf(err error) string {
	switch Code(err) {
	case "llm_timeout":
		return string(KindTimeout)
	case "llm_server_error":
		return string(KindServer)
	default:
		return string(KindClient)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
