package llm

import (
	"context"
	"testing"
	"time"

	"github.com/mentora-app/mentora/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedClient struct {
	results []error
	calls   int
}

func (c *scriptedClient) Complete(ctx context.Context, req Request) (Response, error) {
	idx := c.calls
	c.calls++
	if idx >= len(c.results) {
		idx = len(c.results) - 1
	}
	if err := c.results[idx]; err != nil {
		return Response{}, err
	}
	return Response{Content: "ok", TokensInput: 10, TokensOutput: 5}, nil
}

func retryConfig() config.LLMConfig {
	return config.LLMConfig{
		MaxAttempts:    3,
		BackoffBase:    500 * time.Millisecond,
		OverallTimeout: time.Minute,
	}
}

func noSleep(slept *[]time.Duration) RetryOption {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	})
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &scriptedClient{results: []error{
		&Error{Kind: KindTimeout, Message: "deadline"},
		&Error{Kind: KindServer, Status: 502, Message: "bad gateway"},
		nil,
	}}
	var slept []time.Duration
	client := NewRetrying(inner, retryConfig(), zap.NewNop(), noSleep(&slept))

	resp, err := client.Complete(context.Background(), Request{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, inner.calls)
	// Exponential: base, then double.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, slept)
}

func TestRetryStopsAtAttemptCap(t *testing.T) {
	inner := &scriptedClient{results: []error{
		&Error{Kind: KindServer, Status: 500, Message: "boom"},
	}}
	var slept []time.Duration
	client := NewRetrying(inner, retryConfig(), zap.NewNop(), noSleep(&slept))

	_, err := client.Complete(context.Background(), Request{User: "hi"})
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.Len(t, slept, 2)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, KindServer, provErr.Kind)
}

func TestRetryDoesNotRetryClientErrors(t *testing.T) {
	inner := &scriptedClient{results: []error{
		&Error{Kind: KindClient, Status: 400, Message: "bad request"},
	}}
	var slept []time.Duration
	client := NewRetrying(inner, retryConfig(), zap.NewNop(), noSleep(&slept))

	_, err := client.Complete(context.Background(), Request{User: "hi"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, slept)
}

func TestRetryObservesAttemptKinds(t *testing.T) {
	inner := &scriptedClient{results: []error{
		&Error{Kind: KindTimeout, Message: "deadline"},
		nil,
	}}
	var slept []time.Duration
	var kinds []string
	client := NewRetrying(inner, retryConfig(), zap.NewNop(),
		noSleep(&slept),
		WithAttemptObserver(func(kind string) { kinds = append(kinds, kind) }),
	)

	_, err := client.Complete(context.Background(), Request{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"timeout", "ok"}, kinds)
}

func TestRetryHonorsOverallDeadline(t *testing.T) {
	inner := &scriptedClient{results: []error{
		&Error{Kind: KindServer, Status: 503, Message: "unavailable"},
	}}
	cfg := retryConfig()
	cfg.OverallTimeout = 10 * time.Millisecond
	client := NewRetrying(inner, cfg, zap.NewNop(),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	_, err := client.Complete(context.Background(), Request{User: "hi"})
	require.Error(t, err)
	// First attempt plus the aborted backoff, no further calls.
	assert.Equal(t, 1, inner.calls)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "llm_timeout", Code(&Error{Kind: KindTimeout}))
	assert.Equal(t, "llm_server_error", Code(&Error{Kind: KindServer}))
	assert.Equal(t, "llm_client_error", Code(&Error{Kind: KindClient}))
	assert.Equal(t, "llm_error", Code(context.Canceled))
}
