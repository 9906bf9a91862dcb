// Package llm wraps the external grading provider behind a narrow,
// retry-aware client contract.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Request is one structured-output completion call.
type Request struct {
	System      string
	User        string
	SchemaName  string
	Schema      json.RawMessage
	MaxTokens   int
	Temperature float64
}

// Response carries the provider payload plus the figures the cost ledger needs.
type Response struct {
	Content      string
	TokensInput  int64
	TokensOutput int64
	Latency      time.Duration
}

// Client completes a grading request against the provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ErrorKind partitions provider failures into retry classes.
type ErrorKind string

const (
	// KindTimeout covers deadline and transport timeouts. Retryable.
	KindTimeout ErrorKind = "timeout"
	// KindServer covers 5xx responses. Retryable.
	KindServer ErrorKind = "server"
	// KindClient covers 4xx responses and malformed payloads. Never retried.
	KindClient ErrorKind = "client"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm %s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("llm %s error: %s", e.Kind, e.Message)
}

// IsRetryable reports whether the error may succeed on another attempt:
// only timeouts and server-class failures qualify.
func IsRetryable(err error) bool {
	var provErr *Error
	if !errors.As(err, &provErr) {
		return false
	}
	return provErr.Kind == KindTimeout || provErr.Kind == KindServer
}

// Code maps an error to the code stored in the usage ledger.
func Code(err error) string {
	var provErr *Error
	if errors.As(err, &provErr) {
		switch provErr.Kind {
		case KindTimeout:
			return "llm_timeout"
		case KindServer:
			return "llm_server_error"
		case KindClient:
			return "llm_client_error"
		}
	}
	return "llm_error"
}
