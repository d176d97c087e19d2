// Package providers wraps external completion services behind a single
// CompletionBackend interface with classified failures.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// Message is one turn of generation input.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Messages    []Message
	Model       string // overrides the backend default when non-empty
	MaxTokens   int
	Temperature float64
}

// CompletionBackend is the capability the gateway drives. Implementations
// perform their own bounded automatic retry; failures come back classified
// so the gateway can decide on its own retry.
type CompletionBackend interface {
	// Complete returns the generated text for the ordered message list.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name returns the backend identifier (e.g. "openai").
	Name() string
}

// FailureKind classifies a backend failure.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureRateLimited FailureKind = "rate_limited"
	FailureUnavailable FailureKind = "unavailable"
)

// Error is a classified backend failure.
type Error struct {
	Kind    FailureKind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify returns the failure kind of err, or "" if err is not a
// classified backend error.
func Classify(err error) FailureKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Retryable reports whether the failure classification justifies another
// attempt (rate limits and timeouts are transient; hard unavailability is
// retried only by the backend's own automatic retry).
func Retryable(err error) bool {
	switch Classify(err) {
	case FailureTimeout, FailureRateLimited:
		return true
	}
	return false
}
