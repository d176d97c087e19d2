package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/courier/internal/history"
	"github.com/nextlevelbuilder/courier/internal/providers"
)

// scriptedBackend returns canned results per attempt.
type scriptedBackend struct {
	results  []result
	requests []providers.CompletionRequest
}

type result struct {
	text string
	err  error
}

func (b *scriptedBackend) Complete(_ context.Context, req providers.CompletionRequest) (string, error) {
	b.requests = append(b.requests, req)
	i := len(b.requests) - 1
	if i >= len(b.results) {
		i = len(b.results) - 1
	}
	return b.results[i].text, b.results[i].err
}

func (b *scriptedBackend) Name() string { return "scripted" }

func newTestGateway(b providers.CompletionBackend, opts Options) *Gateway {
	g := New(b, opts)
	g.sleep = func(context.Context, time.Duration) {} // no real backoff in tests
	return g
}

func backendErr(kind providers.FailureKind) error {
	return &providers.Error{Kind: kind, Backend: "scripted", Err: errors.New("boom")}
}

func TestCompleteBuildsOrderedPrompt(t *testing.T) {
	b := &scriptedBackend{results: []result{{text: "Hi there"}}}
	g := newTestGateway(b, Options{SystemDirective: "be kind"})

	turns := []history.Turn{
		{Role: "user", Text: "earlier question"},
		{Role: "assistant", Text: "earlier answer"},
	}
	got := g.Complete(context.Background(), turns, "Hello")
	if got != "Hi there" {
		t.Errorf("reply = %q", got)
	}

	msgs := b.requests[0].Messages
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(wantRoles))
	}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("messages[%d].Role = %q, want %q", i, msgs[i].Role, role)
		}
	}
	if msgs[0].Content != "be kind" || msgs[3].Content != "Hello" {
		t.Errorf("prompt content misplaced: first=%q last=%q", msgs[0].Content, msgs[3].Content)
	}
}

func TestCompleteRetriesRateLimitThenSucceeds(t *testing.T) {
	b := &scriptedBackend{results: []result{
		{err: backendErr(providers.FailureRateLimited)},
		{text: "recovered"},
	}}
	g := newTestGateway(b, Options{})

	got := g.Complete(context.Background(), nil, "hi")
	if got != "recovered" {
		t.Errorf("reply = %q, want the successful second attempt, not the fallback", got)
	}
	if len(b.requests) != 2 {
		t.Errorf("attempts = %d, want 2", len(b.requests))
	}
}

func TestCompleteFallsBackAfterTwoFailures(t *testing.T) {
	b := &scriptedBackend{results: []result{
		{err: backendErr(providers.FailureTimeout)},
		{err: backendErr(providers.FailureTimeout)},
	}}
	g := newTestGateway(b, Options{})

	got := g.Complete(context.Background(), nil, "hi")
	if got != DefaultFallback {
		t.Errorf("reply = %q, want fallback", got)
	}
	if len(b.requests) != 2 {
		t.Errorf("attempts = %d, want exactly 2", len(b.requests))
	}
}

func TestCompleteNoRetryOnUnavailable(t *testing.T) {
	b := &scriptedBackend{results: []result{
		{err: backendErr(providers.FailureUnavailable)},
	}}
	g := newTestGateway(b, Options{})

	got := g.Complete(context.Background(), nil, "hi")
	if got != DefaultFallback {
		t.Errorf("reply = %q, want fallback", got)
	}
	if len(b.requests) != 1 {
		t.Errorf("attempts = %d, want 1 (unavailable is not retried at this layer)", len(b.requests))
	}
}

func TestCompleteShapesFallbackToo(t *testing.T) {
	b := &scriptedBackend{results: []result{
		{err: backendErr(providers.FailureUnavailable)},
	}}
	g := newTestGateway(b, Options{Shaper: Shaper{MaxChars: 400, Signature: "— Bot"}})

	got := g.Complete(context.Background(), nil, "hi")
	if !strings.HasSuffix(got, "— Bot") {
		t.Errorf("fallback not shaped: %q", got)
	}
	if !strings.Contains(got, DefaultFallback) {
		t.Errorf("fallback text lost: %q", got)
	}
}
