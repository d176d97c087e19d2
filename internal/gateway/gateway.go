// Package gateway drives the completion backend: prompt assembly, a hard
// per-call deadline, one gateway-level retry on transient failures, and a
// deterministic fallback so generation trouble never reaches the transport.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/courier/internal/history"
	"github.com/nextlevelbuilder/courier/internal/providers"
)

// DefaultFallback is returned when the retry budget is exhausted. It is
// shaped like any other reply before delivery.
const DefaultFallback = "Sorry, I can't reply right now."

// Options configures a Gateway.
type Options struct {
	SystemDirective string
	Timeout         time.Duration // per-attempt deadline
	RetryBackoff    time.Duration // pause before the single gateway retry
	MaxTokens       int
	Temperature     float64
	Fallback        string // empty = DefaultFallback
	Shaper          Shaper
}

// Gateway wraps a CompletionBackend. The backend performs its own bounded
// automatic retry; on top of that the gateway makes at most 2 attempts,
// retrying only when the failure is classified rate-limit or timeout.
type Gateway struct {
	backend  providers.CompletionBackend
	opts     Options
	sleep    func(context.Context, time.Duration) // test seam
	fallback string
}

// New creates a Gateway with the given backend and options.
func New(backend providers.CompletionBackend, opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	fallback := opts.Fallback
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Gateway{
		backend:  backend,
		opts:     opts,
		fallback: fallback,
		sleep:    sleepCtx,
	}
}

// Complete generates a reply for newText given the prior context turns.
// It never returns an error: exhausted retries yield the shaped fallback.
func (g *Gateway) Complete(ctx context.Context, turns []history.Turn, newText string) string {
	messages := g.buildMessages(turns, newText)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		start := time.Now()
		text, err := g.complete(ctx, messages)
		elapsed := time.Since(start).Milliseconds()

		if err == nil {
			slog.Info("generation ok",
				"backend", g.backend.Name(),
				"attempt", attempt,
				"ms", elapsed,
			)
			return g.opts.Shaper.Apply(text)
		}

		lastErr = err
		slog.Warn("generation failed",
			"backend", g.backend.Name(),
			"attempt", attempt,
			"ms", elapsed,
			"classification", string(providers.Classify(err)),
			"error", err,
		)

		if attempt == 1 && providers.Retryable(err) {
			g.sleep(ctx, g.opts.RetryBackoff)
			continue
		}
		break
	}

	slog.Error("generation exhausted, using fallback",
		"backend", g.backend.Name(),
		"error", lastErr,
	)
	return g.opts.Shaper.Apply(g.fallback)
}

func (g *Gateway) complete(ctx context.Context, messages []providers.Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	return g.backend.Complete(callCtx, providers.CompletionRequest{
		Messages:    messages,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
}

// buildMessages assembles system directive, prior turns in order, then the
// new user turn.
func (g *Gateway) buildMessages(turns []history.Turn, newText string) []providers.Message {
	messages := make([]providers.Message, 0, len(turns)+2)
	messages = append(messages, providers.Message{Role: "system", Content: g.opts.SystemDirective})
	for _, turn := range turns {
		messages = append(messages, providers.Message{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, providers.Message{Role: "user", Content: newText})
	return messages
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
