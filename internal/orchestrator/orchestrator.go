// Package orchestrator sequences one inbound event through the relay:
// log inbound, build context, generate, log outbound, hand back a reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/courier/internal/history"
	"github.com/nextlevelbuilder/courier/internal/store"
)

// Outcome is the terminal state of one orchestration.
type Outcome int

const (
	// OutcomeReplied means a reply was generated and logged.
	OutcomeReplied Outcome = iota
	// OutcomeDuplicate means the delivery was already processed; callers
	// must not dispatch anything outbound.
	OutcomeDuplicate
	// OutcomeNoReply means generation produced no text; nothing was
	// logged outbound and nothing should be delivered.
	OutcomeNoReply
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReplied:
		return "replied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeNoReply:
		return "no_reply"
	default:
		return "unknown"
	}
}

// Inbound is one raw inbound event, already normalized by the transport.
type Inbound struct {
	UserID     string
	Text       string
	ExternalID string // optional provider delivery id
	Channel    string // channel tag for stored rows
}

// Result is the outcome of Process. Reply is non-empty only for
// OutcomeReplied.
type Result struct {
	Outcome Outcome
	Reply   string
}

// Generator is the slice of the gateway the orchestrator needs.
type Generator interface {
	Complete(ctx context.Context, turns []history.Turn, newText string) string
}

// Orchestrator runs the per-event state machine. Safe for concurrent use:
// all mutable state lives in the store.
type Orchestrator struct {
	store   store.MessageStore
	window  *history.Window
	gateway Generator
}

// New creates an Orchestrator. All dependencies are required.
func New(s store.MessageStore, w *history.Window, g Generator) (*Orchestrator, error) {
	if s == nil {
		return nil, errors.New("orchestrator: message store must not be nil")
	}
	if w == nil {
		return nil, errors.New("orchestrator: history window must not be nil")
	}
	if g == nil {
		return nil, errors.New("orchestrator: gateway must not be nil")
	}
	return &Orchestrator{store: s, window: w, gateway: g}, nil
}

// Process handles one inbound event end to end. Only storage errors are
// returned; generation trouble is absorbed by the gateway's fallback.
func (o *Orchestrator) Process(ctx context.Context, in Inbound) (Result, error) {
	userID := NormalizeUserID(in.UserID)
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Result{Outcome: OutcomeNoReply}, nil
	}

	// LOGGED_IN — the append doubles as the idempotency gate.
	res, err := o.store.Append(ctx, userID, store.DirectionIn, text, in.ExternalID, in.Channel)
	if err != nil {
		return Result{}, fmt.Errorf("log inbound: %w", err)
	}
	if res.Outcome == store.Duplicate {
		slog.Info("duplicate delivery ignored", "user", userID, "external_id", in.ExternalID)
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	// GENERATING — the window excludes the row we just wrote; the gateway
	// re-adds the text as the final user turn.
	turns, err := o.window.Build(ctx, userID, res.ID)
	if err != nil {
		// History is best-effort context: degrade to an empty window
		// rather than dropping the reply.
		slog.Error("history window failed, generating without context", "user", userID, "error", err)
		turns = nil
	}
	reply := o.gateway.Complete(ctx, turns, text)

	// LOGGED_OUT — an empty reply records nothing and delivers nothing.
	if reply == "" {
		slog.Warn("generation produced empty reply", "user", userID)
		return Result{Outcome: OutcomeNoReply}, nil
	}
	if _, err := o.store.Append(ctx, userID, store.DirectionOut, reply, "", in.Channel); err != nil {
		return Result{}, fmt.Errorf("log outbound: %w", err)
	}
	return Result{Outcome: OutcomeReplied, Reply: reply}, nil
}

// Clear wipes a user's conversation log. Administrative surface.
func (o *Orchestrator) Clear(ctx context.Context, userID string) error {
	return o.store.Clear(ctx, NormalizeUserID(userID))
}

// NormalizeUserID strips channel address prefixes so the same person maps
// to one history regardless of transport framing.
func NormalizeUserID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimSpace(strings.TrimPrefix(id, "whatsapp:"))
	if id == "" {
		return "unknown"
	}
	return id
}
