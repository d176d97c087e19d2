// Package history derives the bounded conversation context supplied to
// generation from the message log.
package history

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/courier/internal/store"
)

// Roles assigned to stored directions when building generation input.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior conversation turn, oldest first in a window.
type Turn struct {
	Role string
	Text string
}

// Window builds bounded context slices. It is a pure read over the store:
// no side effects, no state.
type Window struct {
	store store.MessageStore
	size  int
}

// NewWindow creates a Window returning at most size turns per build.
func NewWindow(s store.MessageStore, size int) *Window {
	if size <= 0 {
		size = 10
	}
	return &Window{store: s, size: size}
}

// Build returns up to the window size of recent turns for userID, oldest
// first. excludeID skips the row with that id — the orchestrator passes the
// id of the inbound message it just logged, since that text is re-added as
// the final user turn by the gateway and must not appear twice in the
// prompt. Pass 0 to exclude nothing.
func (w *Window) Build(ctx context.Context, userID string, excludeID int64) ([]Turn, error) {
	// Fetch one extra row so the window stays full when the excluded
	// message is part of the result.
	msgs, err := w.store.History(ctx, userID, w.size+1)
	if err != nil {
		return nil, fmt.Errorf("build history window: %w", err)
	}

	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		if excludeID != 0 && m.ID == excludeID {
			continue
		}
		role := RoleUser
		if m.Direction == store.DirectionOut {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Text: m.Text})
	}
	if len(turns) > w.size {
		turns = turns[len(turns)-w.size:]
	}
	return turns, nil
}
