// Package store defines the message log contract. The sqlite subpackage
// provides the durable implementation.
package store

import (
	"context"
	"time"
)

// Direction tags a message as inbound (from the user) or outbound (a reply).
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Message is one immutable row of the append-only conversation log.
type Message struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Direction  Direction `json:"direction"`
	Text       string    `json:"text"`
	ExternalID string    `json:"external_id,omitempty"` // provider delivery id; set for IN rows only
	Channel    string    `json:"channel"`
	Timestamp  time.Time `json:"ts"`
}

// AppendOutcome distinguishes a fresh insert from an idempotent no-op.
// Duplicate is a normal result, not an error: webhook providers redeliver.
type AppendOutcome int

const (
	// AppendedNew means a new row was written.
	AppendedNew AppendOutcome = iota
	// Duplicate means an IN row with the same external id already exists
	// and nothing was written.
	Duplicate
)

// AppendResult reports what Append did. ID is the rowid of the inserted
// message and is zero for duplicates.
type AppendResult struct {
	Outcome AppendOutcome
	ID      int64
}

// MessageStore is the durable, append-only message log.
//
// Mutating calls are serialized by the implementation so the external-id
// uniqueness invariant holds under concurrent webhook deliveries. Reads may
// run concurrently with writes; a read slightly stale relative to an
// in-flight write is acceptable.
type MessageStore interface {
	// Bootstrap idempotently ensures the schema exists. Safe on every start.
	Bootstrap(ctx context.Context) error

	// Append inserts one message. When externalID is non-empty and an IN
	// row with that id already exists, nothing is written and the result
	// outcome is Duplicate.
	Append(ctx context.Context, userID string, dir Direction, text, externalID, channel string) (AppendResult, error)

	// History returns at most limit most-recent messages for the user,
	// oldest first. Unknown users yield an empty slice, never an error.
	History(ctx context.Context, userID string, limit int) ([]Message, error)

	// HasExternalID reports whether an IN row with the given id exists.
	HasExternalID(ctx context.Context, externalID string) (bool, error)

	// Clear deletes all messages for a user. Administrative only.
	Clear(ctx context.Context, userID string) error

	Close() error
}
