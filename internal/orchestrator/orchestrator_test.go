package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/courier/internal/history"
	"github.com/nextlevelbuilder/courier/internal/store"
)

// fakeStore implements store.MessageStore with external-id dedup.
type fakeStore struct {
	msgs      []store.Message
	nextID    int64
	appendErr error
}

func (f *fakeStore) Bootstrap(context.Context) error { return nil }

func (f *fakeStore) Append(_ context.Context, userID string, dir store.Direction, text, externalID, channel string) (store.AppendResult, error) {
	if f.appendErr != nil {
		return store.AppendResult{}, f.appendErr
	}
	if externalID != "" && dir == store.DirectionIn {
		for _, m := range f.msgs {
			if m.Direction == store.DirectionIn && m.ExternalID == externalID {
				return store.AppendResult{Outcome: store.Duplicate}, nil
			}
		}
	}
	f.nextID++
	f.msgs = append(f.msgs, store.Message{
		ID: f.nextID, UserID: userID, Direction: dir, Text: text, ExternalID: externalID, Channel: channel,
	})
	return store.AppendResult{Outcome: store.AppendedNew, ID: f.nextID}, nil
}

func (f *fakeStore) History(_ context.Context, userID string, limit int) ([]store.Message, error) {
	var out []store.Message
	for _, m := range f.msgs {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) HasExternalID(_ context.Context, id string) (bool, error) {
	for _, m := range f.msgs {
		if m.Direction == store.DirectionIn && m.ExternalID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Clear(_ context.Context, userID string) error {
	kept := f.msgs[:0]
	for _, m := range f.msgs {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	f.msgs = kept
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) count(userID string, dir store.Direction) int {
	n := 0
	for _, m := range f.msgs {
		if m.UserID == userID && m.Direction == dir {
			n++
		}
	}
	return n
}

// fakeGateway records what it was asked and returns a fixed reply.
type fakeGateway struct {
	reply     string
	lastTurns []history.Turn
	lastText  string
	calls     int
}

func (g *fakeGateway) Complete(_ context.Context, turns []history.Turn, newText string) string {
	g.calls++
	g.lastTurns = turns
	g.lastText = newText
	return g.reply
}

func newTestOrchestrator(t *testing.T, fs *fakeStore, fg *fakeGateway) *Orchestrator {
	t.Helper()
	o, err := New(fs, history.NewWindow(fs, 10), fg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestProcessFreshMessage(t *testing.T) {
	fs := &fakeStore{}
	fg := &fakeGateway{reply: "Hi there"}
	o := newTestOrchestrator(t, fs, fg)

	res, err := o.Process(context.Background(), Inbound{
		UserID: "u1", Text: "Hello", ExternalID: "sid-1", Channel: "whatsapp",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomeReplied || res.Reply != "Hi there" {
		t.Errorf("result = %+v", res)
	}
	if fs.count("u1", store.DirectionIn) != 1 {
		t.Errorf("IN rows = %d, want 1", fs.count("u1", store.DirectionIn))
	}
	if fs.count("u1", store.DirectionOut) != 1 {
		t.Errorf("OUT rows = %d, want 1", fs.count("u1", store.DirectionOut))
	}
	if len(fg.lastTurns) != 0 {
		t.Errorf("empty history should give empty context, got %d turns", len(fg.lastTurns))
	}
	if fg.lastText != "Hello" {
		t.Errorf("new turn = %q", fg.lastText)
	}
}

func TestProcessDuplicateDelivery(t *testing.T) {
	fs := &fakeStore{}
	fg := &fakeGateway{reply: "Hi there"}
	o := newTestOrchestrator(t, fs, fg)
	ctx := context.Background()

	in := Inbound{UserID: "u1", Text: "Hello", ExternalID: "sid-1", Channel: "whatsapp"}
	if _, err := o.Process(ctx, in); err != nil {
		t.Fatal(err)
	}
	outBefore := fs.count("u1", store.DirectionOut)

	res, err := o.Process(ctx, in)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Errorf("outcome = %v, want OutcomeDuplicate", res.Outcome)
	}
	if res.Reply != "" {
		t.Errorf("duplicate must carry no reply, got %q", res.Reply)
	}
	if fs.count("u1", store.DirectionIn) != 1 {
		t.Errorf("IN rows = %d, want still 1", fs.count("u1", store.DirectionIn))
	}
	if got := fs.count("u1", store.DirectionOut); got != outBefore {
		t.Errorf("OUT rows grew on duplicate: %d -> %d", outBefore, got)
	}
	if fg.calls != 1 {
		t.Errorf("generation called %d times, want 1 (not on duplicate)", fg.calls)
	}
}

func TestProcessContextExcludesNewTurn(t *testing.T) {
	fs := &fakeStore{}
	fg := &fakeGateway{reply: "ok"}
	o := newTestOrchestrator(t, fs, fg)
	ctx := context.Background()

	o.Process(ctx, Inbound{UserID: "u1", Text: "first", Channel: "whatsapp"})
	fg.lastTurns = nil
	o.Process(ctx, Inbound{UserID: "u1", Text: "second", Channel: "whatsapp"})

	for _, turn := range fg.lastTurns {
		if turn.Text == "second" {
			t.Error("new turn duplicated into context window")
		}
	}
	// Context should hold the first exchange: user "first", assistant "ok".
	if len(fg.lastTurns) != 2 {
		t.Errorf("context turns = %d, want 2", len(fg.lastTurns))
	}
}

func TestProcessStorageErrorSurfaces(t *testing.T) {
	fs := &fakeStore{appendErr: errors.New("disk gone")}
	fg := &fakeGateway{reply: "x"}
	o := newTestOrchestrator(t, fs, fg)

	_, err := o.Process(context.Background(), Inbound{UserID: "u1", Text: "hello"})
	if err == nil {
		t.Fatal("expected storage error to surface")
	}
	if fg.calls != 0 {
		t.Errorf("generation should not run after failed inbound log")
	}
}

func TestProcessEmptyReplyRecordsNothing(t *testing.T) {
	fs := &fakeStore{}
	fg := &fakeGateway{reply: ""}
	o := newTestOrchestrator(t, fs, fg)

	res, err := o.Process(context.Background(), Inbound{UserID: "u1", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoReply {
		t.Errorf("outcome = %v, want OutcomeNoReply", res.Outcome)
	}
	if fs.count("u1", store.DirectionOut) != 0 {
		t.Errorf("no OUT row should be recorded for an empty reply")
	}
}

func TestProcessBlankTextIsNoReply(t *testing.T) {
	fs := &fakeStore{}
	fg := &fakeGateway{reply: "x"}
	o := newTestOrchestrator(t, fs, fg)

	res, err := o.Process(context.Background(), Inbound{UserID: "u1", Text: "   "})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoReply {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if len(fs.msgs) != 0 {
		t.Errorf("blank inbound should log nothing, got %d rows", len(fs.msgs))
	}
}

func TestNormalizeUserID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"whatsapp:+3361234", "+3361234"},
		{"+3361234", "+3361234"},
		{"  whatsapp:+1 ", "+1"},
		{"", "unknown"},
		{"   ", "unknown"},
	}
	for _, tt := range tests {
		if got := NormalizeUserID(tt.in); got != tt.want {
			t.Errorf("NormalizeUserID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClearWipesUser(t *testing.T) {
	fs := &fakeStore{}
	fg := &fakeGateway{reply: "ok"}
	o := newTestOrchestrator(t, fs, fg)
	ctx := context.Background()

	o.Process(ctx, Inbound{UserID: "whatsapp:u1", Text: "hello"})
	if err := o.Clear(ctx, "whatsapp:u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n := len(fs.msgs); n != 0 {
		t.Errorf("rows after clear = %d, want 0", n)
	}
}
