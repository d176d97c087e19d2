package bus

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestPublishConsumeRoundTrip(t *testing.T) {
	b := New(4)
	in := InboundMessage{Channel: "twilio", UserID: "u1", ChatID: "whatsapp:+111", Text: "hello", ExternalID: "sid-1"}
	b.PublishInbound(in)

	got, ok := b.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("ConsumeInbound returned ok=false")
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}

	out := OutboundMessage{Channel: "twilio", ChatID: "whatsapp:+111", Text: "hi"}
	b.PublishOutbound(out)
	gotOut, ok := b.ConsumeOutbound(context.Background())
	if !ok || gotOut != out {
		t.Errorf("outbound round trip: got %+v ok=%v", gotOut, ok)
	}
}

func TestConsumeReturnsFalseOnCancel(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := b.ConsumeInbound(ctx)
		done <- ok
	}()
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected ok=false after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ConsumeInbound did not return after cancel")
	}
}

func TestConsumeDrainsQueuedBeforeCancelCheck(t *testing.T) {
	b := New(8)
	for i := 0; i < 3; i++ {
		b.PublishInbound(InboundMessage{UserID: "u", Text: "m"})
	}
	if b.InboundDepth() != 3 {
		t.Fatalf("depth = %d, want 3", b.InboundDepth())
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, ok := b.ConsumeInbound(ctx); !ok {
			t.Fatalf("message %d: ok=false", i)
		}
	}
	if b.InboundDepth() != 0 {
		t.Errorf("depth after drain = %d, want 0", b.InboundDepth())
	}
}
