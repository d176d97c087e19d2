package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/courier/internal/bus"
	"github.com/nextlevelbuilder/courier/internal/channels"
)

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, bus.New(8)); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestHandleMessagePublishesInbound(t *testing.T) {
	router := bus.New(8)
	c := &Channel{BaseChannel: channels.NewBaseChannel("telegram", router)}

	c.handleMessage(&telego.Message{
		MessageID: 77,
		From:      &telego.User{ID: 12345, Username: "alice"},
		Chat:      telego.Chat{ID: -100200},
		Text:      "hello bot",
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := router.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound published")
	}
	if msg.Channel != "telegram" || msg.UserID != "12345" || msg.ChatID != "-100200" {
		t.Errorf("inbound = %+v", msg)
	}
	if msg.ExternalID != "tg--100200-77" {
		t.Errorf("external id = %q", msg.ExternalID)
	}
}

func TestHandleMessageSkipsEmpty(t *testing.T) {
	router := bus.New(8)
	c := &Channel{BaseChannel: channels.NewBaseChannel("telegram", router)}

	c.handleMessage(&telego.Message{From: &telego.User{ID: 1}, Chat: telego.Chat{ID: 2}})
	c.handleMessage(&telego.Message{Chat: telego.Chat{ID: 2}, Text: "no sender"})

	if router.InboundDepth() != 0 {
		t.Errorf("empty or senderless messages should publish nothing")
	}
}

func TestSendWhenStopped(t *testing.T) {
	c := &Channel{BaseChannel: channels.NewBaseChannel("telegram", bus.New(8))}
	err := c.Send(context.Background(), bus.OutboundMessage{ChatID: "1", Text: "x"})
	if err == nil {
		t.Error("send on stopped channel should fail")
	}
}

func TestParseChatID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12345", 12345, false},
		{"-100200300", -100200300, false},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseChatID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseChatID(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseChatID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
