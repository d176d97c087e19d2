// Package whatsapp implements the WhatsApp bridge channel. The bridge
// (whatsapp-web.js based) speaks the WhatsApp protocol; this channel
// exchanges JSON frames with it over a WebSocket and reconnects on failure.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/courier/internal/bus"
	"github.com/nextlevelbuilder/courier/internal/channels"
)

// Config holds the bridge connection settings.
type Config struct {
	BridgeURL string
}

// Channel connects to a WhatsApp bridge via WebSocket.
type Channel struct {
	*channels.BaseChannel
	cfg    Config
	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// bridgeFrame is the JSON envelope exchanged with the bridge.
type bridgeFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	From    string `json:"from,omitempty"`
	Chat    string `json:"chat,omitempty"`
	To      string `json:"to,omitempty"`
	Content string `json:"content,omitempty"`
}

// New creates the WhatsApp bridge channel.
func New(cfg Config, router bus.MessageRouter) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", router),
		cfg:         cfg,
	}, nil
}

// Start connects to the bridge and begins listening. A failed initial dial
// is not fatal: the listen loop keeps reconnecting.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.cfg.BridgeURL)
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}
	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop closes the bridge connection.
func (c *Channel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.SetRunning(false)
	return nil
}

// Send writes one message frame to the bridge.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}
	data, err := json.Marshal(bridgeFrame{Type: "message", To: msg.ChatID, Content: msg.Text})
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

func (c *Channel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.cfg.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.cfg.BridgeURL)
	return nil
}

// listenLoop reads frames from the bridge with exponential reconnect backoff.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}
			backoff = time.Second
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp read error, will reconnect", "error", err)
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid whatsapp bridge frame", "error", err)
			continue
		}
		if frame.Type == "message" {
			c.handleFrame(frame)
		}
	}
}

// handleFrame publishes one inbound bridge message. The bridge message id is
// the dedup key: bridges re-emit frames after reconnects.
func (c *Channel) handleFrame(frame bridgeFrame) {
	if frame.From == "" {
		return
	}
	chatID := frame.Chat
	if chatID == "" {
		chatID = frame.From
	}

	slog.Debug("whatsapp message received",
		"sender", frame.From,
		"chat", chatID,
		"preview", channels.Truncate(frame.Content, 50),
	)

	c.HandleMessage(channels.StripAddressPrefix(frame.From), chatID, frame.Content, frame.ID, map[string]string{
		"platform": "whatsapp",
	})
}
