package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/courier/internal/bus"
)

// Manager owns the registered channels, their lifecycle, and the outbound
// delivery loop that routes generated replies to the right channel.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	router   bus.MessageRouter

	deliverCancel context.CancelFunc
	deliverDone   chan struct{}
}

// NewManager creates a Manager. Channels are registered via RegisterChannel.
func NewManager(router bus.MessageRouter) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		router:   router,
	}
}

// RegisterChannel adds a channel under its own name.
func (m *Manager) RegisterChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// EnabledChannels returns the names of all registered channels.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// Status reports the running state of every registered channel.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}

// StartAll starts every registered channel and the outbound delivery loop.
// A channel that fails to start is logged and skipped; the rest keep going.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	deliverCtx, cancel := context.WithCancel(ctx)
	m.deliverCancel = cancel
	m.deliverDone = make(chan struct{})
	go m.deliverOutbound(deliverCtx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	for name, ch := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll stops the delivery loop and every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deliverCancel != nil {
		m.deliverCancel()
		<-m.deliverDone
		m.deliverCancel = nil
	}

	for name, ch := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

// deliverOutbound consumes replies from the bus and hands each to its
// channel. Delivery is best-effort: a failed send is logged, never retried
// into the store, so the conversation log keeps the reply either way.
func (m *Manager) deliverOutbound(ctx context.Context) {
	defer close(m.deliverDone)
	slog.Info("outbound delivery started")

	for {
		msg, ok := m.router.ConsumeOutbound(ctx)
		if !ok {
			slog.Info("outbound delivery stopped")
			return
		}

		m.mu.RLock()
		ch, exists := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			slog.Warn("no channel for outbound message", "channel", msg.Channel)
			continue
		}

		if err := ch.Send(ctx, msg); err != nil {
			slog.Error("outbound send failed",
				"channel", msg.Channel,
				"chat", msg.ChatID,
				"error", err,
			)
		}
	}
}

// SendTo delivers text to a chat on a named channel, bypassing the bus.
// Used by the operator send surface.
func (m *Manager) SendTo(ctx context.Context, channelName, chatID, text string) error {
	m.mu.RLock()
	ch, exists := m.channels[channelName]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}
	return ch.Send(ctx, bus.OutboundMessage{Channel: channelName, ChatID: chatID, Text: text})
}
