// Package channels connects messaging transports (Twilio, Telegram, a
// WhatsApp bridge) to the relay. Channels publish inbound messages to the
// bus; the Manager routes generated replies back to the right channel.
package channels

import (
	"context"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/courier/internal/bus"
)

// Channel is a messaging transport. Implementations receive messages from a
// platform and deliver replies back to it.
type Channel interface {
	// Name returns the channel identifier (e.g. "twilio", "telegram").
	Name() string

	// Start begins receiving messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is actively receiving.
	IsRunning() bool
}

// WebhookChannel is a Channel that receives inbound traffic over HTTP.
// The server mounts its handler instead of the channel opening a listener.
type WebhookChannel interface {
	Channel
	// WebhookPath is the route the handler should be mounted at.
	WebhookPath() string
	// HandleWebhook processes one provider callback. It must ack quickly:
	// the message goes to the bus and generation happens on the workers.
	HandleWebhook(w http.ResponseWriter, r *http.Request)
}

// BaseChannel carries the state every channel implementation shares.
type BaseChannel struct {
	name    string
	router  bus.MessageRouter
	running bool
}

// NewBaseChannel creates a BaseChannel publishing to the given router.
func NewBaseChannel(name string, router bus.MessageRouter) *BaseChannel {
	return &BaseChannel{name: name, router: router}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning reports whether the channel is receiving.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Router returns the message router.
func (c *BaseChannel) Router() bus.MessageRouter { return c.router }

// HandleMessage publishes one received message to the bus. This is the
// standard path for channels to forward inbound traffic; blank text is
// forwarded as-is and filtered downstream.
func (c *BaseChannel) HandleMessage(userID, chatID, text, externalID string, metadata map[string]string) {
	c.router.PublishInbound(bus.InboundMessage{
		Channel:    c.name,
		UserID:     userID,
		ChatID:     chatID,
		Text:       text,
		ExternalID: externalID,
		Metadata:   metadata,
	})
}

// Truncate shortens a string to maxLen bytes for log lines.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// StripAddressPrefix removes a provider address scheme like "whatsapp:"
// from an identifier.
func StripAddressPrefix(id string) string {
	if i := strings.IndexByte(id, ':'); i > 0 {
		return id[i+1:]
	}
	return id
}
