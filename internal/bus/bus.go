// Package bus routes messages between channel implementations and the
// dispatch workers. Channels publish inbound, workers consume inbound and
// publish outbound, the channel manager consumes outbound.
package bus

import "context"

// InboundMessage represents a message received from a channel.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	UserID     string            `json:"user_id"`               // normalized sender identity
	ChatID     string            `json:"chat_id"`               // reply target on the channel
	Text       string            `json:"text"`
	ExternalID string            `json:"external_id,omitempty"` // provider delivery id, dedup key
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a reply to be delivered to a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Text    string `json:"text"`
}

// MessageRouter abstracts inbound/outbound routing between channels and the
// dispatch workers, so both sides can be tested against fakes.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	ConsumeOutbound(ctx context.Context) (OutboundMessage, bool)
}

// MessageBus is the in-process MessageRouter. Queues are buffered so webhook
// handlers can ack without waiting for a worker; when a queue is full the
// publish blocks, trading latency for zero message loss.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a MessageBus with the given queue capacity per direction.
func New(queueSize int) *MessageBus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueSize),
		outbound: make(chan OutboundMessage, queueSize),
	}
}

// PublishInbound enqueues a message received from a channel.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until a message is available or ctx is done.
// The second return is false only on cancellation.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a reply for delivery.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// ConsumeOutbound blocks until a reply is available or ctx is done.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// InboundDepth reports the number of queued inbound messages.
func (b *MessageBus) InboundDepth() int { return len(b.inbound) }
