// Package telegram implements the Telegram Bot channel using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/courier/internal/bus"
	"github.com/nextlevelbuilder/courier/internal/channels"
)

const pollTimeout = 30

// Config holds the Telegram bot settings.
type Config struct {
	Token string
}

// Channel connects to the Telegram Bot API via long polling. Updates carry a
// per-chat message ID, which becomes the dedup key downstream.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates the Telegram channel.
func New(cfg Config, router bus.MessageRouter) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", router),
		bot:         bot,
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        pollTimeout,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()
	return nil
}

// Stop cancels long polling and waits for the poll goroutine so Telegram
// releases the getUpdates lock before a new instance starts.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers a reply to a Telegram chat.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", msg.ChatID, err)
	}
	_, err = c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Text))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (c *Channel) handleMessage(message *telego.Message) {
	if message.From == nil || message.Text == "" {
		return
	}

	userID := fmt.Sprintf("%d", message.From.ID)
	chatID := fmt.Sprintf("%d", message.Chat.ID)
	// Chat+message IDs are unique per bot, so redelivered updates dedup
	// the same way provider webhook retries do.
	externalID := fmt.Sprintf("tg-%d-%d", message.Chat.ID, message.MessageID)

	slog.Debug("telegram message received",
		"chat_id", message.Chat.ID,
		"user_id", message.From.ID,
		"preview", channels.Truncate(message.Text, 50),
	)

	c.HandleMessage(userID, chatID, message.Text, externalID, map[string]string{
		"platform": "telegram",
	})
}

func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}
