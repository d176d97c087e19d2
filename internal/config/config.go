package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the Courier relay.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Store      StoreConfig      `json:"store"`
	History    HistoryConfig    `json:"history"`
	Generation GenerationConfig `json:"generation"`
	Style      StyleConfig      `json:"style"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Channels   ChannelsConfig   `json:"channels"`
}

// ServerConfig configures the HTTP surface.
// InternalToken guards /internal/send and is NEVER read from the config
// file (secret) — only from env COURIER_INTERNAL_TOKEN.
type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	InternalToken string `json:"-"`
}

// StoreConfig configures the message log.
type StoreConfig struct {
	Path string `json:"path"` // sqlite database file
}

// HistoryConfig bounds the conversation context window.
type HistoryConfig struct {
	Window int `json:"window"` // max turns supplied to generation
}

// GenerationConfig configures the completion backend and the gateway
// retry budget around it. APIKey comes from env COURIER_OPENAI_API_KEY only.
type GenerationConfig struct {
	APIKey           string  `json:"-"`
	APIBase          string  `json:"api_base,omitempty"`
	Model            string  `json:"model"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
	MaxRetries       int     `json:"max_retries"` // backend-level automatic retries
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	SystemPromptFile string  `json:"system_prompt_file,omitempty"`
}

// Timeout returns the per-call generation deadline.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// StyleConfig shapes outgoing replies.
type StyleConfig struct {
	ReplyMaxChars int    `json:"reply_max_chars"`
	Signature     string `json:"signature,omitempty"`
}

// DispatchConfig sizes the worker pool draining inbound messages.
// The queue is deliberately large rather than strictly bounded: sustained
// overload degrades to latency, not message loss, and the webhook ack does
// not wait on processing.
type DispatchConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
}

// ChannelsConfig holds per-channel settings. Exactly one channel is the
// default outbound target; stored messages are tagged with it.
type ChannelsConfig struct {
	Default  string         `json:"default"`
	Twilio   TwilioConfig   `json:"twilio,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	WhatsApp WhatsAppConfig `json:"whatsapp,omitempty"`
}

// TwilioConfig configures the Twilio WhatsApp webhook + REST channel.
// AccountSID/AuthToken come from env only (COURIER_TWILIO_ACCOUNT_SID,
// COURIER_TWILIO_AUTH_TOKEN). Without credentials the channel still runs
// and sends become logged no-ops, so local dev works end to end.
type TwilioConfig struct {
	Enabled         bool   `json:"enabled"`
	AccountSID      string `json:"-"`
	AuthToken       string `json:"-"`
	From            string `json:"from,omitempty"`       // e.g. "whatsapp:+14155238886"
	VerifySignature bool   `json:"verify_signature"`     // validate X-Twilio-Signature
	PublicURL       string `json:"public_url,omitempty"` // external webhook URL, required for verification behind proxies
	SendRatePerSec  int    `json:"send_rate_per_sec,omitempty"`
}

// TelegramConfig configures the Telegram long-polling channel.
// Token comes from env COURIER_TELEGRAM_TOKEN only.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"-"`
}

// WhatsAppConfig configures the websocket bridge channel.
type WhatsAppConfig struct {
	Enabled   bool   `json:"enabled"`
	BridgeURL string `json:"bridge_url,omitempty"`
}

// Default returns a Config with documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Store: StoreConfig{
			Path: "data/courier.db",
		},
		History: HistoryConfig{
			Window: 10,
		},
		Generation: GenerationConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 8,
			MaxRetries:     1,
			MaxTokens:      180,
			Temperature:    0.3,
		},
		Style: StyleConfig{
			ReplyMaxChars: 400,
		},
		Dispatch: DispatchConfig{
			Workers:   4,
			QueueSize: 1024,
		},
		Channels: ChannelsConfig{
			Default: "twilio",
			Twilio: TwilioConfig{
				SendRatePerSec: 1,
			},
		},
	}
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.History.Window <= 0 {
		return fmt.Errorf("history.window must be positive, got %d", c.History.Window)
	}
	if c.Generation.TimeoutSeconds <= 0 {
		return fmt.Errorf("generation.timeout_seconds must be positive, got %d", c.Generation.TimeoutSeconds)
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation.max_retries must not be negative")
	}
	if c.Style.ReplyMaxChars < 2 {
		return fmt.Errorf("style.reply_max_chars too small: %d", c.Style.ReplyMaxChars)
	}
	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers must be positive, got %d", c.Dispatch.Workers)
	}
	switch c.Channels.Default {
	case "twilio", "telegram", "whatsapp":
	default:
		return fmt.Errorf("channels.default %q unknown (want twilio, telegram or whatsapp)", c.Channels.Default)
	}
	if c.Channels.Twilio.VerifySignature && c.Channels.Twilio.AuthToken == "" {
		return fmt.Errorf("channels.twilio.verify_signature requires COURIER_TWILIO_AUTH_TOKEN")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return fmt.Errorf("channels.telegram.enabled requires COURIER_TELEGRAM_TOKEN")
	}
	if c.Channels.WhatsApp.Enabled && c.Channels.WhatsApp.BridgeURL == "" {
		return fmt.Errorf("channels.whatsapp.enabled requires bridge_url")
	}
	return nil
}
