package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error — defaults plus env are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	envStr("COURIER_HOST", &c.Server.Host)
	envInt("COURIER_PORT", &c.Server.Port)
	envStr("COURIER_INTERNAL_TOKEN", &c.Server.InternalToken)

	envStr("COURIER_DB_PATH", &c.Store.Path)
	envInt("COURIER_HISTORY_WINDOW", &c.History.Window)

	envStr("COURIER_OPENAI_API_KEY", &c.Generation.APIKey)
	// Accept the bare OPENAI_API_KEY too, the way the provider SDKs do.
	if c.Generation.APIKey == "" {
		envStr("OPENAI_API_KEY", &c.Generation.APIKey)
	}
	envStr("COURIER_OPENAI_API_BASE", &c.Generation.APIBase)
	envStr("COURIER_OPENAI_MODEL", &c.Generation.Model)
	envInt("COURIER_OPENAI_TIMEOUT", &c.Generation.TimeoutSeconds)
	envInt("COURIER_OPENAI_MAX_RETRIES", &c.Generation.MaxRetries)
	envInt("COURIER_OPENAI_MAX_TOKENS", &c.Generation.MaxTokens)

	envInt("COURIER_REPLY_MAX_CHARS", &c.Style.ReplyMaxChars)
	envStr("COURIER_SIGNATURE", &c.Style.Signature)

	envInt("COURIER_WORKERS", &c.Dispatch.Workers)

	envStr("COURIER_DEFAULT_CHANNEL", &c.Channels.Default)

	envBool("COURIER_TWILIO_ENABLED", &c.Channels.Twilio.Enabled)
	envStr("COURIER_TWILIO_ACCOUNT_SID", &c.Channels.Twilio.AccountSID)
	envStr("COURIER_TWILIO_AUTH_TOKEN", &c.Channels.Twilio.AuthToken)
	envStr("COURIER_TWILIO_FROM", &c.Channels.Twilio.From)
	envBool("COURIER_TWILIO_VERIFY_SIGNATURE", &c.Channels.Twilio.VerifySignature)
	envStr("COURIER_TWILIO_PUBLIC_URL", &c.Channels.Twilio.PublicURL)

	envBool("COURIER_TELEGRAM_ENABLED", &c.Channels.Telegram.Enabled)
	envStr("COURIER_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)

	envBool("COURIER_WHATSAPP_ENABLED", &c.Channels.WhatsApp.Enabled)
	envStr("COURIER_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
}

// SystemDirective resolves the generation system prompt: inline value first,
// then prompt file, then a built-in default.
func (c *Config) SystemDirective() string {
	if c.Generation.SystemPrompt != "" {
		return c.Generation.SystemPrompt
	}
	if c.Generation.SystemPromptFile != "" {
		if data, err := os.ReadFile(c.Generation.SystemPromptFile); err == nil {
			if s := string(data); len(s) > 0 {
				return s
			}
		}
	}
	return "You are a simple, warm companion. Short sentences. Friendly tone."
}
