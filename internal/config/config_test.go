package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.Window != 10 {
		t.Errorf("history window = %d, want 10", cfg.History.Window)
	}
	if cfg.Dispatch.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Dispatch.Workers)
	}
	if cfg.Generation.TimeoutSeconds != 8 {
		t.Errorf("timeout = %d, want 8", cfg.Generation.TimeoutSeconds)
	}
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		// json5: comments allowed
		server: { port: 8080 },
		style: { reply_max_chars: 200, signature: "— Bot" },
		channels: { default: "telegram" },
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("COURIER_PORT", "9090")
	t.Setenv("COURIER_TELEGRAM_TOKEN", "tok-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("env should override file: port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Style.ReplyMaxChars != 200 {
		t.Errorf("reply_max_chars = %d, want 200", cfg.Style.ReplyMaxChars)
	}
	if cfg.Style.Signature != "— Bot" {
		t.Errorf("signature = %q", cfg.Style.Signature)
	}
	if cfg.Channels.Telegram.Token != "tok-123" {
		t.Errorf("telegram token not read from env")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.History.Window = 0 }},
		{"zero workers", func(c *Config) { c.Dispatch.Workers = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown channel", func(c *Config) { c.Channels.Default = "smoke" }},
		{"verify without token", func(c *Config) { c.Channels.Twilio.VerifySignature = true }},
		{"telegram without token", func(c *Config) { c.Channels.Telegram.Enabled = true }},
		{"tiny reply budget", func(c *Config) { c.Style.ReplyMaxChars = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
