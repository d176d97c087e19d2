// Package twilio implements the Twilio Messaging channel (SMS / WhatsApp).
//
// Inbound arrives as a form-encoded webhook (From/Body/MessageSid) that must
// be acked fast; outbound goes through the Messages REST endpoint. The
// MessageSid rides along as the dedup key for Twilio's webhook retries.
package twilio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/courier/internal/bus"
	"github.com/nextlevelbuilder/courier/internal/channels"
)

// apiBaseOverride redirects Messages API calls in tests.
var apiBaseOverride string

const (
	apiBase     = "https://api.twilio.com/2010-04-01"
	sendTimeout = 15 * time.Second

	// Twilio caps at 1 msg/s per long code; keep a small burst for replies
	// landing together.
	sendRatePerSecond = 1
	sendBurst         = 3
)

// Config holds the Twilio credentials and addressing.
type Config struct {
	AccountSID     string
	AuthToken      string
	From           string // sending address, e.g. "whatsapp:+14155238886"
	PublicURL      string // external base URL for signature validation; empty disables it
	SendRatePerSec int    // outbound pacing; 0 uses the provider default
}

// Channel receives Twilio webhooks and sends through the Messages API.
// Without credentials it still accepts inbound, and sends become no-ops:
// useful behind a TwiML responder or in local runs.
type Channel struct {
	*channels.BaseChannel
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	guard   *channels.WebhookRateLimiter
}

// New creates the Twilio channel.
func New(cfg Config, router bus.MessageRouter) *Channel {
	perSec := cfg.SendRatePerSec
	if perSec <= 0 {
		perSec = sendRatePerSecond
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("twilio", router),
		cfg:         cfg,
		client:      &http.Client{Timeout: sendTimeout},
		limiter:     rate.NewLimiter(rate.Limit(perSec), sendBurst),
		guard:       channels.NewWebhookRateLimiter(),
	}
}

// Start marks the channel running. Inbound arrives via the mounted webhook,
// so there is no listener to open here.
func (c *Channel) Start(_ context.Context) error {
	if c.cfg.AccountSID == "" || c.cfg.AuthToken == "" {
		slog.Warn("twilio credentials missing, outbound sends disabled")
	}
	c.SetRunning(true)
	return nil
}

// Stop marks the channel stopped.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return nil
}

// WebhookPath is where the server mounts HandleWebhook.
func (c *Channel) WebhookPath() string { return "/webhook" }

// HandleWebhook processes one Twilio callback. The 204 ack is independent of
// downstream processing: the message is queued and generation happens on the
// workers.
func (c *Channel) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if c.cfg.AuthToken != "" && c.cfg.PublicURL != "" {
		sig := r.Header.Get("X-Twilio-Signature")
		if !ValidateSignature(c.cfg.AuthToken, c.cfg.PublicURL+r.URL.RequestURI(), r.PostForm, sig) {
			slog.Warn("twilio webhook signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	sid := r.PostFormValue("MessageSid")

	if !c.guard.Allow(from) {
		slog.Warn("twilio webhook rate limited", "from", from)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	slog.Info("twilio message received",
		"from", from,
		"sid", sid,
		"preview", channels.Truncate(body, 50),
	)

	// UserID drops the "whatsapp:" scheme; ChatID keeps the full address so
	// replies go back through the same transport.
	c.HandleMessage(channels.StripAddressPrefix(from), from, body, sid, map[string]string{
		"platform": "twilio",
	})

	w.WriteHeader(http.StatusNoContent)
}

// Send delivers one message through the Messages REST endpoint. Paced to the
// provider's per-number rate.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.cfg.AccountSID == "" || c.cfg.AuthToken == "" {
		slog.Debug("twilio send skipped, no credentials", "chat", msg.ChatID)
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("twilio send pacing: %w", err)
	}

	form := url.Values{}
	form.Set("To", msg.ChatID)
	form.Set("From", c.cfg.From)
	form.Set("Body", msg.Text)

	base := apiBase
	if apiBaseOverride != "" {
		base = apiBaseOverride
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", base, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio API status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	slog.Info("twilio message sent", "chat", msg.ChatID)
	return nil
}
