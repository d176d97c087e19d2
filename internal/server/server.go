// Package server exposes the relay's HTTP surface: provider webhooks, the
// health probe, and the operator send endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/courier/internal/channels"
	"github.com/nextlevelbuilder/courier/internal/store"
)

// Options configures the Server.
type Options struct {
	Host          string
	Port          int
	InternalToken string // guards /internal/send; empty disables the endpoint
}

// Server hosts webhook channels and the operator endpoints.
type Server struct {
	opts       Options
	manager    *channels.Manager
	messages   store.MessageStore
	mux        *http.ServeMux
	httpServer *http.Server
}

// New creates a Server. Webhook channels are mounted via MountWebhooks
// before Start.
func New(opts Options, manager *channels.Manager, messages store.MessageStore) *Server {
	s := &Server{
		opts:     opts,
		manager:  manager,
		messages: messages,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /internal/send", s.handleInternalSend)
	return s
}

// MountWebhooks registers each channel's webhook handler on the mux.
func (s *Server) MountWebhooks(chs ...channels.WebhookChannel) {
	for _, ch := range chs {
		path := ch.WebhookPath()
		slog.Info("mounting webhook", "channel", ch.Name(), "path", path)
		s.mux.HandleFunc(path, ch.HandleWebhook)
	}
}

// Handler returns the full middleware-wrapped handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return withRequestLog(s.mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http server starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// withRequestLog tags every request with a short id and logs its latency.
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()[:8]
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// internalSendRequest is the operator send payload.
type internalSendRequest struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Text    string `json:"text"`
}

// handleInternalSend pushes an operator-authored message to a user. The text
// is logged as an outbound turn so the next generation sees it in context.
func (s *Server) handleInternalSend(w http.ResponseWriter, r *http.Request) {
	if s.opts.InternalToken == "" {
		writeError(w, http.StatusNotFound, "internal send disabled")
		return
	}
	token := r.Header.Get("X-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.InternalToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "bad token")
		return
	}

	var req internalSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)

	if r.URL.Query().Get("nollm") == "1" {
		s.handleLoopback(w, r, req)
		return
	}

	if req.To == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "to and text are required")
		return
	}

	channelName := req.Channel
	if channelName == "" {
		if names := s.manager.EnabledChannels(); len(names) == 1 {
			channelName = names[0]
		} else {
			writeError(w, http.StatusBadRequest, "channel is required")
			return
		}
	}

	if err := s.manager.SendTo(r.Context(), channelName, req.To, req.Text); err != nil {
		slog.Error("internal send failed", "channel", channelName, "to", req.To, "error", err)
		writeError(w, http.StatusBadGateway, "send failed")
		return
	}

	userID := channels.StripAddressPrefix(req.To)
	if _, err := s.messages.Append(r.Context(), userID, store.DirectionOut, req.Text, "", channelName); err != nil {
		// Delivered but not logged: report success, the log is advisory here.
		slog.Error("internal send not logged", "user", userID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "channel": channelName})
}

// handleLoopback measures the relay's non-generation overhead. The text is
// logged as a normal IN/OUT pair with a fixed echo reply; no backend call,
// no channel delivery.
func (s *Server) handleLoopback(w http.ResponseWriter, r *http.Request, req internalSendRequest) {
	start := time.Now()

	userID := channels.StripAddressPrefix(req.To)
	if userID == "" {
		userID = "local"
	}
	text := req.Text
	if text == "" {
		text = "ping"
	}
	reply := "(NO-LLM) " + text

	if _, err := s.messages.Append(r.Context(), userID, store.DirectionIn, text, "", "internal"); err != nil {
		writeError(w, http.StatusInternalServerError, "log inbound failed")
		return
	}
	if _, err := s.messages.Append(r.Context(), userID, store.DirectionOut, reply, "", "internal"); err != nil {
		writeError(w, http.StatusInternalServerError, "log outbound failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"reply":  reply,
		"ms":     time.Since(start).Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
