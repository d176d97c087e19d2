package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/courier/internal/bus"
	"github.com/nextlevelbuilder/courier/internal/channels"
	"github.com/nextlevelbuilder/courier/internal/channels/telegram"
	"github.com/nextlevelbuilder/courier/internal/channels/twilio"
	"github.com/nextlevelbuilder/courier/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/courier/internal/config"
	"github.com/nextlevelbuilder/courier/internal/dispatch"
	"github.com/nextlevelbuilder/courier/internal/gateway"
	"github.com/nextlevelbuilder/courier/internal/history"
	"github.com/nextlevelbuilder/courier/internal/orchestrator"
	"github.com/nextlevelbuilder/courier/internal/providers"
	"github.com/nextlevelbuilder/courier/internal/server"
	"github.com/nextlevelbuilder/courier/internal/store/sqlite"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if cfg.Generation.APIKey == "" {
		slog.Warn("no generation API key configured, every reply will be the fallback")
	}

	messages, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open message store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer messages.Close()
	if err := messages.Bootstrap(context.Background()); err != nil {
		slog.Error("failed to bootstrap message store", "error", err)
		os.Exit(1)
	}

	router := bus.New(cfg.Dispatch.QueueSize)

	backend := providers.NewOpenAIBackend(cfg.Generation.APIKey, cfg.Generation.APIBase, cfg.Generation.Model).
		WithRetryConfig(providers.RetryConfig{
			MaxRetries: cfg.Generation.MaxRetries,
			Backoff:    500 * time.Millisecond,
			RetryIf:    providers.Retryable,
		})
	gw := gateway.New(backend, gateway.Options{
		SystemDirective: cfg.SystemDirective(),
		Timeout:         cfg.Generation.Timeout(),
		MaxTokens:       cfg.Generation.MaxTokens,
		Temperature:     cfg.Generation.Temperature,
		Shaper: gateway.Shaper{
			MaxChars:  cfg.Style.ReplyMaxChars,
			Signature: cfg.Style.Signature,
		},
	})

	window := history.NewWindow(messages, cfg.History.Window)
	orch, err := orchestrator.New(messages, window, gw)
	if err != nil {
		slog.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	pool := dispatch.NewPool(router, orch, cfg.Dispatch.Workers)
	manager := channels.NewManager(router)
	httpServer := server.New(server.Options{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		InternalToken: cfg.Server.InternalToken,
	}, manager, messages)

	registerChannels(cfg, router, manager, httpServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	pool.Start(ctx)
	if err := manager.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}

	slog.Info("courier starting",
		"version", Version,
		"addr", cfg.Server.Host,
		"port", cfg.Server.Port,
		"channels", manager.EnabledChannels(),
		"workers", cfg.Dispatch.Workers,
		"history_window", cfg.History.Window,
	)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Start(runCtx)
	})
	g.Go(func() error {
		<-runCtx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		manager.StopAll(stopCtx)
		pool.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
	slog.Info("courier stopped")
}

// registerChannels builds the enabled channels from config. The Twilio
// channel also mounts its webhook on the HTTP server.
func registerChannels(cfg *config.Config, router bus.MessageRouter, manager *channels.Manager, httpServer *server.Server) {
	if cfg.Channels.Twilio.Enabled {
		publicURL := ""
		if cfg.Channels.Twilio.VerifySignature {
			publicURL = cfg.Channels.Twilio.PublicURL
		}
		tw := twilio.New(twilio.Config{
			AccountSID:     cfg.Channels.Twilio.AccountSID,
			AuthToken:      cfg.Channels.Twilio.AuthToken,
			From:           cfg.Channels.Twilio.From,
			PublicURL:      publicURL,
			SendRatePerSec: cfg.Channels.Twilio.SendRatePerSec,
		}, router)
		manager.RegisterChannel(tw)
		httpServer.MountWebhooks(tw)
		slog.Info("twilio channel enabled")
	}

	if cfg.Channels.Telegram.Enabled {
		tg, err := telegram.New(telegram.Config{Token: cfg.Channels.Telegram.Token}, router)
		if err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else {
			manager.RegisterChannel(tg)
			slog.Info("telegram channel enabled")
		}
	}

	if cfg.Channels.WhatsApp.Enabled {
		wa, err := whatsapp.New(whatsapp.Config{BridgeURL: cfg.Channels.WhatsApp.BridgeURL}, router)
		if err != nil {
			slog.Error("failed to initialize whatsapp channel", "error", err)
		} else {
			manager.RegisterChannel(wa)
			slog.Info("whatsapp channel enabled")
		}
	}
}
