// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/halodesk/support-platform/internal/bot"
	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/clock"
	"github.com/halodesk/support-platform/internal/config"
	"github.com/halodesk/support-platform/internal/handler"
	"github.com/halodesk/support-platform/internal/middleware"
	"github.com/halodesk/support-platform/internal/realtime"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/internal/store/memory"
	"github.com/halodesk/support-platform/internal/store/sqlite"
	"github.com/halodesk/support-platform/internal/whatsapp"
	"github.com/halodesk/support-platform/pkg/logger"
	"github.com/halodesk/support-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Clock pinned to the configured timezone
	clk, err := clock.NewSystem(cfg.Timezone)
	if err != nil {
		log.Error("invalid timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
		os.Exit(1)
	}

	// Storage
	var st *store.Store
	if cfg.SQLitePath != "" {
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Error("failed to open database", zap.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		st = sqlite.New(db)
		log.Info("using sqlite storage", zap.String("path", cfg.SQLitePath))
	} else {
		st = memory.New()
		log.Warn("using in-memory storage, data will not survive restarts")
	}

	// Realtime: local websocket hub, optionally bridged onto NATS so
	// sibling nodes see the same events.
	hub := realtime.NewHub()
	var fanout realtime.Fanout = hub
	var natsFanout *realtime.NATSFanout
	if cfg.NATSEnabled {
		natsFanout, err = realtime.ConnectNATS(realtime.NATSConfig{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsFanout.Close()
		fanout = realtime.Tee{hub, natsFanout}
	}

	// Outbound WhatsApp channel
	channel, err := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL:       cfg.WhatsAppBaseURL,
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
	}, log)
	if err != nil {
		log.Error("failed to create WhatsApp client", zap.Error(err))
		os.Exit(1)
	}

	// Bot engine
	engine := buildBotEngine(cfg, st, log)
	log.Info("bot engine selected", zap.String("engine", engine.Name()))

	// Core services
	notifier := chat.NewNotifier(st.Notifications, st.Users, fanout, clk, log)
	sm := chat.NewStateMachine(st.Conversations, fanout, notifier, clk, log)
	dispatcher := chat.NewDispatcher(st, channel, fanout, sm, engine, notifier, clk, cfg.BotUserID, log)
	presence := chat.NewPresenceTracker(clk, cfg.PresenceWindow)

	// Background cleanup of stale conversations
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	cleanup := chat.NewCleanupScheduler(st, sm, notifier, clk, cfg.CleanupInterval, cfg.ConversationMaxAge, cfg.CleanupWarnLead, log)
	go cleanup.Run(cleanupCtx)

	// Handlers
	healthHandler := handler.NewHealthHandler(natsFanout)
	webhookHandler := handler.NewWebhookHandler(dispatcher, cfg.WhatsAppVerifyToken, log)
	conversationHandler := handler.NewConversationHandler(st, dispatcher, sm, log)
	messageHandler := handler.NewMessageHandler(dispatcher, log)
	notificationHandler := handler.NewNotificationHandler(st, notifier, log)
	presenceHandler := handler.NewPresenceHandler(presence)
	wsHandler := handler.NewWSHandler(hub, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Provider webhook (token-verified, not JWT)
	r.Route("/webhook", func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Get("/", webhookHandler.Verify)
		r.Post("/", webhookHandler.Receive)
	})

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/request-agent", conversationHandler.RequestAgent)
				r.Post("/assign", conversationHandler.Assign)
				r.Post("/close", conversationHandler.Close)
				r.Post("/incomplete", conversationHandler.MarkIncomplete)

				// Messages
				r.Get("/messages", conversationHandler.ListMessages)
				r.Post("/messages", conversationHandler.SendMessage)
			})
		})

		// Message receipts
		r.Route("/messages/{id}", func(r chi.Router) {
			r.Post("/delivered", messageHandler.MarkDelivered)
			r.Post("/read", messageHandler.MarkRead)
		})

		// Notifications
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Post("/{id}/read", notificationHandler.MarkRead)
		})

		// Presence
		r.Route("/presence", func(r chi.Router) {
			r.Post("/heartbeat", presenceHandler.Heartbeat)
			r.Post("/offline", presenceHandler.Offline)
			r.Get("/online", presenceHandler.Online)
		})

		// Realtime stream
		r.Get("/ws", wsHandler.Serve)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stopCleanup()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// buildBotEngine picks the configured engine, falling back to rules when the
// requested LLM cannot be constructed.
func buildBotEngine(cfg *config.Config, st *store.Store, log *logger.Logger) bot.Engine {
	switch cfg.BotEngine {
	case "anthropic":
		completer, err := bot.NewAnthropicCompleter(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("anthropic engine unavailable, falling back to rules", zap.Error(err))
			return bot.NewRuleEngine()
		}
		return bot.NewLLMEngine(completer, st.Messages, "", log)
	case "openai":
		completer, err := bot.NewOpenAICompleter(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("openai engine unavailable, falling back to rules", zap.Error(err))
			return bot.NewRuleEngine()
		}
		return bot.NewLLMEngine(completer, st.Messages, "", log)
	default:
		return bot.NewRuleEngine()
	}
}
