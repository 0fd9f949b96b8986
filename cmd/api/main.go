// Package main is the entry point for the realtime relay server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/realtime-relay/internal/analytics"
	"github.com/capitalize-ai/realtime-relay/internal/config"
	"github.com/capitalize-ai/realtime-relay/internal/handler"
	"github.com/capitalize-ai/realtime-relay/internal/llm"
	natsclient "github.com/capitalize-ai/realtime-relay/internal/nats"
	"github.com/capitalize-ai/realtime-relay/internal/responder"
	"github.com/capitalize-ai/realtime-relay/internal/rooms"
	"github.com/capitalize-ai/realtime-relay/internal/service"
	"github.com/capitalize-ai/realtime-relay/internal/store"
	"github.com/capitalize-ai/realtime-relay/pkg/logger"
	"github.com/capitalize-ai/realtime-relay/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var log *logger.Logger
	var err error
	if os.Getenv("ENV") == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting realtime relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "realtime-relay", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	directory := rooms.NewDirectory(log)
	var notifier rooms.Notifier = directory
	var natsHealth handler.Dependency

	// Fan room deliveries out over NATS when configured
	if cfg.NATSURL != "" {
		hostname, _ := os.Hostname()
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		natsClient, err := natsclient.Connect(connectCtx, natsclient.Config{
			URL:      cfg.NATSURL,
			Name:     "realtime-relay@" + hostname,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		cancel()
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		bridge := natsclient.NewBridge(natsClient.Conn(), directory, hostname, log)
		if err := bridge.Start(); err != nil {
			log.Error("failed to start room bridge", zap.Error(err))
			os.Exit(1)
		}
		defer bridge.Close()

		notifier = bridge
		natsHealth = natsClient
	}

	// Pick the responder once for the process lifetime
	var llmClient llm.Client
	if apiKey := cfg.LLMAPIKey(); apiKey != "" {
		llmClient, err = llm.NewClient(llm.Provider(cfg.LLMProvider), apiKey, cfg.LLMModel)
		if err != nil {
			log.Warn("failed to create LLM client, using echo responses", zap.Error(err))
			llmClient = nil
		}
	} else {
		log.Warn("no LLM API key set, using echo responses", zap.String("provider", cfg.LLMProvider))
	}

	// Initialize services
	conversations := store.NewMemoryStore()
	chatSvc := service.NewChatService(conversations, responder.Select(llmClient), notifier, cfg.HistoryWindow, log)
	log.Info("responder selected", zap.String("responder", chatSvc.Responder()))

	generator := analytics.NewGenerator(nil)
	scheduler := analytics.NewScheduler(cfg.BroadcastInterval, generator, notifier, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	realtime := handler.NewRealtimeHandler(directory, cfg.AllowedOrigins, log)

	router := handler.NewRouter(handler.Handlers{
		Health:    handler.NewHealthHandler(natsHealth, directory),
		Chat:      handler.NewChatHandler(chatSvc, log),
		Analytics: handler.NewAnalyticsHandler(generator),
		Realtime:  realtime,
	}, cfg.AllowedOrigins, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	server.RegisterOnShutdown(realtime.Close)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
