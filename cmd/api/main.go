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

	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/assist"
	"github.com/capitalize-ai/ev-service-portal/internal/backend"
	"github.com/capitalize-ai/ev-service-portal/internal/chat"
	"github.com/capitalize-ai/ev-service-portal/internal/config"
	"github.com/capitalize-ai/ev-service-portal/internal/handler"
	"github.com/capitalize-ai/ev-service-portal/internal/identity"
	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/middleware"
	"github.com/capitalize-ai/ev-service-portal/internal/push"
	"github.com/capitalize-ai/ev-service-portal/internal/service"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
	"github.com/capitalize-ai/ev-service-portal/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("backend_url", cfg.BackendURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ev-service-portal", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// REST backend, called with the token of the request being served
	client := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	}, middleware.BearerToken, log)

	store, err := identity.Open(ctx, cfg.IdentityPath)
	if err != nil {
		log.Fatal("failed to open identity store", zap.String("path", cfg.IdentityPath), zap.Error(err))
	}
	defer store.Close()

	// Push channel: NATS when configured, otherwise in-process
	var dial push.Dialer
	if cfg.NATSURL != "" {
		dial = push.NATSDialer(push.NATSConfig{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
	} else {
		log.Info("no NATS URL configured, using in-process push hub")
		dial = push.MemoryDialer(push.NewMemoryHub())
	}
	pool := push.NewPool(dial, log)
	defer pool.Close()

	// Reply suggestions
	var suggester *assist.Suggester
	if key := cfg.LLMKey(); key != "" {
		llm, err := assist.NewClient(assist.Provider(cfg.DefaultLLM), key)
		if err != nil {
			log.Warn("failed to create LLM client, suggestions disabled", zap.Error(err))
		} else {
			suggester = assist.NewSuggester(llm, assist.Options{Model: cfg.LLMModel}, log)
		}
	}

	registry := service.NewRegistry(service.RegistryOptions{
		Backend:   service.FromClient(client),
		Pool:      pool,
		Identity:  store,
		Suggester: suggester,
		Settings: service.Settings{
			PageSize: cfg.PageSize,
			Policy:   listview.Policy{ResetPageOnSizeChange: cfg.ResetPageOnSizeChange},
			Typing: chat.TypingConfig{
				Throttle: cfg.TypingThrottle,
				Idle:     cfg.TypingIdle,
				Backstop: cfg.TypingBackstop,
			},
			ProfileConcurrency: cfg.ProfileConcurrency,
		},
		IdleTTL: cfg.WorkspaceIdleTTL,
	}, log)
	defer registry.Close()
	go registry.Run(ctx, time.Minute)

	router := handler.NewRouter(handler.RouterOptions{
		Registry:          registry,
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Location:          loc,
		Checks: map[string]handler.Check{
			"identity": store.Ping,
		},
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error("server error", zap.Error(err))
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
