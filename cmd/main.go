package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-relay/auth"
	"chat-relay/infrastructure/web"
	"chat-relay/infrastructure/ws"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for HTTP and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := newLogger(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories
	users, err := repositories.NewUserRepository(db)
	if err != nil {
		return fmt.Errorf("user repository: %w", err)
	}
	defer func() { _ = users.Close() }()
	groups, err := repositories.NewGroupRepository(db)
	if err != nil {
		return fmt.Errorf("group repository: %w", err)
	}
	defer func() { _ = groups.Close() }()
	messages, err := repositories.NewMessageRepository(db, log, config.LimitMessages)
	if err != nil {
		return fmt.Errorf("message repository: %w", err)
	}
	defer func() { _ = messages.Close() }()

	// 4. Core services & transport
	sessions := auth.NewSessions(config.AuthSecret, config.AuthTokenDuration)
	registry := runtime.NewRegistry(log)
	router := services.NewRouter(log, users, groups, messages, registry)
	authService := services.NewAuthService(users, sessions)
	wsHandler := ws.NewHandler(log, sessions, router, registry, config.ConnectionBufferSize)
	api := web.NewAPI(log, authService, sessions, users, messages, wsHandler)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Background workers
	sup := workers.NewSupervisor(log)
	sup.Add(workers.NewBadgerGC(db, log, config.GCInterval))
	go sup.Run(ctx)

	// 7. HTTP Server Setup
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := web.CreateServer(address, api.Routes())

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown was not clean", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

// newLogger builds a text slog logger at the configured level,
// defaulting to info on unknown values.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
