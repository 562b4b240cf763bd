package main

import (
	"context"
	"fmt"
	"log/slog"
	"moonshop/auth"
	"moonshop/infrastructure/http/server"
	"moonshop/internal"
	"moonshop/moderation"
	"moonshop/repositories"
	"moonshop/runtime"
	"moonshop/runtime/workers"
	"moonshop/services"
	"moonshop/sink"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories
	messageRepository, err := repositories.NewMessageRepository(db, log)
	if err != nil {
		return err
	}
	defer messageRepository.Close()
	userRepository, err := repositories.NewUserRepository(db)
	if err != nil {
		return err
	}
	defer userRepository.Close()
	notificationRepository, err := repositories.NewNotificationRepository(db)
	if err != nil {
		return err
	}
	defer notificationRepository.Close()

	// 4. Services
	tokens := auth.NewTokenManager(config.JwtSecret, config.AuthTokenDuration)
	chatService := services.NewChatService(messageRepository, userRepository)
	authService := services.NewAuthService(userRepository, tokens)
	notificationService := services.NewNotificationService(notificationRepository, config.NotificationLimit)

	// 5. Relay
	notificationSink := sink.NewNotificationSink(config.NotificationBuffer)
	registry := runtime.NewRegistry()
	relay := runtime.NewRelay(registry, messageRepository, notificationSink, log)
	if config.AuthRequired {
		relay.WithTokenVerifier(tokens)
	}
	if config.CensoredDir != "" {
		moderator, err := newModerator(config, log)
		if err != nil {
			return err
		}
		relay.WithModerator(moderator)
	}

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewNotificationWorker(notificationSink.Events, userRepository, notificationService, log),
		workers.NewChannelCapacityWorker(log, []workers.NamedChannel{
			{Name: "notifications", Channel: notificationSink.Events},
		}, config.MetricInterval, config.LowCapacityThreshold),
		workers.NewProcessHealthWorker(log, registry, config.MetricInterval),
	)
	workerCtx, stopWorkers := context.WithCancel(ctx)
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(workerCtx)
		close(supervisorDone)
	}()
	defer func() {
		stopWorkers()
		<-supervisorDone
	}()

	// 8. HTTP & WebSocket
	origins := internal.SplitOrigins(config.AllowedOrigins)
	handler := server.NewRouter(server.Handlers{
		Chat:         server.NewChatHandler(chatService, log),
		Auth:         server.NewAuthHandler(authService, log),
		Notification: server.NewNotificationHandler(notificationService, log),
		Websocket:    server.NewWebsocketHandler(relay, origins, config.ConnectionBufferSize, config.WriteTimeout, log),
	}, tokens, server.RouterConfig{AuthRequired: config.AuthRequired, AllowedOrigins: origins}, log)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Info("Starting Moonshop messaging", "address", address, "auth_required", config.AuthRequired)
	if err := server.NewServer(address, handler, config.ShutdownTimeout, log).Run(ctx); err != nil {
		return fmt.Errorf("http server error: %w", err)
	}

	log.Info("Program stopped cleanly")
	return nil
}

func newModerator(config Config, log *slog.Logger) (*moderation.Moderator, error) {
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	data, err := moderation.NewCensoredLoader(os.DirFS(config.CensoredDir)).LoadAll(".")
	if err != nil {
		return nil, fmt.Errorf("censored words from %s: %w", config.CensoredDir, err)
	}
	log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, replacement, log)
}
