package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ashgrovelabs/go-chat-service/chatservice"
	"github.com/ashgrovelabs/go-chat-service/chatservice/config"
	"github.com/ashgrovelabs/go-chat-service/cmd"
	"github.com/ashgrovelabs/go-chat-service/internal/app"
	"github.com/ashgrovelabs/go-chat-service/internal/auth"
	"github.com/ashgrovelabs/go-chat-service/internal/presence"
	"github.com/ashgrovelabs/go-chat-service/internal/realtime"
	"github.com/ashgrovelabs/go-chat-service/internal/router"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

func main() {
	// Structured logging first; everything else reports through it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "go-chat-service").Logger()

	// A local .env is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := cmd.Load(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	store, cleanup, err := newMessageStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize message store")
	}
	defer cleanup()

	verifier, err := auth.NewVerifier(cfg.TokenSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize token verifier")
	}

	table := presence.NewTable(logger)
	msgRouter := router.New(store, table, logger)

	apiService, err := chatservice.New(":"+cfg.APIPort, store, verifier, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API service")
	}

	connManager, err := realtime.NewConnectionManager(
		":"+cfg.WebSocketPort,
		verifier,
		table,
		msgRouter,
		websocketOptions(cfg.WebSocket.MaxMessageSizeBytes, cfg.WebSocket.AuthTimeoutSeconds, cfg.WebSocket.PongWaitSeconds, cfg.WebSocket.SendBuffer),
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create connection manager")
	}

	app.Run(ctx, logger, apiService, connManager)
}

// newMessageStore selects the backend for the configured run mode. Local
// mode needs no external services at all.
func newMessageStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (chat.MessageStore, func(), error) {
	if cfg.RunMode == "local" {
		return cmd.NewLocalDependencies(cfg, logger)
	}
	return cmd.NewMessageStore(ctx, cfg, logger)
}

func websocketOptions(maxMessageSize int64, authTimeoutSecs, pongWaitSecs, sendBuffer int) realtime.Options {
	opts := realtime.DefaultOptions()
	if maxMessageSize > 0 {
		opts.MaxMessageSize = maxMessageSize
	}
	if authTimeoutSecs > 0 {
		opts.AuthTimeout = time.Duration(authTimeoutSecs) * time.Second
	}
	if pongWaitSecs > 0 {
		opts.PongWait = time.Duration(pongWaitSecs) * time.Second
	}
	if sendBuffer > 0 {
		opts.SendBuffer = sendBuffer
	}
	return opts
}
