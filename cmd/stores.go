package cmd

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/chatservice/config"
	"github.com/ashgrovelabs/go-chat-service/internal/platform/persistence"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// NewMessageStore builds the configured MessageStore backend. The
// returned cleanup function releases the backend's resources and is safe
// to call exactly once.
func NewMessageStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (chat.MessageStore, func(), error) {
	switch cfg.MessageStore.Type {
	case "firestore":
		client, err := firestore.NewClient(ctx, cfg.MessageStore.Firestore.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to firestore: %w", err)
		}
		store, err := persistence.NewFirestoreStore(client, cfg.MessageStore.Firestore.Collection, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	case "postgres":
		dsn := os.Getenv(cfg.MessageStore.Postgres.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("postgres DSN env %s is not set", cfg.MessageStore.Postgres.DSNEnv)
		}
		store, err := persistence.NewPostgresStore(ctx, dsn, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case "memory":
		logger.Warn().Msg("Using in-memory message store; history will not survive a restart.")
		return persistence.NewMemoryStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown message_store.type %q", cfg.MessageStore.Type)
	}
}
