package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// PostgresStore implements chat.MessageStore on a Postgres messages table:
//
//	CREATE TABLE messages (
//	    id          UUID PRIMARY KEY,
//	    sender_id   TEXT NOT NULL,
//	    receiver_id TEXT NOT NULL,
//	    body        TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX messages_pair_idx ON messages (sender_id, receiver_id, created_at);
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore opens a connection pool for the given DSN and verifies
// connectivity with a ping.
func NewPostgresStore(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "PostgresStore").Logger(),
	}, nil
}

// Save inserts the message under a fresh UUID and returns it.
func (s *PostgresStore) Save(ctx context.Context, msg *chat.Message) (string, error) {
	id := uuid.NewString()
	const stmt = `INSERT INTO messages (id, sender_id, receiver_id, body, created_at)
	              VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, stmt, id, msg.SenderID.String(), msg.ReceiverID.String(), msg.Body, msg.CreatedAt); err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}

	s.logger.Debug().Str("msg_id", id).Msg("Persisted message")
	return id, nil
}

// FetchHistory returns both directions of the conversation between two
// users, oldest first.
func (s *PostgresStore) FetchHistory(ctx context.Context, userA, userB chat.UserID, limit int) ([]*chat.Message, error) {
	const stmt = `SELECT id, sender_id, receiver_id, body, created_at
	              FROM messages
	              WHERE (sender_id = $1 AND receiver_id = $2)
	                 OR (sender_id = $2 AND receiver_id = $1)
	              ORDER BY created_at ASC
	              LIMIT $3`

	rows, err := s.pool.Query(ctx, stmt, userA.String(), userB.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query message history: %w", err)
	}
	defer rows.Close()

	var messages []*chat.Message
	for rows.Next() {
		var msg chat.Message
		var sender, receiver string
		if err := rows.Scan(&msg.ID, &sender, &receiver, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.SenderID = chat.UserID(sender)
		msg.ReceiverID = chat.UserID(receiver)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read message rows: %w", err)
	}
	return messages, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
