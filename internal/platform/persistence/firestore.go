// Package persistence provides the durable MessageStore implementations:
// Firestore for production, Postgres as an alternative backend, and an
// in-memory store for the local run mode and tests.
package persistence

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

const defaultMessagesCollection = "messages"

// storedMessage is the document shape written to Firestore. Conversation
// is the order-independent pair key the history query filters on.
type storedMessage struct {
	Conversation string    `firestore:"conversation"`
	SenderID     string    `firestore:"sender_id"`
	ReceiverID   string    `firestore:"receiver_id"`
	Body         string    `firestore:"body"`
	CreatedAt    time.Time `firestore:"created_at"`
}

// FirestoreStore implements chat.MessageStore on Google Cloud Firestore.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreStore is the constructor for the FirestoreStore. An empty
// collection name selects the default "messages" collection.
func NewFirestoreStore(client *firestore.Client, collection string, logger zerolog.Logger) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if collection == "" {
		collection = defaultMessagesCollection
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// Save writes the message under a fresh UUID document ID and returns that
// ID. The message is immutable once written.
func (s *FirestoreStore) Save(ctx context.Context, msg *chat.Message) (string, error) {
	id := uuid.NewString()
	doc := storedMessage{
		Conversation: conversationKey(msg.SenderID, msg.ReceiverID),
		SenderID:     msg.SenderID.String(),
		ReceiverID:   msg.ReceiverID.String(),
		Body:         msg.Body,
		CreatedAt:    msg.CreatedAt,
	}

	if _, err := s.client.Collection(s.collection).Doc(id).Create(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to write message document: %w", err)
	}

	s.logger.Debug().Str("msg_id", id).Str("conversation", doc.Conversation).Msg("Persisted message")
	return id, nil
}

// FetchHistory returns the conversation between two users, oldest first.
func (s *FirestoreStore) FetchHistory(ctx context.Context, userA, userB chat.UserID, limit int) ([]*chat.Message, error) {
	query := s.client.Collection(s.collection).
		Where("conversation", "==", conversationKey(userA, userB)).
		OrderBy("created_at", firestore.Asc).
		Limit(limit)

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query message history: %w", err)
	}

	messages := make([]*chat.Message, 0, len(snaps))
	for _, snap := range snaps {
		var doc storedMessage
		if err := snap.DataTo(&doc); err != nil {
			s.logger.Error().Err(err).Str("doc_id", snap.Ref.ID).Msg("Failed to unmarshal message document, skipping")
			continue
		}
		messages = append(messages, &chat.Message{
			ID:         snap.Ref.ID,
			SenderID:   chat.UserID(doc.SenderID),
			ReceiverID: chat.UserID(doc.ReceiverID),
			Body:       doc.Body,
			CreatedAt:  doc.CreatedAt,
		})
	}
	return messages, nil
}

// conversationKey builds the canonical key for an unordered user pair so
// both directions of a conversation land on the same key.
func conversationKey(a, b chat.UserID) string {
	if b < a {
		a, b = b, a
	}
	return a.String() + "|" + b.String()
}
