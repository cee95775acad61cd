package chat

import (
	"context"
)

// TokenVerifier validates a session token and resolves the identity it
// asserts. Verification is stateless: it checks signature and expiry only
// and never calls back to the account directory.
type TokenVerifier interface {
	Verify(token string) (UserID, error)
}

// MessageStore durably persists messages and serves conversation history.
// Save assigns and returns the message's unique ID.
type MessageStore interface {
	Save(ctx context.Context, msg *Message) (string, error)

	// FetchHistory returns the conversation between two users, oldest
	// first, capped at limit. It is consumed by presentation layers, not
	// by the router itself.
	FetchHistory(ctx context.Context, userA, userB UserID, limit int) ([]*Message, error)
}
