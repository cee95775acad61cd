// Package router implements the point-to-point message routing core:
// persist first, then best-effort live delivery to every connection the
// receiver currently holds.
package router

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/internal/presence"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// PresenceLookup is the slice of the presence table the router needs.
type PresenceLookup interface {
	Lookup(userID chat.UserID) []presence.Handle
}

// Router routes one message at a time: durable history is the guarantee,
// live delivery is best effort.
type Router struct {
	store    chat.MessageStore
	presence PresenceLookup
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a Router on top of the shared presence table and the
// message store.
func New(store chat.MessageStore, presence PresenceLookup, logger zerolog.Logger) *Router {
	return &Router{
		store:    store,
		presence: presence,
		logger:   logger.With().Str("component", "Router").Logger(),
		now:      time.Now,
	}
}

// Route persists the message and, if the receiver is present, pushes it to
// each of their live connections before returning.
//
// A store failure is returned as *chat.PersistenceError and nothing is
// delivered. Push failures after a successful persist are logged and
// swallowed: the message stays in history even when a handle closed
// between lookup and push. A receiver with no live connection is a normal
// stored-only success.
//
// Callers invoke Route synchronously from a connection's read loop, which
// is what preserves per-sender ordering of both persistence and delivery.
func (r *Router) Route(ctx context.Context, sender, receiver chat.UserID, body string) (*chat.Message, error) {
	msg := &chat.Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       body,
		CreatedAt:  r.now().UTC(),
	}

	id, err := r.store.Save(ctx, msg)
	if err != nil {
		r.logger.Error().Err(err).
			Str("sender", sender.String()).
			Str("receiver", receiver.String()).
			Msg("Failed to persist message")
		return nil, &chat.PersistenceError{Err: err}
	}
	msg.ID = id

	handles := r.presence.Lookup(receiver)
	if len(handles) == 0 {
		r.logger.Debug().
			Str("receiver", receiver.String()).
			Str("msg_id", msg.ID).
			Msg("Receiver offline, message stored only")
		return msg, nil
	}

	for _, handle := range handles {
		if err := handle.Deliver(ctx, msg); err != nil {
			deliveryErr := &chat.DeliveryError{Receiver: receiver, Err: err}
			r.logger.Warn().Err(deliveryErr).
				Str("msg_id", msg.ID).
				Msg("Live delivery failed, message remains in history")
		}
	}
	return msg, nil
}
