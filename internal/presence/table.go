// Package presence tracks which authenticated users are reachable over
// which live connections. The table is the single shared mutable resource
// in the messaging core; all operations are safe for concurrent use from
// any number of connection goroutines.
package presence

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// Handle is an opaque reference that can push one message to a single
// physical connection. It is owned by the connection handler that created
// it; the table only holds a non-owning reference and never closes it.
type Handle interface {
	Deliver(ctx context.Context, msg *chat.Message) error
}

// Table maps user identities to their live connection handles. A user may
// hold several entries at once (one per device); the router delivers to
// all of them. The zero presence state is empty: the table is rebuilt
// purely from live connection events and is never loaded from storage.
type Table struct {
	mu     sync.RWMutex
	byUser map[chat.UserID]map[Handle]struct{}
	owner  map[Handle]chat.UserID
	logger zerolog.Logger
}

// NewTable creates an empty presence table.
func NewTable(logger zerolog.Logger) *Table {
	return &Table{
		byUser: make(map[chat.UserID]map[Handle]struct{}),
		owner:  make(map[Handle]chat.UserID),
		logger: logger.With().Str("component", "PresenceTable").Logger(),
	}
}

// Register records that userID is reachable at handle. Registering the
// same handle twice is a no-op; a second handle for the same user coexists
// with the first.
func (t *Table) Register(userID chat.UserID, handle Handle) {
	if handle == nil {
		return
	}

	t.mu.Lock()
	if _, ok := t.owner[handle]; ok {
		t.mu.Unlock()
		return
	}
	set, ok := t.byUser[userID]
	if !ok {
		set = make(map[Handle]struct{})
		t.byUser[userID] = set
	}
	set[handle] = struct{}{}
	t.owner[handle] = userID
	entries := len(set)
	t.mu.Unlock()

	t.logger.Debug().Str("user", userID.String()).Int("handles", entries).Msg("Registered connection")
}

// Unregister removes exactly the entry for handle. It is a no-op if the
// handle is already absent, so error paths and normal close paths may both
// call it.
func (t *Table) Unregister(handle Handle) {
	t.mu.Lock()
	userID, ok := t.owner[handle]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.owner, handle)
	set := t.byUser[userID]
	delete(set, handle)
	if len(set) == 0 {
		delete(t.byUser, userID)
	}
	t.mu.Unlock()

	t.logger.Debug().Str("user", userID.String()).Msg("Unregistered connection")
}

// Lookup returns a snapshot of the handles currently reachable for userID,
// empty if none. A handle whose Unregister has returned never appears in a
// subsequent snapshot.
func (t *Table) Lookup(userID chat.UserID) []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	handles := make([]Handle, 0, len(set))
	for h := range set {
		handles = append(handles, h)
	}
	return handles
}

// Len reports the number of live entries across all users.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.owner)
}
