package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ashgrovelabs/go-chat-service/internal/presence"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// --- Mocks ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, msg *chat.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *mockStore) FetchHistory(ctx context.Context, a, b chat.UserID, limit int) ([]*chat.Message, error) {
	args := m.Called(ctx, a, b, limit)
	var msgs []*chat.Message
	if val, ok := args.Get(0).([]*chat.Message); ok {
		msgs = val
	}
	return msgs, args.Error(1)
}

type mockPresence struct {
	mock.Mock
}

func (m *mockPresence) Lookup(userID chat.UserID) []presence.Handle {
	args := m.Called(userID)
	var handles []presence.Handle
	if val, ok := args.Get(0).([]presence.Handle); ok {
		handles = val
	}
	return handles
}

type recordingHandle struct {
	mu        sync.Mutex
	delivered []*chat.Message
	failWith  error
}

func (h *recordingHandle) Deliver(_ context.Context, msg *chat.Message) error {
	if h.failWith != nil {
		return h.failWith
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delivered = append(h.delivered, msg)
	return nil
}

func (h *recordingHandle) messages() []*chat.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*chat.Message(nil), h.delivered...)
}

// --- Tests ---

func TestRoute_PersistsAndDeliversToAllHandles(t *testing.T) {
	store := new(mockStore)
	pres := new(mockPresence)
	r := New(store, pres, zerolog.Nop())

	phone := &recordingHandle{}
	laptop := &recordingHandle{}

	store.On("Save", mock.Anything, mock.Anything).Return("msg-1", nil).Once()
	pres.On("Lookup", chat.UserID("u2")).Return([]presence.Handle{phone, laptop}).Once()

	msg, err := r.Route(context.Background(), "u1", "u2", "hi")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, chat.UserID("u1"), msg.SenderID)

	require.Len(t, phone.messages(), 1, "first device receives the message")
	require.Len(t, laptop.messages(), 1, "second device receives the message")
	store.AssertExpectations(t)
	pres.AssertExpectations(t)
}

func TestRoute_OfflineReceiverIsStoredOnlySuccess(t *testing.T) {
	store := new(mockStore)
	pres := new(mockPresence)
	r := New(store, pres, zerolog.Nop())

	store.On("Save", mock.Anything, mock.Anything).Return("msg-2", nil).Once()
	pres.On("Lookup", chat.UserID("u3")).Return(nil).Once()

	msg, err := r.Route(context.Background(), "u1", "u3", "anyone there?")
	require.NoError(t, err, "a send to an offline user is a normal success")
	assert.Equal(t, "msg-2", msg.ID)
}

func TestRoute_PersistenceFailureSurfacesAndSkipsDelivery(t *testing.T) {
	store := new(mockStore)
	pres := new(mockPresence)
	r := New(store, pres, zerolog.Nop())

	storeDown := errors.New("store unavailable")
	store.On("Save", mock.Anything, mock.Anything).Return("", storeDown).Once()

	msg, err := r.Route(context.Background(), "u1", "u2", "hi")
	require.Error(t, err)
	assert.Nil(t, msg)

	var perr *chat.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, storeDown)

	pres.AssertNotCalled(t, "Lookup", mock.Anything)
}

func TestRoute_StaleHandleDoesNotFailTheCall(t *testing.T) {
	store := new(mockStore)
	pres := new(mockPresence)
	r := New(store, pres, zerolog.Nop())

	stale := &recordingHandle{failWith: errors.New("connection closed")}
	live := &recordingHandle{}

	store.On("Save", mock.Anything, mock.Anything).Return("msg-3", nil).Once()
	pres.On("Lookup", chat.UserID("u2")).Return([]presence.Handle{stale, live}).Once()

	_, err := r.Route(context.Background(), "u1", "u2", "hi")
	require.NoError(t, err, "delivery failure is non-fatal once persisted")
	assert.Len(t, live.messages(), 1, "remaining handles still receive the message")
}

func TestRoute_PerSenderOrderMatchesCallOrder(t *testing.T) {
	pres := new(mockPresence)
	store := &appendOnlyStore{}
	r := New(store, pres, zerolog.Nop())

	h := &recordingHandle{}
	pres.On("Lookup", chat.UserID("u2")).Return([]presence.Handle{h})

	bodies := []string{"one", "two", "three", "four"}
	for _, body := range bodies {
		_, err := r.Route(context.Background(), "u1", "u2", body)
		require.NoError(t, err)
	}

	persisted := store.bodies()
	require.Equal(t, bodies, persisted, "persisted order matches call order")

	var deliveredBodies []string
	for _, msg := range h.messages() {
		deliveredBodies = append(deliveredBodies, msg.Body)
	}
	assert.Equal(t, bodies, deliveredBodies, "delivered order matches call order")
}

// appendOnlyStore records Save order without mock bookkeeping.
type appendOnlyStore struct {
	mu    sync.Mutex
	saved []*chat.Message
}

func (s *appendOnlyStore) Save(_ context.Context, msg *chat.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg)
	return time.Now().Format(time.RFC3339Nano), nil
}

func (s *appendOnlyStore) FetchHistory(context.Context, chat.UserID, chat.UserID, int) ([]*chat.Message, error) {
	return nil, nil
}

func (s *appendOnlyStore) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.saved))
	for _, m := range s.saved {
		out = append(out, m.Body)
	}
	return out
}
