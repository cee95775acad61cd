package realtime

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashgrovelabs/go-chat-service/internal/auth"
	"github.com/ashgrovelabs/go-chat-service/internal/platform/persistence"
	"github.com/ashgrovelabs/go-chat-service/internal/presence"
	"github.com/ashgrovelabs/go-chat-service/internal/router"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testFixture struct {
	cm       *ConnectionManager
	table    *presence.Table
	store    *persistence.MemoryStore
	signer   *auth.Signer
	wsServer *httptest.Server
}

func setup(t *testing.T) *testFixture {
	t.Helper()
	return setupWithStore(t, persistence.NewMemoryStore())
}

func setupWithStore(t *testing.T, store chat.MessageStore) *testFixture {
	t.Helper()
	opts := DefaultOptions()
	opts.AuthTimeout = 500 * time.Millisecond
	return setupWithOptions(t, store, opts)
}

func setupWithOptions(t *testing.T, store chat.MessageStore, opts Options) *testFixture {
	t.Helper()
	logger := zerolog.Nop()

	verifier, err := auth.NewVerifier([]byte(testSecret))
	require.NoError(t, err)
	signer, err := auth.NewSigner([]byte(testSecret))
	require.NoError(t, err)

	table := presence.NewTable(logger)
	rtr := router.New(store, table, logger)

	cm, err := NewConnectionManager(":0", verifier, table, rtr, opts, logger)
	require.NoError(t, err)

	wsServer := httptest.NewServer(cm.Handler())
	t.Cleanup(wsServer.Close)

	memStore, _ := store.(*persistence.MemoryStore)
	return &testFixture{cm: cm, table: table, store: memStore, signer: signer, wsServer: wsServer}
}

func (f *testFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.wsServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *testFixture) token(t *testing.T, userID chat.UserID) string {
	t.Helper()
	token, err := f.signer.Sign(userID, time.Hour)
	require.NoError(t, err)
	return token
}

// connectAs dials and completes the identify handshake for userID.
func (f *testFixture) connectAs(t *testing.T, userID chat.UserID) *websocket.Conn {
	t.Helper()
	conn := f.dial(t)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameIdentify, Token: f.token(t, userID)}))

	// The handshake has no explicit reply; the presence entry appearing is
	// the observable effect.
	require.Eventually(t, func() bool {
		return len(f.table.Lookup(userID)) > 0
	}, time.Second, 10*time.Millisecond, "presence entry for %s", userID)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestConnectionManager_RoutesMessageBetweenTwoUsers(t *testing.T) {
	f := setup(t)

	sender := f.connectAs(t, "u1")
	receiver := f.connectAs(t, "u2")

	require.NoError(t, sender.WriteJSON(Frame{Type: FrameSend, ReceiverID: "u2", Body: "hi"}))

	delivered := readFrame(t, receiver)
	assert.Equal(t, FrameDeliver, delivered.Type)
	assert.Equal(t, chat.UserID("u1"), delivered.SenderID)
	assert.Equal(t, "hi", delivered.Body)

	ack := readFrame(t, sender)
	assert.Equal(t, FrameAck, ack.Type)
	assert.NotEmpty(t, ack.MessageID)

	history, err := f.store.FetchHistory(context.Background(), "u1", "u2", 10)
	require.NoError(t, err)
	require.Len(t, history, 1, "message persisted exactly once")
	assert.Equal(t, ack.MessageID, history[0].ID)
}

func TestConnectionManager_RejectsTokenSignedWithWrongSecret(t *testing.T) {
	f := setup(t)

	wrongSigner, err := auth.NewSigner([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	forged, err := wrongSigner.Sign("u1", time.Hour)
	require.NoError(t, err)

	conn := f.dial(t)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameIdentify, Token: forged}))

	frame := readFrame(t, conn)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "auth", frame.Code)

	// The server closes the connection and never creates a presence entry.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
	assert.Equal(t, 0, f.table.Len())
}

func TestConnectionManager_RejectsSendBeforeIdentify(t *testing.T) {
	f := setup(t)

	conn := f.dial(t)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameSend, ReceiverID: "u2", Body: "sneaky"}))

	frame := readFrame(t, conn)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "protocol", frame.Code)
	assert.Equal(t, 0, f.table.Len(), "unauthenticated senders are never registered")
}

func TestConnectionManager_ClosesUnauthenticatedConnectionAfterTimeout(t *testing.T) {
	f := setup(t)

	conn := f.dial(t)

	// Send nothing; the auth window expires and the server reports the
	// violation and closes us.
	frame := readFrame(t, conn)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "protocol", frame.Code)
	assert.Contains(t, frame.Message, "auth window", "timeout is named as such, not as a generic read failure")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, f.table.Len())
}

func TestConnectionManager_OversizeIdentifyFrameIsRejected(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxMessageSize = 64
	f := setupWithOptions(t, persistence.NewMemoryStore(), opts)

	conn := f.dial(t)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameIdentify, Token: strings.Repeat("x", 256)}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	err := conn.ReadJSON(&frame)
	if err == nil {
		// An explanatory error frame may precede the close.
		assert.Equal(t, FrameError, frame.Type)
		assert.NotContains(t, frame.Message, "auth window", "oversize is not misreported as a timeout")
		err = conn.ReadJSON(&frame)
	}
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig, websocket.CloseNormalClosure),
		"expected a close, got %v", err)
	assert.Equal(t, 0, f.table.Len())
}

func TestConnectionManager_SendToOfflineUserIsStoredOnly(t *testing.T) {
	f := setup(t)

	sender := f.connectAs(t, "u1")
	require.NoError(t, sender.WriteJSON(Frame{Type: FrameSend, ReceiverID: "u3", Body: "see you"}))

	ack := readFrame(t, sender)
	assert.Equal(t, FrameAck, ack.Type, "offline receiver still acks")

	history, err := f.store.FetchHistory(context.Background(), "u1", "u3", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "see you", history[0].Body)
}

func TestConnectionManager_AbruptDisconnectCleansUpPresence(t *testing.T) {
	f := setup(t)

	sender := f.connectAs(t, "u1")
	receiver := f.connectAs(t, "u2")

	// Drop the underlying TCP connection without a close handshake.
	require.NoError(t, receiver.UnderlyingConn().Close())

	require.Eventually(t, func() bool {
		return len(f.table.Lookup("u2")) == 0
	}, 2*time.Second, 10*time.Millisecond, "abrupt disconnect must still unregister")

	// A follow-up send is treated as offline: stored, acked, not delivered.
	require.NoError(t, sender.WriteJSON(Frame{Type: FrameSend, ReceiverID: "u2", Body: "still there?"}))
	ack := readFrame(t, sender)
	assert.Equal(t, FrameAck, ack.Type)

	history, err := f.store.FetchHistory(context.Background(), "u1", "u2", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestConnectionManager_FanOutDeliversToAllDevices(t *testing.T) {
	f := setup(t)

	sender := f.connectAs(t, "u1")
	phone := f.connectAs(t, "u2")
	laptop := f.connectAs(t, "u2")
	require.Eventually(t, func() bool {
		return len(f.table.Lookup("u2")) == 2
	}, time.Second, 10*time.Millisecond, "both devices registered")

	require.NoError(t, sender.WriteJSON(Frame{Type: FrameSend, ReceiverID: "u2", Body: "ping"}))

	for _, device := range []*websocket.Conn{phone, laptop} {
		frame := readFrame(t, device)
		assert.Equal(t, FrameDeliver, frame.Type)
		assert.Equal(t, "ping", frame.Body)
	}
}

type failingStore struct{}

func (failingStore) Save(context.Context, *chat.Message) (string, error) {
	return "", errors.New("store unavailable")
}

func (failingStore) FetchHistory(context.Context, chat.UserID, chat.UserID, int) ([]*chat.Message, error) {
	return nil, errors.New("store unavailable")
}

func TestConnectionManager_PersistenceFailureIsReportedNotFatal(t *testing.T) {
	f := setupWithStore(t, failingStore{})

	sender := f.connectAs(t, "u1")
	require.NoError(t, sender.WriteJSON(Frame{Type: FrameSend, ReceiverID: "u2", Body: "hi"}))

	frame := readFrame(t, sender)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "persistence", frame.Code)

	// The connection survives a failed send.
	require.NoError(t, sender.WriteJSON(Frame{Type: FrameSend, ReceiverID: "u2", Body: "again"}))
	frame = readFrame(t, sender)
	assert.Equal(t, FrameError, frame.Type)
}
