package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// Options tunes the per-connection behavior of the connection manager.
type Options struct {
	// MaxMessageSize caps inbound frames in bytes.
	MaxMessageSize int64
	// AuthTimeout bounds how long a connection may stay unauthenticated.
	AuthTimeout time.Duration
	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
	// PongWait is how long to wait for pongs before dropping the peer.
	PongWait time.Duration
	// SendBuffer is the capacity of each connection's outbound queue.
	SendBuffer int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: 4096,
		AuthTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		SendBuffer:     256,
	}
}

func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = def.MaxMessageSize
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = def.AuthTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = def.PongWait
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = def.SendBuffer
	}
	return o
}

// ConnectionManager accepts WebSocket connections and runs one handler per
// connection on its own goroutine, so a slow peer never stalls accepting
// new connections. It runs its own dedicated HTTP server.
type ConnectionManager struct {
	server   *http.Server
	upgrader websocket.Upgrader

	verifier chat.TokenVerifier
	registry PresenceRegistry
	router   MessageRouter
	opts     Options

	handlers sync.WaitGroup
	clients  sync.Map // *client -> struct{}

	logger     zerolog.Logger
	instanceID string
}

// NewConnectionManager wires up the WebSocket connection manager.
func NewConnectionManager(
	addr string,
	verifier chat.TokenVerifier,
	registry PresenceRegistry,
	router MessageRouter,
	opts Options,
	logger zerolog.Logger,
) (*ConnectionManager, error) {
	if verifier == nil {
		return nil, fmt.Errorf("token verifier cannot be nil")
	}
	if registry == nil || router == nil {
		return nil, fmt.Errorf("presence registry and router cannot be nil")
	}

	instanceID := uuid.NewString()
	cm := &ConnectionManager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: restrict origins once the web client's origin list is settled
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		verifier:   verifier,
		registry:   registry,
		router:     router,
		opts:       opts.withDefaults(),
		logger:     logger.With().Str("component", "ConnectionManager").Str("instance", instanceID).Logger(),
		instanceID: instanceID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", cm.connectHandler)
	cm.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return cm, nil
}

// Handler exposes the WebSocket mux, mainly for tests that run the
// manager under an httptest server.
func (cm *ConnectionManager) Handler() http.Handler {
	return cm.server.Handler
}

// Start runs the HTTP server that accepts WebSocket connections. It
// blocks until the server stops.
func (cm *ConnectionManager) Start(_ context.Context) error {
	cm.logger.Info().Str("addr", cm.server.Addr).Msg("WebSocket server starting...")
	if err := cm.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, closes the live ones, and waits
// for their handlers to finish or the context to expire.
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.logger.Info().Msg("Shutting down WebSocket service...")
	var finalErr error

	if err := cm.server.Shutdown(ctx); err != nil {
		cm.logger.Error().Err(err).Msg("WebSocket server shutdown failed.")
		finalErr = err
	}

	cm.clients.Range(func(key, _ any) bool {
		key.(*client).shutdown()
		return true
	})

	done := make(chan struct{})
	go func() {
		cm.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		cm.logger.Warn().Msg("Timed out waiting for connection handlers to finish.")
		if finalErr == nil {
			finalErr = ctx.Err()
		}
	}

	cm.logger.Info().Msg("WebSocket service shut down.")
	return finalErr
}

// connectHandler upgrades a request and runs the connection's handler in
// the request goroutine. The HTTP server schedules each request
// independently, so handlers never block each other.
func (cm *ConnectionManager) connectHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.logger.Error().Err(err).Msg("Failed to upgrade connection.")
		return
	}

	c := newClient(conn, cm.verifier, cm.registry, cm.router,
		cm.opts, cm.logger.With().Str("remote", r.RemoteAddr).Logger())

	cm.handlers.Add(1)
	cm.clients.Store(c, struct{}{})
	defer func() {
		cm.clients.Delete(c)
		cm.handlers.Done()
	}()

	c.run(r.Context())
}
