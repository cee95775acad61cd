package realtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/internal/presence"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// MessageRouter is the slice of the router the connection handler needs.
type MessageRouter interface {
	Route(ctx context.Context, sender, receiver chat.UserID, body string) (*chat.Message, error)
}

// PresenceRegistry is the slice of the presence table the connection
// handler needs: insertion at successful authentication, removal on every
// exit path.
type PresenceRegistry interface {
	Register(userID chat.UserID, handle presence.Handle)
	Unregister(handle presence.Handle)
}

// client owns one physical WebSocket connection. It moves through three
// states: connecting (awaiting a valid identify frame), authenticated
// (registered in the presence table, relaying sends and delivers), and
// closed.
type client struct {
	conn     *websocket.Conn
	verifier chat.TokenVerifier
	registry PresenceRegistry
	router   MessageRouter
	opts     Options
	logger   zerolog.Logger

	userID chat.UserID

	send      chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, verifier chat.TokenVerifier, registry PresenceRegistry, router MessageRouter, opts Options, logger zerolog.Logger) *client {
	return &client{
		conn:     conn,
		verifier: verifier,
		registry: registry,
		router:   router,
		opts:     opts,
		logger:   logger,
		send:     make(chan Frame, opts.SendBuffer),
		done:     make(chan struct{}),
	}
}

// Deliver implements presence.Handle. It enqueues the message on the
// connection's outbound buffer; the write pump flushes it to the wire. The
// enqueue completes before the router's Route call returns, which keeps
// per-sender delivery order.
func (c *client) Deliver(_ context.Context, msg *chat.Message) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	case c.send <- deliverFrame(msg):
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// run drives the connection to completion. Presence cleanup is guaranteed
// on every exit path, normal close and error alike.
func (c *client) run(ctx context.Context) {
	defer func() {
		c.registry.Unregister(c)
		c.shutdown()
	}()

	go c.writePump()

	if err := c.authenticate(); err != nil {
		c.logger.Warn().Err(err).Msg("Connection failed authentication")
		var authErr *chat.AuthError
		if errors.As(err, &authErr) {
			c.enqueue(errorFrame(codeAuth, "invalid session token"))
		} else {
			c.enqueue(errorFrame(codeProtocol, err.Error()))
		}
		return
	}

	c.logger = c.logger.With().Str("user", c.userID.String()).Logger()
	c.registry.Register(c.userID, c)
	c.logger.Info().Msg("User connected")

	c.readLoop(ctx)
	c.logger.Info().Msg("User disconnected")
}

// shutdown signals the write pump, which flushes pending frames, sends a
// close frame and closes the socket. Safe to call more than once.
func (c *client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// authenticate reads the first frame within the auth window and verifies
// the session token it must carry. No presence entry exists until this
// succeeds.
func (c *client) authenticate() error {
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.AuthTimeout)); err != nil {
		return fmt.Errorf("failed to set auth deadline: %w", err)
	}

	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return &chat.ProtocolError{Reason: "no identify frame within auth window"}
		case errors.Is(err, websocket.ErrReadLimit):
			return &chat.ProtocolError{Reason: "identify frame exceeds size limit"}
		default:
			return fmt.Errorf("connection read failed before identify: %w", err)
		}
	}

	frame, err := parseClientFrame(raw)
	if err != nil {
		return err
	}
	if frame.Type != FrameIdentify {
		return &chat.ProtocolError{Reason: "first frame must be identify"}
	}

	userID, err := c.verifier.Verify(frame.Token)
	if err != nil {
		return err
	}
	c.userID = userID
	return nil
}

// readLoop relays send frames to the router until the client disconnects
// or violates the protocol.
func (c *client) readLoop(ctx context.Context) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Unexpected connection error")
			}
			return
		}

		frame, err := parseClientFrame(raw)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Closing connection after protocol violation")
			c.enqueue(errorFrame(codeProtocol, err.Error()))
			return
		}

		switch frame.Type {
		case FrameSend:
			msg, err := c.router.Route(ctx, c.userID, frame.ReceiverID, frame.Body)
			if err != nil {
				// Persistence failure: the sender is informed, the
				// connection stays up.
				c.logger.Error().Err(err).Msg("Send failed")
				c.enqueue(errorFrame(codePersistence, "message could not be stored"))
				continue
			}
			c.enqueue(ackFrame(msg.ID))
		default:
			c.logger.Warn().Str("frame", string(frame.Type)).Msg("Closing connection after repeated identify")
			c.enqueue(errorFrame(codeProtocol, "connection already identified"))
			return
		}
	}
}

// enqueue queues a server-to-client frame without blocking the read loop.
func (c *client) enqueue(frame Frame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.logger.Warn().Str("frame", string(frame.Type)).Msg("Dropping frame, send buffer full")
	}
}

// writePump is the single writer on the connection. It flushes queued
// frames, keeps the connection alive with pings, and sends a close frame
// once the handler is done.
func (c *client) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		case <-c.done:
			c.flushPending()
			c.writeClose()
			return
		}
	}
}

// flushPending drains frames that were queued before shutdown, such as the
// final error frame, so the client sees why it is being disconnected.
func (c *client) flushPending() {
	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *client) writeFrame(frame Frame) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return false
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to write frame")
		return false
	}
	return true
}

func (c *client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return false
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}

func (c *client) writeClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
