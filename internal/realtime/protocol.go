// Package realtime owns the WebSocket side of the messaging core: the
// connection manager that accepts sockets, the per-connection handler with
// its read and write pumps, and the framed wire protocol.
package realtime

import (
	"encoding/json"

	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// FrameType enumerates the tagged frame variants of the wire protocol.
type FrameType string

const (
	// FrameIdentify carries the session token; it must be the first and
	// only identify frame on a connection.
	FrameIdentify FrameType = "identify"
	// FrameSend asks the server to route one message.
	FrameSend FrameType = "send"
	// FrameDeliver pushes a routed message to the receiving client.
	FrameDeliver FrameType = "deliver"
	// FrameAck confirms to the sender that a message was persisted.
	FrameAck FrameType = "ack"
	// FrameError reports a failure to the client.
	FrameError FrameType = "error"
)

// Error codes carried in error frames.
const (
	codeAuth        = "auth"
	codePersistence = "persistence"
	codeProtocol    = "protocol"
)

// Frame is one protocol message in either direction. Which fields are
// required depends on Type; anything else is a protocol violation.
type Frame struct {
	Type FrameType `json:"type"`

	// identify
	Token string `json:"token,omitempty"`

	// send / deliver
	ReceiverID chat.UserID `json:"receiverId,omitempty"`
	SenderID   chat.UserID `json:"senderId,omitempty"`
	Body       string      `json:"body,omitempty"`

	// ack
	MessageID string `json:"messageId,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// parseClientFrame decodes and validates one inbound frame. Only identify
// and send are valid from a client; anything malformed or unexpected is a
// *chat.ProtocolError.
func parseClientFrame(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, &chat.ProtocolError{Reason: "frame is not valid JSON"}
	}

	switch frame.Type {
	case FrameIdentify:
		if frame.Token == "" {
			return nil, &chat.ProtocolError{Reason: "identify frame missing token"}
		}
	case FrameSend:
		if frame.ReceiverID == "" {
			return nil, &chat.ProtocolError{Reason: "send frame missing receiverId"}
		}
		if frame.Body == "" {
			return nil, &chat.ProtocolError{Reason: "send frame missing body"}
		}
	case FrameDeliver, FrameAck, FrameError:
		return nil, &chat.ProtocolError{Reason: "frame type " + string(frame.Type) + " is server-to-client only"}
	default:
		return nil, &chat.ProtocolError{Reason: "unknown frame type"}
	}
	return &frame, nil
}

func deliverFrame(msg *chat.Message) Frame {
	return Frame{Type: FrameDeliver, SenderID: msg.SenderID, Body: msg.Body}
}

func ackFrame(messageID string) Frame {
	return Frame{Type: FrameAck, MessageID: messageID}
}

func errorFrame(code, message string) Frame {
	return Frame{Type: FrameError, Code: code, Message: message}
}
