package chat

import "fmt"

// AuthError reports a session token that could not be verified. It is
// fatal to the connection that presented the token.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// PersistenceError reports that the message store rejected or could not
// complete a Save. The send is not considered delivered and the failure is
// surfaced to the sender.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("message persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError reports a failed push to a live connection handle, for
// example one that closed between lookup and push. It is logged and never
// fails the caller: history persistence already succeeded.
type DeliveryError struct {
	Receiver UserID
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("live delivery to %q failed: %v", e.Receiver, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or out-of-order inbound frame. It is
// fatal to the connection that sent it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}
