// Package chat contains the public domain types, interfaces, and error
// taxonomy for the messaging core. It defines the contract between the
// real-time router and its external collaborators.
package chat

import (
	"time"
)

// UserID is the stable identifier of an authenticated user, as carried in
// the session token issued by the account directory.
type UserID string

// String implements fmt.Stringer.
func (id UserID) String() string { return string(id) }

// Message is one point-to-point message. ID is assigned by the message
// store on Save; a Message is never mutated after that.
type Message struct {
	ID         string    `json:"id"`
	SenderID   UserID    `json:"senderId"`
	ReceiverID UserID    `json:"receiverId"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}
