package chathub

import "meshline/backend/internal/models"

// Client is one live subscription to a conversation. It abstracts the
// underlying transport so the Manager can treat websocket sessions and test
// doubles uniformly.
type Client interface {
	// SessionID uniquely identifies this subscription. One user may hold
	// several sessions on the same conversation.
	SessionID() string
	// UserID returns the authenticated user behind the session.
	UserID() uint
	// ConversationKey returns the canonical key the session is subscribed to.
	ConversationKey() string

	// SendChannel is where the Manager delivers events for this session.
	SendChannel() chan<- models.Event

	// ReplayFromSeq returns the last seq the client has acknowledged, if it
	// requested replay on subscribe. Missed messages above this bound are
	// re-delivered from the message store before live events.
	ReplayFromSeq() (uint64, bool)

	// Run starts the transport pumps.
	Run()
	// Close shuts the session down and releases its send channel.
	Close()
}
