package models

// EventType discriminates live events delivered over a conversation channel.
type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventTypingChanged  EventType = "typing.changed"
)

// Event is the payload fanned out to every live session subscribed to a
// conversation. Exactly one of Message or Typing is set, matching Type.
type Event struct {
	Type            EventType     `json:"type"`
	ConversationKey string        `json:"conversation_key"`
	Message         *Message      `json:"message,omitempty"`
	Typing          *TypingChange `json:"typing,omitempty"`
}

// TypingChange reports a transition of one participant's typing state along
// with a snapshot of everyone currently typing in the conversation.
type TypingChange struct {
	UserID       uint   `json:"user_id"`
	IsTyping     bool   `json:"is_typing"`
	ActiveTypers []uint `json:"active_typers"`
}

// ClientFrame is what a connected session may send upstream over its
// websocket: currently only cursor acknowledgements used for reconnect
// replay.
type ClientFrame struct {
	Type string `json:"type"` // "ack"
	Seq  uint64 `json:"seq"`
}
