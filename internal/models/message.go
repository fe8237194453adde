package models

import "time"

// Message is a durably stored chat message. Messages are immutable once
// created; there is no edit or delete path.
type Message struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// ConversationKey + Seq identify the message's position in its
	// conversation. Seq is monotonic within one conversation.
	ConversationKey string `gorm:"not null;uniqueIndex:uk_conv_seq;index:idx_conv_seq" json:"conversation_key"`
	Seq             uint64 `gorm:"not null;uniqueIndex:uk_conv_seq;index:idx_conv_seq" json:"seq"`

	SenderID   uint `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint `gorm:"not null" json:"receiver_id"`

	// Content may be empty when the message carries media, but never both.
	Content   string  `gorm:"type:text" json:"content"`
	MediaURL  *string `gorm:"type:text" json:"media_url,omitempty"`
	MediaType *string `gorm:"type:text" json:"media_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MessagePage is one reverse-chronological page of a conversation.
// Messages are newest-first within the page; NextCursor walks backward in
// time and is nil on the last page.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"has_more"`
	NextCursor *uint64   `json:"next_cursor,omitempty"`
}
