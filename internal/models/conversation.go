package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ConversationKeyFor derives the canonical key for a two-party conversation.
// The lower user id always comes first, so both participants resolve the same
// key regardless of who initiates.
func ConversationKeyFor(a, b uint) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

// ParseConversationKey splits a canonical key back into its participant ids.
// It rejects keys that are not in canonical form (lower id first, two distinct
// positive ids).
func ParseConversationKey(key string) (uint, uint, error) {
	lo, hi, ok := strings.Cut(key, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed conversation key %q", key)
	}
	a, err := strconv.ParseUint(lo, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed conversation key %q", key)
	}
	b, err := strconv.ParseUint(hi, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed conversation key %q", key)
	}
	if a == 0 || b == 0 || a >= b {
		return 0, 0, fmt.Errorf("non-canonical conversation key %q", key)
	}
	return uint(a), uint(b), nil
}

// IsParticipant reports whether userID is one of the two parties named by key.
func IsParticipant(key string, userID uint) bool {
	a, b, err := ParseConversationKey(key)
	if err != nil {
		return false
	}
	return userID == a || userID == b
}

// OtherParticipant returns the peer of userID within key.
func OtherParticipant(key string, userID uint) (uint, error) {
	a, b, err := ParseConversationKey(key)
	if err != nil {
		return 0, err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return 0, fmt.Errorf("user %d is not a participant of %s", userID, key)
}

// ConversationState holds the per-conversation append counter. The row is
// locked for the duration of an append so seq assignment serializes per
// conversation without a global lock.
type ConversationState struct {
	Key     string `gorm:"primaryKey"`
	LastSeq uint64 `gorm:"not null;default:0"`
}
