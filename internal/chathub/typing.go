package chathub

import (
	"sort"
	"sync"
	"time"

	"meshline/backend/internal/models"

	"go.uber.org/zap"
)

// EventPublisher is the slice of storage the tracker needs to broadcast
// typing transitions.
type EventPublisher interface {
	PublishEvent(key string, ev models.Event) error
}

// TypingTracker keeps the ephemeral set of users currently typing per
// conversation. A participant stays "typing" while keystroke signals keep
// arriving; after idle with no refresh the tracker expires them server-side,
// so a lost stop signal from an abruptly closed connection cannot leave a
// ghost indicator. Nothing here is ever persisted.
type TypingTracker struct {
	mu     sync.Mutex
	typers map[string]map[uint]*time.Timer // conversation key -> userID -> expiry timer

	idle time.Duration
	pub  EventPublisher
	log  *zap.Logger
}

func NewTypingTracker(pub EventPublisher, idle time.Duration, log *zap.Logger) *TypingTracker {
	return &TypingTracker{
		typers: make(map[string]map[uint]*time.Timer),
		idle:   idle,
		pub:    pub,
		log:    log,
	}
}

// SetTyping records a typing signal. true starts or refreshes the idle timer;
// false stops it immediately. A transition in either direction broadcasts a
// typing.changed event; a refresh does not.
func (t *TypingTracker) SetTyping(key string, userID uint, isTyping bool) {
	t.mu.Lock()

	conv := t.typers[key]
	timer, active := conv[userID]

	switch {
	case isTyping && active:
		timer.Reset(t.idle)
		t.mu.Unlock()
		return

	case isTyping:
		if conv == nil {
			conv = make(map[uint]*time.Timer)
			t.typers[key] = conv
		}
		conv[userID] = time.AfterFunc(t.idle, func() {
			t.expire(key, userID)
		})

	case active:
		timer.Stop()
		t.removeLocked(key, userID)

	default:
		t.mu.Unlock()
		return
	}

	actives := t.activeLocked(key)
	t.mu.Unlock()

	t.broadcast(key, userID, isTyping, actives)
}

// expire fires when no keystroke refresh arrived within the idle window.
func (t *TypingTracker) expire(key string, userID uint) {
	t.mu.Lock()
	if _, active := t.typers[key][userID]; !active {
		t.mu.Unlock()
		return
	}
	t.removeLocked(key, userID)
	actives := t.activeLocked(key)
	t.mu.Unlock()

	t.broadcast(key, userID, false, actives)
}

// ActiveTypers returns a sorted snapshot of users currently typing in the
// conversation.
func (t *TypingTracker) ActiveTypers(key string) []uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(key)
}

func (t *TypingTracker) activeLocked(key string) []uint {
	actives := make([]uint, 0, len(t.typers[key]))
	for id := range t.typers[key] {
		actives = append(actives, id)
	}
	sort.Slice(actives, func(i, j int) bool { return actives[i] < actives[j] })
	return actives
}

func (t *TypingTracker) removeLocked(key string, userID uint) {
	delete(t.typers[key], userID)
	if len(t.typers[key]) == 0 {
		delete(t.typers, key)
	}
}

func (t *TypingTracker) broadcast(key string, userID uint, isTyping bool, actives []uint) {
	ev := models.Event{
		Type:            models.EventTypingChanged,
		ConversationKey: key,
		Typing: &models.TypingChange{
			UserID:       userID,
			IsTyping:     isTyping,
			ActiveTypers: actives,
		},
	}
	if err := t.pub.PublishEvent(key, ev); err != nil {
		// Typing state is ephemeral; a lost transition self-heals on the
		// next signal or expiry.
		t.log.Warn("failed to publish typing change",
			zap.String("conversation", key), zap.Error(err))
	}
}
