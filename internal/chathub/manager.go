package chathub

import (
	"context"
	"sync"
	"time"

	"meshline/backend/internal/config"
	"meshline/backend/internal/models"
	"meshline/backend/internal/storage"

	"go.uber.org/zap"
)

// Manager is the connection registry and channel router. It tracks which
// sessions are subscribed to which conversation and fans live events out to
// them, and only to them: a session never sees events for a conversation it
// is not registered on.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]Client            // sessionID -> client
	byConv   map[string]map[string]Client // conversation key -> sessionID -> client

	// lastSeq tracks, per session, the highest message seq delivered. It is
	// both the dedup floor and the order guard: publishes can reach this
	// instance out of seq order (concurrent senders, multiple instances),
	// but a session must observe messages in durable append order. Stale
	// seqs are dropped as duplicates; a seq arriving ahead of its
	// predecessors triggers a fill from the store, which already holds
	// everything up to any published seq.
	lastSeq map[string]uint64

	RegisterCh   chan Client
	UnregisterCh chan Client
	PubSubCh     chan models.Event

	Storage storage.Storage
	Log     *zap.Logger
}

func NewManager(s storage.Storage, log *zap.Logger) *Manager {
	return &Manager{
		sessions:     make(map[string]Client),
		byConv:       make(map[string]map[string]Client),
		lastSeq:      make(map[string]uint64),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		PubSubCh:     make(chan models.Event, 64),
		Storage:      s,
		Log:          log,
	}
}

// Run is the hub dispatcher. All registry mutations funnel through here.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.RegisterCh:
			m.handleRegister(client)
		case client := <-m.UnregisterCh:
			m.handleUnregister(client)
		case ev := <-m.PubSubCh:
			m.route(ev)
		}
	}
}

func (m *Manager) handleRegister(client Client) {
	key := client.ConversationKey()

	m.mu.Lock()
	m.sessions[client.SessionID()] = client
	if m.byConv[key] == nil {
		m.byConv[key] = make(map[string]Client)
	}
	m.byConv[key][client.SessionID()] = client
	m.mu.Unlock()

	m.replay(client)

	m.Log.Info("session registered",
		zap.String("session_id", client.SessionID()),
		zap.Uint("user_id", client.UserID()),
		zap.String("conversation", key))
}

// replay re-delivers messages the session missed while disconnected, reading
// from the durable store in bounded batches with the client's
// last-acknowledged seq as the lower bound. The highest replayed seq becomes
// the session's order floor.
func (m *Manager) replay(client Client) {
	from, ok := client.ReplayFromSeq()
	if !ok {
		return
	}
	if from > 0 {
		m.setLastSeq(client.SessionID(), from)
	}

	for {
		batch, err := m.Storage.MessagesAfterSeq(context.Background(), client.ConversationKey(), from, config.MaxPageSize)
		if err != nil {
			// The client still gets live events; it can re-request replay
			// on its next reconnect.
			m.Log.Error("replay fetch failed",
				zap.String("session_id", client.SessionID()), zap.Error(err))
			return
		}
		for i := range batch {
			msg := batch[i]
			ev := models.Event{
				Type:            models.EventMessageCreated,
				ConversationKey: msg.ConversationKey,
				Message:         &msg,
			}
			if !m.sendOrWait(client, ev) {
				return
			}
			m.setLastSeq(client.SessionID(), msg.Seq)
			from = msg.Seq
		}
		if len(batch) < config.MaxPageSize {
			return
		}
	}
}

func (m *Manager) handleUnregister(client Client) {
	m.mu.Lock()
	current, ok := m.sessions[client.SessionID()]
	if !ok || current != client {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, client.SessionID())
	delete(m.lastSeq, client.SessionID())
	if conv := m.byConv[client.ConversationKey()]; conv != nil {
		delete(conv, client.SessionID())
		if len(conv) == 0 {
			delete(m.byConv, client.ConversationKey())
		}
	}
	m.mu.Unlock()

	client.Close()
	m.Log.Info("session unregistered",
		zap.String("session_id", client.SessionID()),
		zap.Uint("user_id", client.UserID()))
}

// route delivers an event to every session registered on its conversation.
// Zero registered sessions is not an error: the message is already durable
// and offline recipients catch up via pagination or replay.
func (m *Manager) route(ev models.Event) {
	m.mu.RLock()
	targets := make([]Client, 0, len(m.byConv[ev.ConversationKey]))
	for _, client := range m.byConv[ev.ConversationKey] {
		targets = append(targets, client)
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		m.Log.Debug("no live sessions for event",
			zap.String("conversation", ev.ConversationKey),
			zap.String("type", string(ev.Type)))
		return
	}

	for _, client := range targets {
		m.deliver(client, ev)
	}
}

// deliver enforces per-session seq order for message events. Typing changes
// carry no ordering contract and pass straight through.
func (m *Manager) deliver(client Client, ev models.Event) {
	if ev.Type != models.EventMessageCreated || ev.Message == nil {
		m.trySend(client, ev)
		return
	}

	seq := ev.Message.Seq
	last := m.lastSeqOf(client.SessionID())
	switch {
	case last > 0 && seq <= last:
		// Duplicate of something already delivered.
	case last > 0 && seq > last+1:
		// The publish for seq raced ahead of its predecessors. Everything
		// up to seq is already committed, so fill the gap from the store
		// instead of forwarding out of order.
		m.fillGap(client, ev.ConversationKey, last, seq)
	default:
		// In order, or the session's first observed message.
		if m.trySend(client, ev) {
			m.setLastSeq(client.SessionID(), seq)
		}
	}
}

// fillGap delivers (after, through] in seq order from the durable store.
func (m *Manager) fillGap(client Client, key string, after, through uint64) {
	for after < through {
		batch, err := m.Storage.MessagesAfterSeq(context.Background(), key, after, config.MaxPageSize)
		if err != nil {
			m.Log.Error("gap fill failed",
				zap.String("conversation", key),
				zap.String("session_id", client.SessionID()), zap.Error(err))
			return
		}
		if len(batch) == 0 {
			return
		}
		for i := range batch {
			msg := batch[i]
			if msg.Seq > through {
				// Later publishes cover everything beyond the triggering
				// event.
				return
			}
			ev := models.Event{
				Type:            models.EventMessageCreated,
				ConversationKey: key,
				Message:         &msg,
			}
			if !m.sendOrWait(client, ev) {
				return
			}
			m.setLastSeq(client.SessionID(), msg.Seq)
			after = msg.Seq
		}
	}
}

// trySend pushes without blocking the dispatcher. A session whose buffer is
// full is treated as dead: it gets unregistered and must reconnect, replaying
// from its last-acknowledged seq.
func (m *Manager) trySend(client Client, ev models.Event) bool {
	select {
	case client.SendChannel() <- ev:
		return true
	default:
		m.Log.Warn("slow session dropped",
			zap.String("session_id", client.SessionID()),
			zap.Uint("user_id", client.UserID()))
		m.handleUnregister(client)
		return false
	}
}

// sendOrWait blocks briefly so catch-up bursts larger than the session
// buffer survive as long as the write pump keeps draining. A session that
// cannot absorb within the write deadline is dropped like any other stalled
// consumer.
func (m *Manager) sendOrWait(client Client, ev models.Event) bool {
	select {
	case client.SendChannel() <- ev:
		return true
	case <-time.After(writeWait):
		m.Log.Warn("session stalled during catch-up",
			zap.String("session_id", client.SessionID()),
			zap.Uint("user_id", client.UserID()))
		m.handleUnregister(client)
		return false
	}
}

func (m *Manager) lastSeqOf(sessionID string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeq[sessionID]
}

func (m *Manager) setLastSeq(sessionID string, seq uint64) {
	m.mu.Lock()
	m.lastSeq[sessionID] = seq
	m.mu.Unlock()
}

// HasLiveSession reports whether userID currently holds at least one session
// on the conversation. Used to decide whether an offline notification is
// warranted.
func (m *Manager) HasLiveSession(key string, userID uint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, client := range m.byConv[key] {
		if client.UserID() == userID {
			return true
		}
	}
	return false
}

// SessionCount returns the number of live sessions across all conversations.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
