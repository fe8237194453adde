package chathub

import (
	"context"
	"encoding/json"

	"meshline/backend/internal/models"

	"go.uber.org/zap"
)

// ListenEvents consumes the cross-instance pub/sub stream and feeds it into
// the dispatcher. Every server instance publishes appends and typing changes
// to the conversation channel; every instance routes them to its own live
// sessions.
func (m *Manager) ListenEvents(ctx context.Context) {
	pubsub := m.Storage.SubscribeEvents()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(raw.Payload), &ev); err != nil {
				m.Log.Warn("dropping undecodable event",
					zap.String("channel", raw.Channel), zap.Error(err))
				continue
			}
			m.PubSubCh <- ev
		}
	}
}
