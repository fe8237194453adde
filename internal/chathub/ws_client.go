package chathub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"meshline/backend/internal/config"
	"meshline/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WebSocketClient implements Client over a gorilla websocket connection.
type WebSocketClient struct {
	sessionID string
	userID    uint
	key       string
	fromSeq   *uint64

	Conn *websocket.Conn
	Hub  *Manager
	Send chan models.Event

	// lastAck is the session's ephemeral delivery record: the highest seq
	// the client has confirmed rendering. It dies with the connection.
	lastAck atomic.Uint64

	closeOnce sync.Once
	log       *zap.Logger
}

func NewWebSocketClient(hub *Manager, conn *websocket.Conn, userID uint, key string, fromSeq *uint64, log *zap.Logger) *WebSocketClient {
	c := &WebSocketClient{
		sessionID: uuid.NewString(),
		userID:    userID,
		key:       key,
		fromSeq:   fromSeq,
		Conn:      conn,
		Hub:       hub,
		Send:      make(chan models.Event, config.SessionSendBuffer),
		log:       log,
	}
	if fromSeq != nil {
		c.lastAck.Store(*fromSeq)
	}
	return c
}

func (c *WebSocketClient) SessionID() string { return c.sessionID }

func (c *WebSocketClient) UserID() uint { return c.userID }

func (c *WebSocketClient) ConversationKey() string { return c.key }

func (c *WebSocketClient) SendChannel() chan<- models.Event { return c.Send }

func (c *WebSocketClient) ReplayFromSeq() (uint64, bool) {
	if c.fromSeq == nil {
		return 0, false
	}
	return *c.fromSeq, true
}

// LastAck returns the highest seq the client has acknowledged.
func (c *WebSocketClient) LastAck() uint64 {
	return c.lastAck.Load()
}

func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close releases the send channel, which stops the write pump. The read pump
// stops on its own once the connection is closed.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// readPump consumes inbound frames. The only frame a subscriber sends is an
// acknowledgement of the highest seq it has rendered.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.UnregisterCh <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error",
					zap.String("session_id", c.sessionID), zap.Error(err))
			}
			break
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Debug("skipping undecodable frame",
				zap.String("session_id", c.sessionID), zap.Error(err))
			continue
		}

		if frame.Type == "ack" && frame.Seq > c.lastAck.Load() {
			c.lastAck.Store(frame.Seq)
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub released the channel; tell the peer we're done.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				c.log.Error("failed to encode event",
					zap.String("session_id", c.sessionID), zap.Error(err))
				continue
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
