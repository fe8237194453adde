package handler

import (
	"net/http"
	"strconv"

	"meshline/backend/internal/chathub"
	"meshline/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin in development. Tighten for prod.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Subscribe upgrades to a websocket subscription on one conversation.
// Membership is verified before the upgrade: a non-participant fails closed
// with 403, never a silently degraded stream. An optional from_seq query
// parameter requests replay of everything missed since that seq.
func (h *Handler) Subscribe(c *gin.Context) {
	userID := currentUserID(c)

	key := c.Query("key")
	if !models.IsParticipant(key, userID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
		return
	}
	if h.rejectBanned(c, userID) {
		return
	}

	var fromSeq *uint64
	if raw := c.Query("from_seq"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed from_seq"})
			return
		}
		fromSeq = &parsed
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, userID, key, fromSeq, h.Log)
	// Pumps start before registration so the write side is already draining
	// when registration kicks off a replay burst.
	client.Run()
	h.Hub.RegisterCh <- client
}
