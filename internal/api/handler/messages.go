package handler

import (
	"net/http"
	"strconv"

	"meshline/backend/internal/apperrors"
	"meshline/backend/internal/config"
	"meshline/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type sendMessageRequest struct {
	Content   string  `json:"content"`
	MediaURL  *string `json:"media_url"`
	MediaType *string `json:"media_type"`
}

// SendMessage appends a message to the conversation and fans it out to live
// subscribers. Durability comes first: once the append commits, a failed live
// push is invisible to the sender because the recipient catches up via
// pagination or replay.
func (h *Handler) SendMessage(c *gin.Context) {
	key := c.Param("key")
	userID := currentUserID(c)

	if !models.IsParticipant(key, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
		return
	}
	if h.rejectBanned(c, userID) {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receiverID, err := models.OtherParticipant(key, userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed conversation key"})
		return
	}

	msg, err := h.Storage.AppendMessage(c.Request.Context(), userID, receiverID, req.Content, req.MediaURL, req.MediaType)
	if err != nil {
		h.writeAppendError(c, err)
		return
	}

	ev := models.Event{
		Type:            models.EventMessageCreated,
		ConversationKey: key,
		Message:         msg,
	}
	if err := h.Storage.PublishEvent(key, ev); err != nil {
		// Message is durable; live delivery is best-effort.
		h.Log.Warn("live publish failed",
			zap.String("conversation", key), zap.Uint("message_id", msg.ID), zap.Error(err))
	}

	if h.Notifier != nil && !h.Hub.HasLiveSession(key, receiverID) {
		go h.Notifier.NotifyOffline(receiverID, msg)
	}

	c.JSON(http.StatusCreated, msg)
}

// GetMessages serves one reverse-chronological page of the conversation.
func (h *Handler) GetMessages(c *gin.Context) {
	key := c.Param("key")
	userID := currentUserID(c)

	if !models.IsParticipant(key, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
		return
	}

	var cursor *uint64
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed cursor"})
			return
		}
		cursor = &parsed
	}

	limit := config.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed limit"})
			return
		}
		limit = parsed
	}

	page, err := h.Storage.PageMessages(c.Request.Context(), key, cursor, limit)
	if err != nil {
		h.Log.Error("failed to page messages",
			zap.String("conversation", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) writeAppendError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsForbidden(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.Log.Error("append failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
	}
}

func (h *Handler) rejectBanned(c *gin.Context, userID uint) bool {
	banned, err := h.Storage.IsUserBanned(userID)
	if err != nil {
		h.Log.Warn("ban check failed", zap.Uint("user_id", userID), zap.Error(err))
		return false
	}
	if banned {
		c.JSON(http.StatusForbidden, gin.H{"error": "account suspended"})
		return true
	}
	return false
}
