package handler

import (
	"net/http"

	"meshline/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type typingRequest struct {
	IsTyping *bool `json:"is_typing" binding:"required"`
}

// SetTyping is the fire-and-forget keystroke signal. The tracker owns the
// idle expiry, so a client that vanishes mid-keystroke still stops "typing"
// on its own.
func (h *Handler) SetTyping(c *gin.Context) {
	key := c.Param("key")
	userID := currentUserID(c)

	if !models.IsParticipant(key, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
		return
	}
	if h.rejectBanned(c, userID) {
		return
	}

	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.Typing.SetTyping(key, userID, *req.IsTyping)
	c.JSON(http.StatusOK, gin.H{})
}
