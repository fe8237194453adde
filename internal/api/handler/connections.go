package handler

import (
	"net/http"

	"meshline/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type connectionRequest struct {
	AddresseeID uint `json:"addressee_id" binding:"required"`
}

// RequestConnection creates a pending connection toward another user.
// Minimal surface: messaging requires an approved connection, so the core
// carries just enough of the relationship lifecycle to exercise that check.
func (h *Handler) RequestConnection(c *gin.Context) {
	userID := currentUserID(c)

	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AddresseeID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot connect to yourself"})
		return
	}

	conn := &models.Connection{
		RequesterID: userID,
		AddresseeID: req.AddresseeID,
		Status:      models.ConnectionPending,
	}
	if err := h.Storage.SaveConnection(conn); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create connection"})
		return
	}
	c.JSON(http.StatusCreated, conn)
}

type connectionDecisionRequest struct {
	RequesterID uint   `json:"requester_id" binding:"required"`
	Status      string `json:"status" binding:"required,oneof=approved blocked"`
}

// DecideConnection approves or blocks a pending request addressed to the
// caller.
func (h *Handler) DecideConnection(c *gin.Context) {
	userID := currentUserID(c)

	var req connectionDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.Storage.UpdateConnectionStatus(req.RequesterID, userID, req.Status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update connection"})
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such connection request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requester_id": req.RequesterID, "addressee_id": userID, "status": req.Status})
}
