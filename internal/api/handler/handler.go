package handler

import (
	"meshline/backend/internal/chathub"
	"meshline/backend/internal/media"
	"meshline/backend/internal/models"
	"meshline/backend/internal/storage"

	"go.uber.org/zap"
)

// OfflineNotifier pings a recipient with no live session about a new message.
// Best-effort: its failures never surface on the send path.
type OfflineNotifier interface {
	NotifyOffline(receiverID uint, msg *models.Message)
}

// Handler wires the HTTP surface to the hub, storage and supporting services.
type Handler struct {
	Hub      *chathub.Manager
	Storage  storage.Storage
	Typing   *chathub.TypingTracker
	Uploads  *media.Service
	Notifier OfflineNotifier
	Log      *zap.Logger

	jwtSecret []byte
}

func New(hub *chathub.Manager, st storage.Storage, typing *chathub.TypingTracker, uploads *media.Service, notifier OfflineNotifier, secret []byte, log *zap.Logger) *Handler {
	return &Handler{
		Hub:       hub,
		Storage:   st,
		Typing:    typing,
		Uploads:   uploads,
		Notifier:  notifier,
		Log:       log,
		jwtSecret: secret,
	}
}
