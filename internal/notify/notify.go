// Package notify bridges missed messages to an out-of-band channel. When a
// message routes to zero live sessions of its recipient, the recipient's
// linked Telegram chat gets a short ping so they know to come back. The
// bridge is best-effort: the message is already durable, so a failed ping is
// logged and dropped.
package notify

import (
	"fmt"

	"meshline/backend/internal/models"
	"meshline/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const previewLimit = 80

type Service struct {
	bot     *tgbotapi.BotAPI
	storage storage.Storage
	log     *zap.Logger
}

// NewService builds the bridge. An empty token disables it; NotifyOffline
// becomes a no-op so callers never need to branch.
func NewService(token string, st storage.Storage, log *zap.Logger) (*Service, error) {
	s := &Service{storage: st, log: log}
	if token == "" {
		log.Info("offline notification bridge disabled (no bot token)")
		return s, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("start notification bot: %w", err)
	}
	s.bot = bot
	return s, nil
}

func (s *Service) NotifyOffline(receiverID uint, msg *models.Message) {
	if s.bot == nil {
		return
	}

	user, err := s.storage.FindUserByID(receiverID)
	if err != nil {
		s.log.Warn("offline notify lookup failed",
			zap.Uint("receiver_id", receiverID), zap.Error(err))
		return
	}
	if user == nil || user.TelegramChatID == nil {
		return
	}

	sender, err := s.storage.FindUserByID(msg.SenderID)
	senderName := fmt.Sprintf("user %d", msg.SenderID)
	if err == nil && sender != nil {
		senderName = sender.Username
	}

	text := fmt.Sprintf("New message from %s: %s", senderName, preview(msg))
	if _, err := s.bot.Send(tgbotapi.NewMessage(*user.TelegramChatID, text)); err != nil {
		s.log.Warn("offline notify send failed",
			zap.Uint("receiver_id", receiverID), zap.Error(err))
	}
}

func preview(msg *models.Message) string {
	if msg.Content == "" {
		return "[attachment]"
	}
	runes := []rune(msg.Content)
	if len(runes) <= previewLimit {
		return msg.Content
	}
	return string(runes[:previewLimit]) + "…"
}
