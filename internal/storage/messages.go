package storage

import (
	"context"

	"meshline/backend/internal/apperrors"
	"meshline/backend/internal/config"
	"meshline/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendMessage durably appends a message to the sender/receiver conversation.
//
// The approved-connection check runs inside the same transaction as the
// append, so a revoked connection can never race a send. Seq assignment takes
// a row lock on the conversation's counter, serializing appends per
// conversation only.
func (s *Service) AppendMessage(ctx context.Context, senderID, receiverID uint, content string, mediaURL, mediaType *string) (*models.Message, error) {
	if content == "" && (mediaURL == nil || *mediaURL == "") {
		return nil, apperrors.Validationf("message needs content or media")
	}
	if senderID == receiverID {
		return nil, apperrors.Validationf("cannot message yourself")
	}

	key := models.ConversationKeyFor(senderID, receiverID)

	var msg models.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := hasApprovedConnection(tx, senderID, receiverID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Forbiddenf("no approved connection between %d and %d", senderID, receiverID)
		}

		state, err := lockConversationState(tx, key)
		if err != nil {
			return err
		}

		state.LastSeq++
		if err := tx.Model(&models.ConversationState{}).
			Where("key = ?", key).
			Update("last_seq", state.LastSeq).Error; err != nil {
			return err
		}

		msg = models.Message{
			ConversationKey: key,
			Seq:             state.LastSeq,
			SenderID:        senderID,
			ReceiverID:      receiverID,
			Content:         content,
			MediaURL:        mediaURL,
			MediaType:       mediaType,
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		if apperrors.IsForbidden(err) {
			// Abuse trail; failure to record must not mask the 403.
			if auditErr := s.RecordForbiddenAttempt(senderID, receiverID, "append without approved connection"); auditErr != nil {
				s.Log.Warn("failed to record forbidden attempt",
					zap.Uint("sender_id", senderID), zap.Error(auditErr))
			}
		}
		return nil, err
	}
	return &msg, nil
}

// lockConversationState pins the conversation's counter row for the rest of
// the transaction. The blind insert tolerates two first appends racing on a
// brand-new conversation: whichever transaction loses the insert still finds
// the winner's row and queues on its lock.
func lockConversationState(tx *gorm.DB, key string) (*models.ConversationState, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ConversationState{Key: key}).Error; err != nil {
		return nil, err
	}
	var state models.ConversationState
	if err := lockForUpdate(tx).
		Where("key = ?", key).
		First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// Row locks are a Postgres concern. SQLite, which backs the storage tests,
// serializes writers on its own and rejects FOR UPDATE.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// PageMessages serves one reverse-chronological page. cursor is the seq of
// the oldest message from the previous page; nil means start from the newest.
// The same cursor always yields the same page.
func (s *Service) PageMessages(ctx context.Context, key string, cursor *uint64, limit int) (*models.MessagePage, error) {
	if limit <= 0 {
		limit = config.DefaultPageSize
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}

	q := s.DB.WithContext(ctx).
		Where("conversation_key = ?", key).
		Order("seq DESC").
		Limit(limit + 1)
	if cursor != nil {
		q = q.Where("seq < ?", *cursor)
	}

	var messages []models.Message
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}

	page := &models.MessagePage{}
	if len(messages) > limit {
		page.HasMore = true
		messages = messages[:limit]
	}
	page.Messages = messages
	if len(messages) > 0 && page.HasMore {
		oldest := messages[len(messages)-1].Seq
		page.NextCursor = &oldest
	}
	return page, nil
}

// MessagesAfterSeq returns at most limit messages with seq > afterSeq in
// ascending order. Reconnect replay and gap fills walk forward in these
// batches rather than loading a whole backlog at once.
func (s *Service) MessagesAfterSeq(ctx context.Context, key string, afterSeq uint64, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}
	var messages []models.Message
	err := s.DB.WithContext(ctx).
		Where("conversation_key = ? AND seq > ?", key, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Service) RecordForbiddenAttempt(senderID, receiverID uint, reason string) error {
	return s.DB.Create(&models.AbuseAudit{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Reason:     reason,
	}).Error
}

func (s *Service) RecentForbiddenAttempts(limit int) ([]models.AbuseAudit, error) {
	var rows []models.AbuseAudit
	err := s.DB.Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
