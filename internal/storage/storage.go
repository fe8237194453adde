package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"meshline/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage is the persistence and fan-out surface consumed by the hub and the
// HTTP handlers. It is an interface so tests can substitute a mock.
type Storage interface {
	CreateUser(user *models.User) error
	FindUserByUsername(username string) (*models.User, error)
	FindUserByID(id uint) (*models.User, error)

	SaveConnection(conn *models.Connection) error
	UpdateConnectionStatus(requesterID, addresseeID uint, status string) (bool, error)
	HasApprovedConnection(a, b uint) (bool, error)

	AppendMessage(ctx context.Context, senderID, receiverID uint, content string, mediaURL, mediaType *string) (*models.Message, error)
	PageMessages(ctx context.Context, key string, cursor *uint64, limit int) (*models.MessagePage, error)
	MessagesAfterSeq(ctx context.Context, key string, afterSeq uint64, limit int) ([]models.Message, error)

	PublishEvent(key string, ev models.Event) error
	SubscribeEvents() *redis.PubSub

	IsUserBanned(userID uint) (bool, error)
	BanUser(userID uint, duration time.Duration) error
	UnbanUser(userID uint) error

	RecordForbiddenAttempt(senderID, receiverID uint, reason string) error
	RecentForbiddenAttempts(limit int) ([]models.AbuseAudit, error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
	Log   *zap.Logger
}

var _ Storage = (*Service)(nil)

func NewService(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
		Log:   log,
	}
}

func (s *Service) CreateUser(user *models.User) error {
	return s.DB.Create(user).Error
}

func (s *Service) FindUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) FindUserByID(id uint) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveConnection inserts or refreshes the connection for its (requester,
// addressee) pair.
func (s *Service) SaveConnection(conn *models.Connection) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "requester_id"}, {Name: "addressee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(conn).Error
}

// UpdateConnectionStatus transitions an existing connection addressed to
// addresseeID. Returns false when no such request exists, so an approval can
// never conjure a connection the requester did not ask for.
func (s *Service) UpdateConnectionStatus(requesterID, addresseeID uint, status string) (bool, error) {
	res := s.DB.Model(&models.Connection{}).
		Where("requester_id = ? AND addressee_id = ?", requesterID, addresseeID).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasApprovedConnection reports whether an approved connection exists between
// the two users, in either direction. Never cached: connection status can
// change between calls.
func (s *Service) HasApprovedConnection(a, b uint) (bool, error) {
	return hasApprovedConnection(s.DB, a, b)
}

func hasApprovedConnection(db *gorm.DB, a, b uint) (bool, error) {
	var count int64
	err := db.Model(&models.Connection{}).
		Where("status = ?", models.ConnectionApproved).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PublishEvent fans an event out to every server instance subscribed to the
// conversation's channel.
func (s *Service) PublishEvent(key string, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, eventChannel(key), payload).Err()
}

// SubscribeEvents subscribes to the live channels of every conversation.
func (s *Service) SubscribeEvents() *redis.PubSub {
	return s.Redis.PSubscribe(s.Ctx, "conv:*")
}

func eventChannel(key string) string {
	return "conv:" + key
}

// IsUserBanned checks the ban flag in Redis.
func (s *Service) IsUserBanned(userID uint) (bool, error) {
	status, err := s.Redis.Get(s.Ctx, banKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

func (s *Service) BanUser(userID uint, duration time.Duration) error {
	return s.Redis.Set(s.Ctx, banKey(userID), "banned", duration).Err()
}

func (s *Service) UnbanUser(userID uint) error {
	return s.Redis.Del(s.Ctx, banKey(userID)).Err()
}

func banKey(userID uint) string {
	return fmt.Sprintf("ban:%d", userID)
}
