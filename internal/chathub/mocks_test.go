package chathub_test

import (
	"context"
	"sync"
	"time"

	"meshline/backend/internal/chathub"
	"meshline/backend/internal/models"
	"meshline/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// MockStorage implements storage.Storage with testify/mock so tests can set
// expectations per call.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) CreateUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStorage) FindUserByUsername(username string) (*models.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) FindUserByID(id uint) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SaveConnection(conn *models.Connection) error {
	args := m.Called(conn)
	return args.Error(0)
}

func (m *MockStorage) UpdateConnectionStatus(requesterID, addresseeID uint, status string) (bool, error) {
	args := m.Called(requesterID, addresseeID, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) HasApprovedConnection(a, b uint) (bool, error) {
	args := m.Called(a, b)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) AppendMessage(ctx context.Context, senderID, receiverID uint, content string, mediaURL, mediaType *string) (*models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content, mediaURL, mediaType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) PageMessages(ctx context.Context, key string, cursor *uint64, limit int) (*models.MessagePage, error) {
	args := m.Called(ctx, key, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

func (m *MockStorage) MessagesAfterSeq(ctx context.Context, key string, afterSeq uint64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, key, afterSeq, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) PublishEvent(key string, ev models.Event) error {
	args := m.Called(key, ev)
	return args.Error(0)
}

func (m *MockStorage) SubscribeEvents() *redis.PubSub {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*redis.PubSub)
}

func (m *MockStorage) IsUserBanned(userID uint) (bool, error) {
	args := m.Called(userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) BanUser(userID uint, duration time.Duration) error {
	args := m.Called(userID, duration)
	return args.Error(0)
}

func (m *MockStorage) UnbanUser(userID uint) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockStorage) RecordForbiddenAttempt(senderID, receiverID uint, reason string) error {
	args := m.Called(senderID, receiverID, reason)
	return args.Error(0)
}

func (m *MockStorage) RecentForbiddenAttempts(limit int) ([]models.AbuseAudit, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AbuseAudit), args.Error(1)
}

// stubClient is a plain test double for chathub.Client with a buffered
// receive channel.
type stubClient struct {
	sessionID string
	userID    uint
	key       string
	fromSeq   *uint64

	Recv chan models.Event

	mu     sync.Mutex
	closed bool
}

func newStubClient(sessionID string, userID uint, key string) *stubClient {
	return &stubClient{
		sessionID: sessionID,
		userID:    userID,
		key:       key,
		Recv:      make(chan models.Event, 256),
	}
}

func (c *stubClient) SessionID() string { return c.sessionID }

func (c *stubClient) UserID() uint { return c.userID }

func (c *stubClient) ConversationKey() string { return c.key }

func (c *stubClient) SendChannel() chan<- models.Event { return c.Recv }

func (c *stubClient) ReplayFromSeq() (uint64, bool) {
	if c.fromSeq == nil {
		return 0, false
	}
	return *c.fromSeq, true
}

func (c *stubClient) Run() {}

func (c *stubClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Recv)
	}
}

func (c *stubClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DrainMessages empties the receive channel for assertions.
func (c *stubClient) DrainMessages() []models.Event {
	var events []models.Event
	for {
		select {
		case ev, ok := <-c.Recv:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

var _ chathub.Client = (*stubClient)(nil)
