package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meshline/backend/internal/api/handler"
	"meshline/backend/internal/apperrors"
	"meshline/backend/internal/chathub"
	"meshline/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(storageMock *MockStorage, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)

	hub := chathub.NewManager(storageMock, zap.NewNop())
	typing := chathub.NewTypingTracker(storageMock, 2*time.Second, zap.NewNop())
	h := handler.New(hub, storageMock, typing, nil, nil, []byte("test-secret"), zap.NewNop())

	r := gin.New()
	authed := r.Group("/", func(c *gin.Context) {
		c.Set("user_id", userID)
	})
	authed.POST("/conversations/:key/messages", h.SendMessage)
	authed.GET("/conversations/:key/messages", h.GetMessages)
	authed.POST("/conversations/:key/typing", h.SetTyping)
	authed.GET("/ws", h.Subscribe)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSendMessage_Success(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("IsUserBanned", uint(3)).Return(false, nil)
	storageMock.On("AppendMessage", mock.Anything, uint(3), uint(7), "hi", (*string)(nil), (*string)(nil)).
		Return(&models.Message{ID: 101, ConversationKey: "3-7", Seq: 101, SenderID: 3, ReceiverID: 7, Content: "hi"}, nil)
	storageMock.On("PublishEvent", "3-7", mock.AnythingOfType("models.Event")).Return(nil)

	r := newTestRouter(storageMock, 3)
	w := doJSON(r, http.MethodPost, "/conversations/3-7/messages", `{"content":"hi"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var got models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, uint(101), got.ID)
	assert.Equal(t, uint(3), got.SenderID)
	assert.Equal(t, uint(7), got.ReceiverID)
	assert.Equal(t, "hi", got.Content)

	storageMock.AssertCalled(t, "PublishEvent", "3-7", mock.AnythingOfType("models.Event"))
}

func TestSendMessage_EmptyPayloadRejected(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("IsUserBanned", uint(3)).Return(false, nil)
	storageMock.On("AppendMessage", mock.Anything, uint(3), uint(7), "", (*string)(nil), (*string)(nil)).
		Return(nil, apperrors.Validationf("message needs content or media"))

	r := newTestRouter(storageMock, 3)
	w := doJSON(r, http.MethodPost, "/conversations/3-7/messages", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	storageMock.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything)
}

func TestSendMessage_NoApprovedConnection(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("IsUserBanned", uint(3)).Return(false, nil)
	storageMock.On("AppendMessage", mock.Anything, uint(3), uint(7), "hi", (*string)(nil), (*string)(nil)).
		Return(nil, apperrors.Forbiddenf("no approved connection between 3 and 7"))

	r := newTestRouter(storageMock, 3)
	w := doJSON(r, http.MethodPost, "/conversations/3-7/messages", `{"content":"hi"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSendMessage_NonParticipantRejected(t *testing.T) {
	storageMock := new(MockStorage)

	r := newTestRouter(storageMock, 5) // 5 is not part of "3-7"
	w := doJSON(r, http.MethodPost, "/conversations/3-7/messages", `{"content":"hi"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	storageMock.AssertNotCalled(t, "AppendMessage",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_BannedSenderRejected(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("IsUserBanned", uint(3)).Return(true, nil)

	r := newTestRouter(storageMock, 3)
	w := doJSON(r, http.MethodPost, "/conversations/3-7/messages", `{"content":"hi"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	storageMock.AssertNotCalled(t, "AppendMessage",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessages_FirstPage(t *testing.T) {
	storageMock := new(MockStorage)
	next := uint64(82)
	storageMock.On("PageMessages", mock.Anything, "3-7", (*uint64)(nil), 20).
		Return(&models.MessagePage{
			Messages: []models.Message{
				{ID: 101, ConversationKey: "3-7", Seq: 101, SenderID: 3, ReceiverID: 7, Content: "hi"},
			},
			HasMore:    true,
			NextCursor: &next,
		}, nil)

	r := newTestRouter(storageMock, 7)
	w := doJSON(r, http.MethodGet, "/conversations/3-7/messages", "")

	require.Equal(t, http.StatusOK, w.Code)

	var page models.MessagePage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, uint64(101), page.Messages[0].Seq)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, uint64(82), *page.NextCursor)
}

func TestGetMessages_CursorPassedThrough(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("PageMessages", mock.Anything, "3-7",
		mock.MatchedBy(func(cursor *uint64) bool { return cursor != nil && *cursor == 50 }), 10).
		Return(&models.MessagePage{}, nil)

	r := newTestRouter(storageMock, 3)
	w := doJSON(r, http.MethodGet, "/conversations/3-7/messages?cursor=50&limit=10", "")

	assert.Equal(t, http.StatusOK, w.Code)
	storageMock.AssertExpectations(t)
}

func TestGetMessages_MalformedCursorRejected(t *testing.T) {
	storageMock := new(MockStorage)

	r := newTestRouter(storageMock, 3)
	w := doJSON(r, http.MethodGet, "/conversations/3-7/messages?cursor=abc", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	storageMock.AssertNotCalled(t, "PageMessages",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessages_NonParticipantRejected(t *testing.T) {
	storageMock := new(MockStorage)

	r := newTestRouter(storageMock, 9)
	w := doJSON(r, http.MethodGet, "/conversations/3-7/messages", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSetTyping_BroadcastsChange(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("IsUserBanned", uint(3)).Return(false, nil)
	storageMock.On("PublishEvent", "3-7", mock.MatchedBy(func(ev models.Event) bool {
		return ev.Type == models.EventTypingChanged &&
			ev.Typing != nil && ev.Typing.UserID == 3 && ev.Typing.IsTyping
	})).Return(nil)

	r := newTestRouter(storageMock, 3)
	w := doJSON(r, http.MethodPost, "/conversations/3-7/typing", `{"is_typing":true}`)

	assert.Equal(t, http.StatusOK, w.Code)
	storageMock.AssertExpectations(t)
}

func TestSetTyping_NonParticipantRejected(t *testing.T) {
	storageMock := new(MockStorage)

	r := newTestRouter(storageMock, 9)
	w := doJSON(r, http.MethodPost, "/conversations/3-7/typing", `{"is_typing":true}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	storageMock.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything)
}

func TestSetTyping_BannedUserRejected(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("IsUserBanned", uint(3)).Return(true, nil)

	r := newTestRouter(storageMock, 3)
	w := doJSON(r, http.MethodPost, "/conversations/3-7/typing", `{"is_typing":true}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	storageMock.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything)
}

func TestSubscribe_FailsClosed(t *testing.T) {
	storageMock := new(MockStorage)

	// Non-participant: rejected before any upgrade is attempted.
	r := newTestRouter(storageMock, 9)
	w := doJSON(r, http.MethodGet, "/ws?key=3-7", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Malformed replay cursor.
	storageMock.On("IsUserBanned", uint(3)).Return(false, nil)
	r = newTestRouter(storageMock, 3)
	w = doJSON(r, http.MethodGet, "/ws?key=3-7&from_seq=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
