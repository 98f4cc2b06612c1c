package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"live-notify-service/controller/auth"
	"live-notify-service/major"
	"live-notify-service/models"
	"live-notify-service/service/history_service"
	"live-notify-service/service/pebble_service"
	pushcenter "live-notify-service/service/push_center"
	"live-notify-service/service/store_service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type recordingPublisher struct {
	reqs []pushcenter.PublishRequest
}

func (p *recordingPublisher) Publish(_ context.Context, req pushcenter.PublishRequest) (*pushcenter.PublishResult, error) {
	if !req.NotificationType.Valid() {
		return nil, pushcenter.ErrInvalidRequest
	}
	p.reqs = append(p.reqs, req)
	return &pushcenter.PublishResult{Sessions: 1}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	router   *gin.Engine
	tokens   *auth.TokenManager
	pub      *recordingPublisher
	messages *store_service.MessageRepository
	notifs   *store_service.NotificationRepository
	healthy  error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := major.OpenDB("sqlite", "file::memory:", 1, 1)
	require.NoError(t, err)
	ps := pebble_service.NewPebbleService(&pebble_service.Config{DBPath: t.TempDir()})
	require.NoError(t, ps.Initialize())
	t.Cleanup(func() { _ = ps.Close() })

	convs := store_service.NewConversationRepository(db)
	f := &fixture{
		tokens:   auth.NewTokenManager("test-secret", "", time.Hour),
		pub:      &recordingPublisher{},
		messages: store_service.NewMessageRepository(db),
		notifs:   store_service.NewNotificationRepository(db),
	}
	history := history_service.NewService(convs, f.messages, f.notifs, ps, nil, 0)

	ctx := context.Background()
	_, err = convs.GetOrCreate(ctx, "42", "user-a", "user-b", models.RoleCustomer)
	require.NoError(t, err)
	base := time.Now().UnixMilli()
	require.NoError(t, f.messages.Create(ctx, &models.Message{MessageID: "m1", ConversationID: "42", SenderID: "user-a", ReceiverID: "user-b", Text: "Hi", SentAt: base}))
	require.NoError(t, f.messages.Create(ctx, &models.Message{MessageID: "m2", ConversationID: "42", SenderID: "user-b", ReceiverID: "user-a", Text: "Hello", SentAt: base + 1}))
	for _, id := range []string{"n1", "n2"} {
		_, err := f.notifs.Create(ctx, &models.Notification{
			NotificationID:   id,
			RecipientUserID:  "user-b",
			NotificationType: models.NotificationTypeReviewReceived,
			Payload:          datatypes.NewJSONType(models.NotificationPayload{NotificationType: models.NotificationTypeReviewReceived, Message: "new review"}),
		})
		require.NoError(t, err)
	}

	f.router = NewRouter(&Deps{
		Tokens:        f.tokens,
		APIKey:        "internal-key",
		Conversations: history,
		Notifications: f.notifs,
		Publisher:     f.pub,
		Health:        func(context.Context) error { return f.healthy },
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, user, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		tok, err := f.tokens.Issue(user, "")
		require.NoError(t, err)
		req.Header.Set(auth.AuthHeaderKey, auth.BearerPrefix+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, env := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	f.healthy = errors.New("pebble closed")
	w, _ = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUserRoutesRequireBearer(t *testing.T) {
	f := newFixture(t)
	w, env := f.do(t, http.MethodGet, "/v1/notifications", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotZero(t, env.Code)
}

func TestConversationHistory(t *testing.T) {
	f := newFixture(t)
	w, env := f.do(t, http.MethodGet, "/v1/conversations/42/messages?limit=10", "user-a", "")
	require.Equal(t, http.StatusOK, w.Code)

	var page models.MessagePage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "Hi", page.Messages[0].Text)
	assert.Equal(t, "Hello", page.Messages[1].Text)

	w, env = f.do(t, http.MethodGet, "/v1/conversations/42/messages", "user-c", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 403, env.Code)

	w, _ = f.do(t, http.MethodGet, "/v1/conversations/42/messages?direction=sideways", "user-a", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/v1/conversations/42/messages?cursor=garbage", "user-a", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationReadAndUnread(t *testing.T) {
	f := newFixture(t)

	_, env := f.do(t, http.MethodGet, "/v1/conversations/42/unread-count", "user-b", "")
	assert.JSONEq(t, `{"count":1}`, string(env.Data))

	w, env := f.do(t, http.MethodPut, "/v1/conversations/42/read", "user-b", `{"messageID":"m1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res models.ReadResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Changed)
	assert.Equal(t, int64(0), res.UnreadCount)

	// 重复调用不产生变化
	_, env = f.do(t, http.MethodPut, "/v1/conversations/42/read", "user-b", `{"messageID":"m1"}`)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.False(t, res.Changed)

	// 空请求体标记到最新消息
	w, env = f.do(t, http.MethodPut, "/v1/conversations/42/read", "user-a", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "m2", res.LastReadMessageID)

	w, _ = f.do(t, http.MethodPut, "/v1/conversations/42/read", "user-b", `{"messageID":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationRoutes(t *testing.T) {
	f := newFixture(t)

	_, env := f.do(t, http.MethodGet, "/v1/notifications/unread-count", "user-b", "")
	assert.JSONEq(t, `{"count":2}`, string(env.Data))

	_, env = f.do(t, http.MethodGet, "/v1/notifications?page=1&pageSize=1", "user-b", "")
	var page models.NotificationPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 1)

	w, _ := f.do(t, http.MethodPost, "/v1/notifications/n1/read", "user-b", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodPost, "/v1/notifications/n1/read", "user-b", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodPost, "/v1/notifications/n1/read", "user-a", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, env = f.do(t, http.MethodGet, "/v1/notifications/unread-count", "user-b", "")
	assert.JSONEq(t, `{"count":1}`, string(env.Data))

	_, env = f.do(t, http.MethodPost, "/v1/notifications/read-all", "user-b", "")
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))

	w, _ = f.do(t, http.MethodDelete, "/v1/notifications/n2", "user-b", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodDelete, "/v1/notifications/n2", "user-b", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInternalPublish(t *testing.T) {
	f := newFixture(t)
	body := `{"recipientUserID":"user-b","notificationType":"request_accepted","requestID":"r-9","message":"accepted"}`

	req := httptest.NewRequest(http.MethodPost, "/v1/internal/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/internal/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, "internal-key")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.pub.reqs, 1)
	assert.Equal(t, "r-9", f.pub.reqs[0].RequestID)

	req = httptest.NewRequest(http.MethodPost, "/v1/internal/notifications",
		strings.NewReader(`{"recipientUserID":"user-b","notificationType":"bogus","message":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, "internal-key")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
