package store_service

import (
	"context"
	"fmt"
	"testing"

	"live-notify-service/major"
	"live-notify-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	raw, err := db.DB()
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	require.NoError(t, major.Migrate(db))
	t.Cleanup(func() { _ = raw.Close() })
	return db
}

func TestConversationGetOrCreate(t *testing.T) {
	repo := NewConversationRepository(setupTestDB(t))
	ctx := context.Background()

	c, err := repo.GetOrCreate(ctx, "42", "user-a", "user-b", models.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, "user-a", c.CustomerID)
	assert.Equal(t, "user-b", c.ProviderID)

	// 服务方再次联系不会改变双方身份
	c, err = repo.GetOrCreate(ctx, "42", "user-b", "user-a", models.RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, "user-a", c.CustomerID)
	assert.Equal(t, "user-a", c.Peer("user-b"))
	assert.True(t, c.HasParticipant("user-b"))
	assert.False(t, c.HasParticipant("user-c"))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func seedMessages(t *testing.T, repo *MessageRepository, conv string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		sender, receiver := "user-a", "user-b"
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		require.NoError(t, repo.Create(context.Background(), &models.Message{
			MessageID:      fmt.Sprintf("m%02d", i),
			ConversationID: conv,
			SenderID:       sender,
			ReceiverID:     receiver,
			Text:           fmt.Sprintf("msg %d", i),
			SentAt:         int64(1000 + i/2), // 每两条共用一个时间戳
		}))
	}
}

func ids(msgs []*models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.MessageID)
	}
	return out
}

func TestMessageListBackwardPagesInRenderOrder(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))
	ctx := context.Background()
	seedMessages(t, repo, "42", 5)

	page, err := repo.List(ctx, "42", nil, 2, models.DirectionBackward)
	require.NoError(t, err)
	assert.Equal(t, []string{"m03", "m04"}, ids(page.Messages))
	assert.True(t, page.HasMore)

	cur, err := models.ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "m03", cur.MessageID)

	page, err = repo.List(ctx, "42", cur, 10, models.DirectionBackward)
	require.NoError(t, err)
	assert.Equal(t, []string{"m00", "m01", "m02"}, ids(page.Messages))
	assert.False(t, page.HasMore)
}

func TestMessageListForwardFromCursor(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))
	ctx := context.Background()
	seedMessages(t, repo, "42", 5)

	page, err := repo.List(ctx, "42", &models.Cursor{SentAt: 1001, MessageID: "m02"}, 10, models.DirectionForward)
	require.NoError(t, err)
	assert.Equal(t, []string{"m03", "m04"}, ids(page.Messages))

	page, err = repo.List(ctx, "empty", nil, 10, models.DirectionForward)
	require.NoError(t, err)
	assert.NotNil(t, page.Messages)
	assert.Empty(t, page.Messages)
}

func TestMessageLatestAndUnread(t *testing.T) {
	repo := NewMessageRepository(setupTestDB(t))
	ctx := context.Background()
	seedMessages(t, repo, "42", 5)

	latest, err := repo.Latest(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "m04", latest.MessageID)

	_, err = repo.Latest(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	// user-b 收到 m00、m02、m04
	n, err := repo.CountUnread(ctx, "42", "user-b", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.CountUnread(ctx, "42", "user-b", &models.Cursor{SentAt: 1001, MessageID: "m02"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.MarkDelivered(ctx, "m04", 5000))
	require.NoError(t, repo.MarkDelivered(ctx, "m04", 6000))
	m, err := repo.Get(ctx, "m04")
	require.NoError(t, err)
	require.NotNil(t, m.DeliveredAt)
	assert.Equal(t, int64(5000), *m.DeliveredAt)
}

func newNotification(id, user string, typ models.NotificationType, conv string) *models.Notification {
	return &models.Notification{
		NotificationID:   id,
		RecipientUserID:  user,
		NotificationType: typ,
		ConversationID:   conv,
		Payload: datatypes.NewJSONType(models.NotificationPayload{
			NotificationType: typ,
			RequestID:        conv,
			Message:          "hello",
		}),
	}
}

func TestNotificationCreateIsIdempotent(t *testing.T) {
	repo := NewNotificationRepository(setupTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, newNotification("n1", "user-b", models.NotificationTypeMessage, "42"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, newNotification("n1", "user-b", models.NotificationTypeMessage, "42"))
	require.NoError(t, err)
	assert.False(t, created)

	n, err := repo.CountUnread(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Payload.Data().Message)
	assert.Equal(t, "42", got.Push().RequestID)
}

func TestNotificationReadStateAndDelete(t *testing.T) {
	repo := NewNotificationRepository(setupTestDB(t))
	ctx := context.Background()

	for i, typ := range []models.NotificationType{
		models.NotificationTypeMessage,
		models.NotificationTypeMessage,
		models.NotificationTypeReviewReceived,
	} {
		conv := "42"
		if i == 1 {
			conv = "43"
		}
		_, err := repo.Create(ctx, newNotification(fmt.Sprintf("n%d", i), "user-b", typ, conv))
		require.NoError(t, err)
	}

	changed, err := repo.MarkConversationRead(ctx, "user-b", "42")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	require.NoError(t, repo.MarkRead(ctx, "user-b", "n2"))
	require.NoError(t, repo.MarkRead(ctx, "user-b", "n2"), "marking twice is fine")
	assert.ErrorIs(t, repo.MarkRead(ctx, "user-a", "n2"), ErrNotFound)

	unread, err := repo.CountUnread(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	page, err := repo.List(ctx, "user-b", 1, 10, true)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "n1", page.Items[0].NotificationID)

	all, err := repo.MarkAllRead(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), all)

	require.NoError(t, repo.Delete(ctx, "user-b", "n0"))
	assert.ErrorIs(t, repo.Delete(ctx, "user-b", "n0"), ErrNotFound)

	page, err = repo.List(ctx, "user-b", 1, 10, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}
