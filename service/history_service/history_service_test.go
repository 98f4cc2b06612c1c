package history_service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"live-notify-service/major"
	"live-notify-service/models"
	"live-notify-service/service/cache_service"
	"live-notify-service/service/pebble_service"
	"live-notify-service/service/store_service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fixture struct {
	svc      *Service
	convs    *store_service.ConversationRepository
	messages *store_service.MessageRepository
	notifs   *store_service.NotificationRepository
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := major.OpenDB("sqlite", "file::memory:", 1, 1)
	require.NoError(t, err)

	ps := pebble_service.NewPebbleService(&pebble_service.Config{DBPath: t.TempDir()})
	require.NoError(t, ps.Initialize())
	t.Cleanup(func() { _ = ps.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		convs:    store_service.NewConversationRepository(db),
		messages: store_service.NewMessageRepository(db),
		notifs:   store_service.NewNotificationRepository(db),
		mr:       mr,
	}
	f.svc = NewService(f.convs, f.messages, f.notifs, ps, cache_service.NewRedisHistoryCache(client, "h"), time.Minute)
	return f
}

func (f *fixture) seed(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	_, err := f.convs.GetOrCreate(ctx, "42", "user-a", "user-b", models.RoleCustomer)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		sender, receiver := "user-a", "user-b"
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		require.NoError(t, f.messages.Create(ctx, &models.Message{
			MessageID:      fmt.Sprintf("m%02d", i),
			ConversationID: "42",
			SenderID:       sender,
			ReceiverID:     receiver,
			Text:           fmt.Sprintf("msg %d", i),
			SentAt:         int64(1000 + i),
		}))
	}
}

func TestGetHistoryRejectsOutsiders(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 2)

	_, err := f.svc.GetHistory(context.Background(), "user-c", "42", "", 10, "backward")
	assert.ErrorIs(t, err, store_service.ErrNotParticipant)
}

func TestGetHistoryEmptyConversation(t *testing.T) {
	f := newFixture(t)
	page, err := f.svc.GetHistory(context.Background(), "user-a", "99", "", 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
}

func TestGetHistoryCachesOnlyOlderPages(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 5)
	ctx := context.Background()

	latest, err := f.svc.GetHistory(ctx, "user-a", "42", "", 2, "backward")
	require.NoError(t, err)
	require.Len(t, latest.Messages, 2)
	assert.Empty(t, f.mr.Keys(), "open-ended page is not cached")

	older, err := f.svc.GetHistory(ctx, "user-a", "42", latest.NextCursor, 2, "backward")
	require.NoError(t, err)
	assert.Equal(t, "m01", older.Messages[0].MessageID)
	assert.Equal(t, "m02", older.Messages[1].MessageID)

	assert.Eventually(t, func() bool { return len(f.mr.Keys()) == 1 }, time.Second, 10*time.Millisecond)

	again, err := f.svc.GetHistory(ctx, "user-a", "42", latest.NextCursor, 2, "backward")
	require.NoError(t, err)
	assert.Equal(t, older.NextCursor, again.NextCursor)
}

func TestGetHistoryValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.GetHistory(ctx, "user-a", "42", "garbage", 10, "backward")
	assert.ErrorIs(t, err, store_service.ErrInvalidInput)
	_, err = f.svc.GetHistory(ctx, "user-a", "42", "", 10, "up")
	assert.ErrorIs(t, err, store_service.ErrInvalidInput)
}

func TestMarkReadIsIdempotentAndRecomputesBadge(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 4) // user-b 收到 m00 和 m02
	ctx := context.Background()

	_, err := f.notifs.Create(ctx, &models.Notification{
		NotificationID:   "n-1",
		RecipientUserID:  "user-b",
		NotificationType: models.NotificationTypeMessage,
		ConversationID:   "42",
		Payload:          datatypes.NewJSONType(models.NotificationPayload{NotificationType: models.NotificationTypeMessage, Message: "msg 2"}),
	})
	require.NoError(t, err)

	n, err := f.svc.UnreadCount(ctx, "user-b", "42")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	res, err := f.svc.MarkRead(ctx, "user-b", "42", "m00")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, int64(1), res.UnreadCount)

	res, err = f.svc.MarkRead(ctx, "user-b", "42", "")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "m03", res.LastReadMessageID)
	assert.Equal(t, int64(0), res.UnreadCount)

	res, err = f.svc.MarkRead(ctx, "user-b", "42", "")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, int64(0), res.UnreadCount)

	unreadNotifs, err := f.notifs.CountUnread(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), unreadNotifs)
}

func TestMarkReadUnknownMessage(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	_, err := f.svc.MarkRead(context.Background(), "user-b", "42", "nope")
	assert.ErrorIs(t, err, store_service.ErrNotFound)
}
