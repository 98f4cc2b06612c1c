package store_service

import (
	"context"
	"fmt"
	"slices"

	"live-notify-service/models"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, messageID string) (*models.Message, error) {
	var m models.Message
	if err := r.db.WithContext(ctx).First(&m, "message_id = ?", messageID).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// List 按展示顺序返回一页历史消息。backward 从游标向更早的消息翻页，
// forward 向更新的消息翻页
func (r *MessageRepository) List(ctx context.Context, conversationID string, cursor *models.Cursor, limit int, dir models.Direction) (*models.MessagePage, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if dir == models.DirectionForward {
		if cursor != nil {
			q = q.Where("sent_at > ? OR (sent_at = ? AND message_id > ?)", cursor.SentAt, cursor.SentAt, cursor.MessageID)
		}
		q = q.Order("sent_at ASC").Order("message_id ASC")
	} else {
		if cursor != nil {
			q = q.Where("sent_at < ? OR (sent_at = ? AND message_id < ?)", cursor.SentAt, cursor.SentAt, cursor.MessageID)
		}
		q = q.Order("sent_at DESC").Order("message_id DESC")
	}

	var rows []*models.Message
	if err := q.Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	page := &models.MessagePage{Messages: rows}
	if len(rows) > limit {
		page.HasMore = true
		page.Messages = rows[:limit]
	}
	if n := len(page.Messages); n > 0 {
		last := page.Messages[n-1]
		page.NextCursor = models.Cursor{SentAt: last.SentAt, MessageID: last.MessageID}.String()
	}
	if dir != models.DirectionForward {
		slices.Reverse(page.Messages)
	}
	if page.Messages == nil {
		page.Messages = []*models.Message{}
	}
	return page, nil
}

// Latest 获取会话的最新消息
func (r *MessageRepository) Latest(ctx context.Context, conversationID string) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC").Order("message_id DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// CountUnread 统计指定位置之后发给 userID 的消息数，位置为 nil 时统计全部
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID, userID string, after *models.Cursor) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ?", conversationID, userID)
	if after != nil {
		q = q.Where("sent_at > ? OR (sent_at = ? AND message_id > ?)", after.SentAt, after.SentAt, after.MessageID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkDelivered 为尚未送达的消息记录 deliveredAt
func (r *MessageRepository) MarkDelivered(ctx context.Context, messageID string, at int64) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("message_id = ? AND delivered_at IS NULL", messageID).
		Update("delivered_at", at).Error
}
