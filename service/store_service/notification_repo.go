package store_service

import (
	"context"
	"fmt"

	"live-notify-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create 插入通知，相同通知ID已存在时跳过，返回是否插入
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "notification_id"}}, DoNothing: true}).
		Create(n)
	if res.Error != nil {
		return false, fmt.Errorf("create notification: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *NotificationRepository) Get(ctx context.Context, notificationID string) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, "notification_id = ?", notificationID).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (r *NotificationRepository) List(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) (*models.NotificationPage, error) {
	q := r.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_status = ?", models.ReadStatusUnread)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	items := []*models.Notification{}
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return &models.NotificationPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_user_id = ? AND read_status = ?", userID, models.ReadStatusUnread).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead 标记已读（幂等），仅在用户没有该通知时返回错误
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("notification_id = ? AND recipient_user_id = ?", notificationID, userID).
		Update("read_status", models.ReadStatusRead)
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var exists int64
		r.db.WithContext(ctx).Model(&models.Notification{}).
			Where("notification_id = ? AND recipient_user_id = ?", notificationID, userID).
			Count(&exists)
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_user_id = ? AND read_status = ?", userID, models.ReadStatusUnread).
		Update("read_status", models.ReadStatusRead)
	if res.Error != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkConversationRead 将用户在某会话下的消息通知标记为已读
func (r *NotificationRepository) MarkConversationRead(ctx context.Context, userID, conversationID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_user_id = ? AND conversation_id = ? AND notification_type = ? AND read_status = ?",
			userID, conversationID, models.NotificationTypeMessage, models.ReadStatusUnread).
		Update("read_status", models.ReadStatusRead)
	if res.Error != nil {
		return 0, fmt.Errorf("mark conversation notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, notificationID string) error {
	res := r.db.WithContext(ctx).
		Where("notification_id = ? AND recipient_user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
