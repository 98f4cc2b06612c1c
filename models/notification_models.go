package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeMessage          NotificationType = "message"
	NotificationTypeReviewReceived   NotificationType = "review_received"
	NotificationTypeReviewReply      NotificationType = "review_reply"
	NotificationTypeContentModerated NotificationType = "content_moderated"
	NotificationTypeContentFlagged   NotificationType = "content_flagged"
	NotificationTypeRequestAccepted  NotificationType = "request_accepted"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationTypeMessage:          {},
	NotificationTypeReviewReceived:   {},
	NotificationTypeReviewReply:      {},
	NotificationTypeContentModerated: {},
	NotificationTypeContentFlagged:   {},
	NotificationTypeRequestAccepted:  {},
}

func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

// NotificationPayload new_notification 推送内容
type NotificationPayload struct {
	NotificationType NotificationType `json:"notificationType"`
	ReviewID         string           `json:"reviewID,omitempty"`
	RequestID        string           `json:"requestID,omitempty"`
	Message          string           `json:"message"`
	Reason           string           `json:"reason,omitempty"`
}

// Notification 每个接收者一行通知记录，NotificationID 唯一，重复发布不会产生新行
type Notification struct {
	ID               uint                                    `gorm:"primaryKey" json:"-"`
	NotificationID   string                                  `gorm:"column:notification_id;size:64;uniqueIndex" json:"notificationID"`
	RecipientUserID  string                                  `gorm:"column:recipient_user_id;size:64;not null;index:idx_notifications_recipient,priority:1" json:"recipientUserID"`
	NotificationType NotificationType                        `gorm:"column:notification_type;size:32;not null" json:"notificationType"`
	ConversationID   string                                  `gorm:"column:conversation_id;size:64;index" json:"conversationID,omitempty"`
	Payload          datatypes.JSONType[NotificationPayload] `gorm:"column:payload" json:"payload"`
	ReadStatus       ReadStatus                              `gorm:"column:read_status;not null;default:0;index:idx_notifications_recipient,priority:2" json:"readStatus"`
	CreatedAt        time.Time                               `json:"createdAt"`
	DeletedAt        gorm.DeletedAt                          `gorm:"index" json:"-"`
}

func (Notification) TableName() string { return "notifications" }

// Push 生成实时推送的 new_notification 内容
func (n *Notification) Push() *NotificationPush {
	p := n.Payload.Data()
	return &NotificationPush{
		NotificationID:   n.NotificationID,
		NotificationType: n.NotificationType,
		ReviewID:         p.ReviewID,
		RequestID:        p.RequestID,
		Message:          p.Message,
		Reason:           p.Reason,
		CreatedAt:        n.CreatedAt.UnixMilli(),
	}
}

// NotificationPush new_notification 下发格式：通知内容加上ID和创建时间
type NotificationPush struct {
	NotificationID   string           `json:"notificationID"`
	NotificationType NotificationType `json:"notificationType"`
	ReviewID         string           `json:"reviewID,omitempty"`
	RequestID        string           `json:"requestID,omitempty"`
	Message          string           `json:"message"`
	Reason           string           `json:"reason,omitempty"`
	CreatedAt        int64            `json:"createdAt"`
}

// NotificationPage 通知历史分页结果
type NotificationPage struct {
	Items    []*Notification `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}
