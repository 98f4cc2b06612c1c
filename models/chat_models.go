package models

import "time"

// Conversation 一个预约或请求对应的聊天会话，会话ID即预约/请求ID
type Conversation struct {
	ConversationID string    `gorm:"column:conversation_id;primaryKey;size:64" json:"conversationID"`
	CustomerID     string    `gorm:"column:customer_id;size:64;index" json:"customerID"`
	ProviderID     string    `gorm:"column:provider_id;size:64;index" json:"providerID"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (Conversation) TableName() string { return "conversations" }

// HasParticipant 判断 userID 是否为客户或服务方
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.CustomerID == userID || c.ProviderID == userID)
}

// Peer 返回另一方参与者；userID 不是参与者或对方未知时返回 ""
func (c *Conversation) Peer(userID string) string {
	switch userID {
	case c.CustomerID:
		return c.ProviderID
	case c.ProviderID:
		return c.CustomerID
	}
	return ""
}

// Message 聊天消息。SentAt 为服务端分配的毫秒时间戳，
// (SentAt, MessageID) 决定唯一的展示顺序
type Message struct {
	MessageID      string `gorm:"column:message_id;primaryKey;size:64" json:"messageID"`
	ConversationID string `gorm:"column:conversation_id;size:64;not null;index:idx_messages_conv_order,priority:1" json:"conversationID"`
	SenderID       string `gorm:"column:sender_id;size:64;not null" json:"senderID"`
	ReceiverID     string `gorm:"column:receiver_id;size:64;not null;index" json:"receiverID"`
	Text           string `gorm:"column:message_text;type:text" json:"messageText"`
	SentAt         int64  `gorm:"column:sent_at;not null;index:idx_messages_conv_order,priority:2" json:"sentAt"`
	DeliveredAt    *int64 `gorm:"column:delivered_at" json:"deliveredAt,omitempty"`
}

func (Message) TableName() string { return "messages" }

// Before 判断 m 是否排在 other 之前
func (m *Message) Before(other *Message) bool {
	if m.SentAt != other.SentAt {
		return m.SentAt < other.SentAt
	}
	return m.MessageID < other.MessageID
}

// ReadReceipt 用户在会话中最后已读的消息
type ReadReceipt struct {
	ConversationID    string `json:"conversationID"`
	UserID            string `json:"userID"`
	LastReadMessageID string `json:"lastReadMessageID"`
	LastReadSentAt    int64  `json:"lastReadSentAt"`
	UpdatedAt         int64  `json:"updatedAt"`
}

// MessagePage 会话历史分页结果
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"nextCursor"`
	HasMore    bool       `json:"hasMore"`
}
