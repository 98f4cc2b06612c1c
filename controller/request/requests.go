package request

// MarkConversationReadReq 标记已读请求，messageId 为空表示最新消息
type MarkConversationReadReq struct {
	MessageID string `json:"messageID"`
}

// HistoryQuery 会话历史分页参数
type HistoryQuery struct {
	Cursor    string `form:"cursor"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Direction string `form:"direction" binding:"omitempty,oneof=backward forward"`
}

// NotificationListQuery 通知列表分页参数
type NotificationListQuery struct {
	Page       int  `form:"page" binding:"omitempty,min=1"`
	PageSize   int  `form:"pageSize" binding:"omitempty,min=1,max=100"`
	UnreadOnly bool `form:"unreadOnly"`
}
