package models

// 实时通道事件：服务端 -> 客户端
const (
	EventNewMessage      = "new_message"
	EventUserTyping      = "user_typing"
	EventUserStopTyping  = "user_stop_typing"
	EventNewNotification = "new_notification"

	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventError        = "error"
)

// 实时通道事件：客户端 -> 服务端
const (
	EventJoinRequest  = "join_request"
	EventLeaveRequest = "leave_request"
	EventSendMessage  = "send_message"
	EventTyping       = "typing"
	EventStopTyping   = "stop_typing"
)

// SendMessagePayload send_message 事件内容
type SendMessagePayload struct {
	ConversationID string `json:"conversationID"`
	ReceiverID     string `json:"receiverID"`
	MessageText    string `json:"messageText"`
}

// TypingPayload typing/stop_typing 事件内容
type TypingPayload struct {
	ConversationID string `json:"conversationID"`
}

// TypingSignal user_typing/user_stop_typing 事件内容
type TypingSignal struct {
	ConversationID string `json:"conversationID"`
	UserID         string `json:"userID"`
}

// ErrorPayload 客户端请求被拒绝时通过 error 事件下发
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorPayload 中的错误码
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotParticipant = "not_participant"
	ErrCodeInternal       = "internal"
)

// AuthRejectedMessage 握手令牌缺失或无效时 connect_error 的消息内容，
// 客户端收到后不再重连
const AuthRejectedMessage = "unauthorized"
