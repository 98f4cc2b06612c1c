package logger

const (
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	FieldUserID = "user_id"

	FieldService   = "service"
	FieldComponent = "component"

	FieldSessionID      = "session_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldNotificationID = "notification_id"
	FieldEvent          = "event"
	FieldState          = "state"
	FieldAttempt        = "attempt"
)
