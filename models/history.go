package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidInput = errors.New("invalid input")

// Direction 历史分页相对游标的方向
type Direction string

const (
	DirectionBackward Direction = "backward"
	DirectionForward  Direction = "forward"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionBackward:
		return DirectionBackward, nil
	case DirectionForward:
		return DirectionForward, nil
	}
	return "", fmt.Errorf("%w: direction must be 'backward' or 'forward'", ErrInvalidInput)
}

// Cursor 会话中不含的 (sentAt, messageID) 位置
type Cursor struct {
	SentAt    int64
	MessageID string
}

func (c Cursor) String() string {
	return strconv.FormatInt(c.SentAt, 10) + "_" + c.MessageID
}

// CursorOf 返回 m 所在的位置
func CursorOf(m *Message) Cursor {
	return Cursor{SentAt: m.SentAt, MessageID: m.MessageID}
}

// ParseCursor 解析游标，"" 表示会话的开放端
func ParseCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	ts, id, ok := strings.Cut(s, "_")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	sentAt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	return &Cursor{SentAt: sentAt, MessageID: id}, nil
}

// ReadResult 会话标记已读的结果
type ReadResult struct {
	ConversationID    string `json:"conversationID"`
	LastReadMessageID string `json:"lastReadMessageID"`
	Changed           bool   `json:"changed"`
	UnreadCount       int64  `json:"unreadCount"`
}
