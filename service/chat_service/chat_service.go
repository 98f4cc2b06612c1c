// Package chat_service 处理在线连接的实时请求：加入/离开房间、发送消息和输入状态
package chat_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"live-notify-service/logger"
	"live-notify-service/models"
	pushcenter "live-notify-service/service/push_center"
	"live-notify-service/service/room_router"
	"live-notify-service/service/store_service"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const MaxMessageLength = 4000

// Session 在线连接及其令牌中的角色
type Session interface {
	room_router.Session
	Role() string
}

type ConversationStore interface {
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	GetOrCreate(ctx context.Context, conversationID, senderID, receiverID, senderRole string) (*models.Conversation, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	MarkDelivered(ctx context.Context, messageID string, at int64) error
}

type Notifier interface {
	NotifyNewMessage(ctx context.Context, msg *models.Message) (*pushcenter.PublishResult, error)
}

type Service struct {
	convs    ConversationStore
	messages MessageStore
	router   *room_router.Router
	notifier Notifier
	clock    clockwork.Clock
	log      zerolog.Logger

	mu       sync.Mutex
	lastSent map[string]int64 // 会话ID -> 最近分配的 sentAt
}

func NewService(convs ConversationStore, messages MessageStore, router *room_router.Router, notifier Notifier, clk clockwork.Clock) *Service {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Service{
		convs:    convs,
		messages: messages,
		router:   router,
		notifier: notifier,
		clock:    clk,
		log:      logger.Component("chat_service"),
		lastSent: make(map[string]int64),
	}
}

func (s *Service) Connect(sess Session) {
	s.router.Register(sess)
	s.log.Info().Str(logger.FieldSessionID, sess.ID()).Str(logger.FieldUserID, sess.UserID()).Msg("session connected")
}

func (s *Service) Disconnect(sess Session) {
	s.router.Unregister(sess.ID())
	s.log.Info().Str(logger.FieldSessionID, sess.ID()).Str(logger.FieldUserID, sess.UserID()).Msg("session disconnected")
}

// authorize 会话尚无消息时允许任何用户进入，创建后只允许双方参与者
func (s *Service) authorize(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.convs.Get(ctx, conversationID)
	if errors.Is(err, store_service.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, store_service.ErrNotParticipant
	}
	return conv, nil
}

func (s *Service) HandleJoin(ctx context.Context, sess Session, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return fmt.Errorf("%w: conversationID is required", store_service.ErrInvalidInput)
	}
	if _, err := s.authorize(ctx, sess.UserID(), conversationID); err != nil {
		return err
	}
	if s.router.Join(sess.ID(), conversationID) {
		s.log.Debug().Str(logger.FieldSessionID, sess.ID()).Str(logger.FieldConversationID, conversationID).Msg("joined")
	}
	return nil
}

func (s *Service) HandleLeave(sess Session, conversationID string) {
	s.router.Leave(sess.ID(), strings.TrimSpace(conversationID))
}

// HandleSend 持久化消息并广播给房间内所有连接（包括发送者）。
// receiver 为空时取已有会话的另一方参与者
func (s *Service) HandleSend(ctx context.Context, sess Session, req models.SendMessagePayload) (*models.Message, error) {
	convID := strings.TrimSpace(req.ConversationID)
	text := strings.TrimSpace(req.MessageText)
	receiver := strings.TrimSpace(req.ReceiverID)
	sender := sess.UserID()

	switch {
	case convID == "":
		return nil, fmt.Errorf("%w: conversationID is required", store_service.ErrInvalidInput)
	case text == "":
		return nil, fmt.Errorf("%w: messageText is required", store_service.ErrInvalidInput)
	case utf8.RuneCountInString(text) > MaxMessageLength:
		return nil, fmt.Errorf("%w: messageText exceeds %d characters", store_service.ErrInvalidInput, MaxMessageLength)
	case receiver == sender:
		return nil, fmt.Errorf("%w: cannot message yourself", store_service.ErrInvalidInput)
	}

	conv, err := s.authorize(ctx, sender, convID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		peer := conv.Peer(sender)
		if receiver == "" {
			receiver = peer
		} else if peer != "" && receiver != peer {
			return nil, store_service.ErrNotParticipant
		}
	}
	if receiver == "" {
		return nil, fmt.Errorf("%w: receiverID is required for a new conversation", store_service.ErrInvalidInput)
	}
	if conv == nil {
		if _, err := s.convs.GetOrCreate(ctx, convID, sender, receiver, sess.Role()); err != nil {
			return nil, err
		}
	}

	msg := &models.Message{
		MessageID:      uuid.NewString(),
		ConversationID: convID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Text:           text,
		SentAt:         s.nextSentAt(convID),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	// 发送连接即使未加入房间也能收到自己的回显
	s.router.Join(sess.ID(), convID)
	reached := s.router.Broadcast(convID, models.EventNewMessage, msg, "")

	lg := s.log.With().
		Str(logger.FieldConversationID, convID).
		Str(logger.FieldMessageID, msg.MessageID).
		Logger()

	if s.router.UserInRoom(receiver, convID) {
		at := s.clock.Now().UnixMilli()
		if err := s.messages.MarkDelivered(ctx, msg.MessageID, at); err != nil {
			lg.Warn().Err(err).Msg("mark delivered")
		} else {
			msg.DeliveredAt = &at
		}
	}

	if s.notifier != nil {
		if _, err := s.notifier.NotifyNewMessage(ctx, msg); err != nil {
			lg.Warn().Err(err).Msg("message notification failed")
		}
	}

	lg.Info().Int("sessions", reached).Msg("message sent")
	return msg, nil
}

// nextSentAt 每个会话内严格递增，服务端的到达顺序即展示顺序
func (s *Service) nextSentAt(conversationID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixMilli()
	if last := s.lastSent[conversationID]; now <= last {
		now = last + 1
	}
	s.lastSent[conversationID] = now
	return now
}

// HandleTyping 将 typing/stop_typing 转发给房间内其他连接，不在房间内的连接发出的信号会被丢弃
func (s *Service) HandleTyping(sess Session, conversationID string, typing bool) int {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" || !s.router.IsMember(sess.ID(), conversationID) {
		return 0
	}
	event := models.EventUserStopTyping
	if typing {
		event = models.EventUserTyping
	}
	return s.router.Broadcast(conversationID, event, &models.TypingSignal{
		ConversationID: conversationID,
		UserID:         sess.UserID(),
	}, sess.ID())
}
