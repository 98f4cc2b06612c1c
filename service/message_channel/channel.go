// Package message_channel 基于共享实时连接的客户端聊天接口：发送消息（自动确定接收方）、
// 入站消息去重、输入状态、已读回执和会话视图
package message_channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"live-notify-service/logger"
	"live-notify-service/models"
	"live-notify-service/service/connection_manager"
	"live-notify-service/service/history_client"
	"live-notify-service/service/room_router"
	"live-notify-service/service/typing_tracker"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyMessage      = errors.New("message text is empty")
	ErrEmptyConversation = errors.New("conversation id is empty")
)

// UnresolvedRecipientError 未指定接收方且无法从会话推断时由 Send 返回，消息不会发送
type UnresolvedRecipientError struct {
	ConversationID string
}

func (e *UnresolvedRecipientError) Error() string {
	return fmt.Sprintf("cannot resolve recipient for conversation %s: reload the conversation or pass the peer explicitly", e.ConversationID)
}

// Conn 共享的实时连接
type Conn interface {
	room_router.Conn
	On(event string, fn connection_manager.Handler) (off func())
	UserID() string
	Acquire() (release func())
}

// History REST 兜底接口，用于首次加载、补齐缺口和已读回执
type History interface {
	GetMessages(ctx context.Context, conversationID string, opts history_client.HistoryOptions) (*models.MessagePage, error)
	MarkConversationRead(ctx context.Context, conversationID, messageID string) (*models.ReadResult, error)
}

type Config struct {
	TypingTTL       time.Duration
	HistoryPageSize int
	// 通道自行发起的 REST 请求超时时间
	RequestTimeout time.Duration
	Clock          clockwork.Clock
}

type listener struct {
	fn     func(*models.Message)
	active atomic.Bool
}

type Channel struct {
	conn    Conn
	history History
	rooms   *room_router.Membership
	typing  *typing_tracker.Tracker
	config  Config
	log     zerolog.Logger

	mu        sync.Mutex
	seen      map[string]struct{}
	latest    map[string]*models.Message
	unread    map[string]int64
	typingOut map[string]bool
	views     map[string]*View
	listeners []*listener
	closed    bool

	offs    []func()
	release func()
	wg      sync.WaitGroup
}

func NewChannel(conn Conn, history History, config Config) *Channel {
	if config.HistoryPageSize <= 0 {
		config.HistoryPageSize = 50
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}
	c := &Channel{
		conn:      conn,
		history:   history,
		rooms:     room_router.NewMembership(conn),
		typing:    typing_tracker.New(config.Clock, config.TypingTTL),
		config:    config,
		log:       logger.Component("message_channel"),
		seen:      make(map[string]struct{}),
		latest:    make(map[string]*models.Message),
		unread:    make(map[string]int64),
		typingOut: make(map[string]bool),
		views:     make(map[string]*View),
		release:   conn.Acquire(),
	}
	c.offs = append(c.offs,
		conn.On(models.EventNewMessage, c.onNewMessage),
		conn.On(models.EventUserTyping, func(args ...interface{}) { c.onTyping(args, true) }),
		conn.On(models.EventUserStopTyping, func(args ...interface{}) { c.onTyping(args, false) }),
		conn.OnStateChange(c.onStateChange),
	)
	return c
}

// Close 注销所有处理器并释放共享连接
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	offs := c.offs
	c.offs = nil
	c.mu.Unlock()

	for _, off := range offs {
		off()
	}
	c.wg.Wait()
	c.rooms.Close()
	c.typing.Clear()
	c.release()
}

// Send 发送 send_message。接收方优先使用 receiverID，否则取会话中最新消息的另一方
func (c *Channel) Send(conversationID, receiverID, text string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ErrEmptyConversation
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	receiver, err := c.resolveRecipient(conversationID, strings.TrimSpace(receiverID))
	if err != nil {
		return err
	}

	c.rooms.Join(conversationID)
	if err := c.conn.Emit(models.EventSendMessage, &models.SendMessagePayload{
		ConversationID: conversationID,
		ReceiverID:     receiver,
		MessageText:    text,
	}); err != nil {
		return err
	}

	c.mu.Lock()
	wasTyping := c.typingOut[conversationID]
	delete(c.typingOut, conversationID)
	c.mu.Unlock()
	if wasTyping {
		_ = c.conn.Emit(models.EventStopTyping, &models.TypingPayload{ConversationID: conversationID})
	}
	return nil
}

func (c *Channel) resolveRecipient(conversationID, explicit string) (string, error) {
	me := c.conn.UserID()

	c.mu.Lock()
	last := c.latest[conversationID]
	c.mu.Unlock()

	inferred := ""
	if last != nil {
		switch me {
		case last.SenderID:
			inferred = last.ReceiverID
		case last.ReceiverID:
			inferred = last.SenderID
		}
	}

	switch {
	case explicit != "" && inferred != "" && explicit != inferred:
		c.log.Warn().
			Str(logger.FieldConversationID, conversationID).
			Str("explicit", explicit).
			Str("inferred", inferred).
			Msg("explicit receiver differs from conversation history, using explicit")
		return explicit, nil
	case explicit != "":
		return explicit, nil
	case inferred != "":
		return inferred, nil
	}
	return "", &UnresolvedRecipientError{ConversationID: conversationID}
}

// OnMessage 注册入站消息回调（已去重），可在 fn 内取消订阅
func (c *Channel) OnMessage(fn func(*models.Message)) (unsubscribe func()) {
	l := &listener{fn: fn}
	l.active.Store(true)

	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()

	return func() {
		if !l.active.Swap(false) {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, x := range c.listeners {
			if x == l {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				break
			}
		}
	}
}

// MarkRead 将已读回执移动到最新消息，并用服务端计数覆盖本地未读数，重复调用不产生变化
func (c *Channel) MarkRead(ctx context.Context, conversationID string) (*models.ReadResult, error) {
	c.mu.Lock()
	messageID := ""
	if last := c.latest[conversationID]; last != nil {
		messageID = last.MessageID
	}
	c.mu.Unlock()

	res, err := c.history.MarkConversationRead(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.unread[conversationID] = res.UnreadCount
	c.mu.Unlock()
	return res, nil
}

// Unread 会话的本地未读数
func (c *Channel) Unread(conversationID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread[conversationID]
}

func (c *Channel) TypingStart(conversationID string) error {
	if conversationID == "" {
		return ErrEmptyConversation
	}
	if err := c.conn.Emit(models.EventTyping, &models.TypingPayload{ConversationID: conversationID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.typingOut[conversationID] = true
	c.mu.Unlock()
	return nil
}

func (c *Channel) TypingStop(conversationID string) error {
	if conversationID == "" {
		return ErrEmptyConversation
	}
	c.mu.Lock()
	delete(c.typingOut, conversationID)
	c.mu.Unlock()
	return c.conn.Emit(models.EventStopTyping, &models.TypingPayload{ConversationID: conversationID})
}

// Typing 返回会话中正在输入的对方用户
func (c *Channel) Typing(conversationID string) []string {
	return c.typing.Typing(conversationID)
}

func (c *Channel) OnTypingChange(fn func(conversationID string, typing []string)) (off func()) {
	return c.typing.OnChange(fn)
}

func (c *Channel) Join(conversationID string)  { c.rooms.Join(conversationID) }
func (c *Channel) Leave(conversationID string) { c.rooms.Leave(conversationID) }

func (c *Channel) onNewMessage(args ...interface{}) {
	if len(args) == 0 {
		return
	}
	var msg models.Message
	if err := connection_manager.DecodePayload(args[0], &msg); err != nil || msg.MessageID == "" {
		c.log.Warn().Err(err).Msg("dropping malformed new_message")
		return
	}
	c.typing.Stop(msg.ConversationID, msg.SenderID)
	c.apply(&msg, true)
}

func (c *Channel) onTyping(args []interface{}, typing bool) {
	if len(args) == 0 {
		return
	}
	var sig models.TypingSignal
	if err := connection_manager.DecodePayload(args[0], &sig); err != nil || sig.ConversationID == "" {
		return
	}
	if sig.UserID == c.conn.UserID() {
		return
	}
	if typing {
		c.typing.Start(sig.ConversationID, sig.UserID)
	} else {
		c.typing.Stop(sig.ConversationID, sig.UserID)
	}
}

func (c *Channel) onStateChange(_, to connection_manager.State) {
	switch to {
	case connection_manager.StateConnected:
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		views := make([]*View, 0, len(c.views))
		for _, v := range c.views {
			views = append(views, v)
		}
		c.wg.Add(1)
		c.mu.Unlock()

		go func() {
			defer c.wg.Done()
			for _, v := range views {
				if err := c.gapFill(v); err != nil {
					c.log.Warn().Err(err).Str(logger.FieldConversationID, v.conversationID).Msg("gap-fill failed")
				}
			}
		}()
	case connection_manager.StateDisconnected, connection_manager.StateFailed:
		c.typing.Clear()
	}
}

// apply 记录消息并放入已打开的视图，已见过的消息返回 false。
// notify 为 true 时才对新消息调用监听器
func (c *Channel) apply(msg *models.Message, notify bool) bool {
	c.mu.Lock()
	_, dup := c.seen[msg.MessageID]
	var ls []*listener
	if !dup {
		c.seen[msg.MessageID] = struct{}{}
		if last := c.latest[msg.ConversationID]; last == nil || last.Before(msg) {
			c.latest[msg.ConversationID] = msg
		}
		if me := c.conn.UserID(); notify && me != "" && msg.ReceiverID == me {
			c.unread[msg.ConversationID]++
		}
		if notify {
			ls = append(ls, c.listeners...)
		}
	}
	view := c.views[msg.ConversationID]
	c.mu.Unlock()

	if view != nil {
		view.insert(msg)
	}
	for _, l := range ls {
		if l.active.Load() {
			l.fn(msg)
		}
	}
	return !dup
}

func (c *Channel) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.config.RequestTimeout)
}
