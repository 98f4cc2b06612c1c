package room_router

import (
	"sort"
	"sync"

	"live-notify-service/logger"
	"live-notify-service/models"
	"live-notify-service/service/connection_manager"

	"github.com/rs/zerolog"
)

// Conn Membership 依赖的连接管理器接口
type Conn interface {
	Emit(event string, payload interface{}) error
	Connected() bool
	OnStateChange(fn connection_manager.StateHandler) (off func())
}

type pendingOp struct {
	event          string
	conversationID string
}

// Membership 客户端期望加入的房间。离线时的请求先缓存，每次（重新）连接后
// 重新加入全部房间，服务端的新会话不保留房间
type Membership struct {
	conn Conn
	log  zerolog.Logger

	mu      sync.Mutex
	rooms   map[string]struct{}
	pending []pendingOp
	off     func()
}

func NewMembership(conn Conn) *Membership {
	m := &Membership{
		conn:  conn,
		log:   logger.Component("membership"),
		rooms: make(map[string]struct{}),
	}
	m.off = conn.OnStateChange(func(_, to connection_manager.State) {
		if to == connection_manager.StateConnected {
			m.replay()
		}
	})
	return m
}

// Join 加入房间，已加入时不做处理
func (m *Membership) Join(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[conversationID]; ok {
		return
	}
	m.rooms[conversationID] = struct{}{}
	m.sendLocked(pendingOp{event: models.EventJoinRequest, conversationID: conversationID})
}

// Leave 离开房间，未加入时不做处理
func (m *Membership) Leave(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[conversationID]; !ok {
		return
	}
	delete(m.rooms, conversationID)
	m.sendLocked(pendingOp{event: models.EventLeaveRequest, conversationID: conversationID})
}

func (m *Membership) sendLocked(op pendingOp) {
	if !m.conn.Connected() {
		m.pending = append(m.pending, op)
		return
	}
	if err := m.conn.Emit(op.event, op.conversationID); err != nil {
		m.log.Debug().Err(err).Str(logger.FieldConversationID, op.conversationID).Msg("buffered until reconnect")
		m.pending = append(m.pending, op)
	}
}

func (m *Membership) replay() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := m.pending
	m.pending = nil
	joined := make(map[string]struct{}, len(m.rooms))

	for _, op := range ops {
		if err := m.conn.Emit(op.event, op.conversationID); err != nil {
			m.pending = append(m.pending, op)
			continue
		}
		if op.event == models.EventJoinRequest {
			joined[op.conversationID] = struct{}{}
		} else {
			delete(joined, op.conversationID)
		}
	}

	for _, conv := range m.sortedLocked() {
		if _, ok := joined[conv]; ok {
			continue
		}
		if err := m.conn.Emit(models.EventJoinRequest, conv); err != nil {
			m.log.Warn().Err(err).Str(logger.FieldConversationID, conv).Msg("rejoin failed")
			m.pending = append(m.pending, pendingOp{event: models.EventJoinRequest, conversationID: conv})
		}
	}
	m.log.Debug().Int("rooms", len(m.rooms)).Msg("rooms rejoined")
}

func (m *Membership) IsJoined(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[conversationID]
	return ok
}

// Rooms 返回期望加入的房间（已排序）
func (m *Membership) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

func (m *Membership) sortedLocked() []string {
	out := make([]string, 0, len(m.rooms))
	for conv := range m.rooms {
		out = append(out, conv)
	}
	sort.Strings(out)
	return out
}

// Close 与连接解绑，保留期望的房间
func (m *Membership) Close() {
	if m.off != nil {
		m.off()
	}
}
