// Package room_router 会话房间成员管理。Router 为服务端，按会话和用户分组管理连接；
// Membership 为客户端，记录期望的房间并在重连后重新加入
package room_router

import (
	"sort"
	"sync"

	"live-notify-service/logger"

	"github.com/rs/zerolog"
)

// Session 用户的一个在线连接，多个标签页对应多个会话
type Session interface {
	ID() string
	UserID() string
	Emit(event string, payload interface{}) error
}

type Router struct {
	mu       sync.RWMutex
	sessions map[string]Session
	rooms    map[string]map[string]Session  // 会话ID -> 连接ID -> 连接
	joined   map[string]map[string]struct{} // 连接ID -> 会话ID集合
	users    map[string]map[string]Session  // 用户ID -> 连接ID -> 连接
	log      zerolog.Logger
}

func NewRouter() *Router {
	return &Router{
		sessions: make(map[string]Session),
		rooms:    make(map[string]map[string]Session),
		joined:   make(map[string]map[string]struct{}),
		users:    make(map[string]map[string]Session),
		log:      logger.Component("room_router"),
	}
}

func (r *Router) Register(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID()] = s
	if r.joined[s.ID()] == nil {
		r.joined[s.ID()] = make(map[string]struct{})
	}
	if r.users[s.UserID()] == nil {
		r.users[s.UserID()] = make(map[string]Session)
	}
	r.users[s.UserID()][s.ID()] = s
}

// Unregister 注销连接并退出其加入的所有房间
func (r *Router) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for conv := range r.joined[sessionID] {
		r.removeMember(conv, sessionID)
	}
	delete(r.joined, sessionID)
	delete(r.sessions, sessionID)

	if set := r.users[s.UserID()]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.users, s.UserID())
		}
	}
}

// Join 加入房间，返回是否新加入，重复加入不做处理
func (r *Router) Join(sessionID, conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	members := r.rooms[conversationID]
	if members == nil {
		members = make(map[string]Session)
		r.rooms[conversationID] = members
	}
	if _, exists := members[sessionID]; exists {
		return false
	}
	members[sessionID] = s
	r.joined[sessionID][conversationID] = struct{}{}
	return true
}

// Leave 离开房间，返回是否曾是成员，离开未加入的房间是允许的
func (r *Router) Leave(sessionID, conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[conversationID][sessionID]; !ok {
		return false
	}
	r.removeMember(conversationID, sessionID)
	delete(r.joined[sessionID], conversationID)
	return true
}

func (r *Router) removeMember(conversationID, sessionID string) {
	members := r.rooms[conversationID]
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, conversationID)
	}
}

func (r *Router) IsMember(sessionID, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][sessionID]
	return ok
}

// UserInRoom 用户是否有连接在房间中
func (r *Router) UserInRoom(userID, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range r.users[userID] {
		if _, ok := r.rooms[conversationID][id]; ok {
			return true
		}
	}
	return false
}

// Members 返回房间内的连接ID（已排序）
func (r *Router) Members(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms[conversationID]))
	for id := range r.rooms[conversationID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms 返回连接加入的会话（已排序）
func (r *Router) Rooms(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	convs := make([]string, 0, len(r.joined[sessionID]))
	for conv := range r.joined[sessionID] {
		convs = append(convs, conv)
	}
	sort.Strings(convs)
	return convs
}

func (r *Router) UserSessions(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// Broadcast 向房间内除 exceptSessionID（为空表示不排除）外的所有连接发送事件，
// 返回触达的连接数。发送者的其他连接视为普通成员，同样会收到
func (r *Router) Broadcast(conversationID, event string, payload interface{}, exceptSessionID string) int {
	r.mu.RLock()
	targets := make([]Session, 0, len(r.rooms[conversationID]))
	for id, s := range r.rooms[conversationID] {
		if id == exceptSessionID {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	return r.emitAll(targets, event, payload)
}

// SendToUser 向用户的所有连接发送事件，无论是否加入房间
func (r *Router) SendToUser(userID, event string, payload interface{}) int {
	r.mu.RLock()
	targets := make([]Session, 0, len(r.users[userID]))
	for _, s := range r.users[userID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	return r.emitAll(targets, event, payload)
}

func (r *Router) emitAll(targets []Session, event string, payload interface{}) int {
	delivered := 0
	for _, s := range targets {
		if err := s.Emit(event, payload); err != nil {
			r.log.Warn().Err(err).
				Str(logger.FieldSessionID, s.ID()).
				Str(logger.FieldEvent, event).
				Msg("emit failed")
			continue
		}
		delivered++
	}
	return delivered
}
