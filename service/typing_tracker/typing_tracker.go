// Package typing_tracker 按 (会话, 用户) 维护临时的"正在输入"状态，
// 条目在短暂 TTL 后过期，每次信号刷新，不做持久化
package typing_tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultTTL = time.Second

type key struct {
	conversationID string
	userID         string
}

type entry struct {
	timer clockwork.Timer
	token uint64
}

type listener struct {
	fn     func(conversationID string, typing []string)
	active bool
}

type Tracker struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu        sync.Mutex
	entries   map[key]*entry
	seq       uint64
	listeners []*listener
}

func New(clk clockwork.Clock, ttl time.Duration) *Tracker {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[key]*entry),
	}
}

// Start 标记用户正在输入，已在输入时延长 TTL
func (t *Tracker) Start(conversationID, userID string) {
	k := key{conversationID, userID}

	t.mu.Lock()
	t.seq++
	token := t.seq
	e, existed := t.entries[k]
	if existed {
		e.timer.Stop()
	} else {
		e = &entry{}
		t.entries[k] = e
	}
	e.token = token
	e.timer = t.clock.AfterFunc(t.ttl, func() { t.expire(k, token) })
	t.mu.Unlock()

	if !existed {
		t.notify(conversationID)
	}
}

// Stop 立即清除用户的输入状态
func (t *Tracker) Stop(conversationID, userID string) {
	k := key{conversationID, userID}

	t.mu.Lock()
	e, ok := t.entries[k]
	if ok {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.mu.Unlock()

	if ok {
		t.notify(conversationID)
	}
}

func (t *Tracker) expire(k key, token uint64) {
	t.mu.Lock()
	e, ok := t.entries[k]
	if !ok || e.token != token {
		t.mu.Unlock()
		return
	}
	delete(t.entries, k)
	t.mu.Unlock()

	t.notify(k.conversationID)
}

// Clear 清除所有条目，断开连接时调用
func (t *Tracker) Clear() {
	t.mu.Lock()
	convs := make(map[string]struct{})
	for k, e := range t.entries {
		e.timer.Stop()
		convs[k.conversationID] = struct{}{}
	}
	t.entries = make(map[key]*entry)
	t.mu.Unlock()

	for conv := range convs {
		t.notify(conv)
	}
}

func (t *Tracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key{conversationID, userID}]
	return ok
}

// Typing 返回会话中正在输入的用户（已排序）
func (t *Tracker) Typing(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typingLocked(conversationID)
}

func (t *Tracker) typingLocked(conversationID string) []string {
	users := []string{}
	for k := range t.entries {
		if k.conversationID == conversationID {
			users = append(users, k.userID)
		}
	}
	sort.Strings(users)
	return users
}

// OnChange 会话的输入用户集合变化时回调
func (t *Tracker) OnChange(fn func(conversationID string, typing []string)) (off func()) {
	l := &listener{fn: fn, active: true}
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		l.active = false
		for i, other := range t.listeners {
			if other == l {
				t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
				break
			}
		}
	}
}

func (t *Tracker) notify(conversationID string) {
	t.mu.Lock()
	users := t.typingLocked(conversationID)
	ls := append([]*listener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range ls {
		t.mu.Lock()
		active := l.active
		t.mu.Unlock()
		if active {
			l.fn(conversationID, users)
		}
	}
}
