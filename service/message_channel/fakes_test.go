package message_channel

import (
	"context"
	"errors"
	"sort"
	"sync"

	"live-notify-service/models"
	"live-notify-service/service/connection_manager"
	"live-notify-service/service/history_client"
)

type emitted struct {
	event   string
	payload interface{}
}

// fakeConn 进程内的连接管理器替身
type fakeConn struct {
	user string

	mu        sync.Mutex
	connected bool
	emits     []emitted
	handlers  map[string][]*connection_manager.Handler
	states    []*connection_manager.StateHandler
	refs      int
}

func newFakeConn(user string) *fakeConn {
	return &fakeConn{user: user, connected: true, handlers: make(map[string][]*connection_manager.Handler)}
}

func (f *fakeConn) UserID() string { return f.user }

func (f *fakeConn) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return &connection_manager.TransportError{Op: "emit", Err: connection_manager.ErrNotConnected}
	}
	f.emits = append(f.emits, emitted{event, payload})
	return nil
}

func (f *fakeConn) On(event string, fn connection_manager.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fn
	f.handlers[event] = append(f.handlers[event], h)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.handlers[event]
		for i, x := range list {
			if x == h {
				f.handlers[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (f *fakeConn) OnStateChange(fn connection_manager.StateHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fn
	f.states = append(f.states, h)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, x := range f.states {
			if x == h {
				f.states = append(f.states[:i:i], f.states[i+1:]...)
				return
			}
		}
	}
}

func (f *fakeConn) Acquire() func() {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.refs--
			f.mu.Unlock()
		})
	}
}

func (f *fakeConn) deliver(event string, args ...interface{}) {
	f.mu.Lock()
	hs := append([]*connection_manager.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range hs {
		(*h)(args...)
	}
}

func (f *fakeConn) setConnected(up bool) {
	f.mu.Lock()
	from, to := connection_manager.StateConnected, connection_manager.StateDisconnected
	if up {
		from, to = to, from
	}
	f.connected = up
	hs := append([]*connection_manager.StateHandler(nil), f.states...)
	f.mu.Unlock()
	for _, h := range hs {
		(*h)(from, to)
	}
}

func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.emits))
	for i, e := range f.emits {
		out[i] = e.event
	}
	return out
}

func (f *fakeConn) last(event string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.emits) - 1; i >= 0; i-- {
		if f.emits[i].event == event {
			return f.emits[i].payload
		}
	}
	return nil
}

func (f *fakeConn) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.states)
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

// fakeHistory 从内存中已排序的消息列表返回分页
type fakeHistory struct {
	mu       sync.Mutex
	messages map[string][]*models.Message
	fail     error
	calls    int
	reads    []string
	unread   int64
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{messages: make(map[string][]*models.Message)}
}

func (h *fakeHistory) add(msgs ...*models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range msgs {
		list := append(h.messages[m.ConversationID], m)
		sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
		h.messages[m.ConversationID] = list
	}
}

func (h *fakeHistory) GetMessages(_ context.Context, conversationID string, opts history_client.HistoryOptions) (*models.MessagePage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.fail != nil {
		return nil, h.fail
	}
	cur, err := models.ParseCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	all := h.messages[conversationID]
	var pick []*models.Message
	if opts.Direction == string(models.DirectionForward) {
		for _, m := range all {
			if cur == nil || m.SentAt > cur.SentAt || (m.SentAt == cur.SentAt && m.MessageID > cur.MessageID) {
				pick = append(pick, m)
			}
		}
		page := &models.MessagePage{Messages: pick}
		if len(pick) > limit {
			page.Messages, page.HasMore = pick[:limit], true
		}
		if n := len(page.Messages); n > 0 {
			page.NextCursor = models.Cursor{SentAt: page.Messages[n-1].SentAt, MessageID: page.Messages[n-1].MessageID}.String()
		}
		return page, nil
	}
	for _, m := range all {
		if cur == nil || m.SentAt < cur.SentAt || (m.SentAt == cur.SentAt && m.MessageID < cur.MessageID) {
			pick = append(pick, m)
		}
	}
	page := &models.MessagePage{Messages: pick}
	if len(pick) > limit {
		page.Messages, page.HasMore = pick[len(pick)-limit:], true
	}
	if len(page.Messages) > 0 {
		page.NextCursor = models.Cursor{SentAt: page.Messages[0].SentAt, MessageID: page.Messages[0].MessageID}.String()
	}
	return page, nil
}

func (h *fakeHistory) MarkConversationRead(_ context.Context, conversationID, messageID string) (*models.ReadResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return nil, h.fail
	}
	h.reads = append(h.reads, conversationID+"/"+messageID)
	return &models.ReadResult{ConversationID: conversationID, LastReadMessageID: messageID, UnreadCount: h.unread}, nil
}

func (h *fakeHistory) setFail(err error) {
	h.mu.Lock()
	h.fail = err
	h.mu.Unlock()
}

var errOffline = errors.New("offline")

func msg(id, conv, from, to, text string, sentAt int64) *models.Message {
	return &models.Message{MessageID: id, ConversationID: conv, SenderID: from, ReceiverID: to, Text: text, SentAt: sentAt}
}
