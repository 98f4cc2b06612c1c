package message_channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"live-notify-service/models"
	"live-notify-service/service/history_client"
)

type ViewState string

const (
	ViewLoading ViewState = "loading"
	ViewReady   ViewState = "ready"
	// 断开时保留历史，禁止发送
	ViewDisconnected ViewState = "disconnected"
)

// View 会话的展示状态，消息始终按 (sentAt, messageID) 排序，与到达顺序无关
type View struct {
	ch             *Channel
	conversationID string

	mu          sync.Mutex
	loaded      bool
	messages    []*models.Message
	ids         map[string]struct{}
	olderCursor string
	hasOlder    bool
	// 历史页确认过的最新位置，实时消息不会移动它，因此其后的缺口仍会被补齐
	synced *models.Message
}

// Open 加入会话房间并加载最新一页历史，重复 Open 返回同一视图。
// 加载失败时视图保持 loading，下次重连时重试
func (c *Channel) Open(ctx context.Context, conversationID string) (*View, error) {
	c.mu.Lock()
	if v, ok := c.views[conversationID]; ok {
		c.mu.Unlock()
		return v, nil
	}
	v := &View{
		ch:             c,
		conversationID: conversationID,
		ids:            make(map[string]struct{}),
	}
	c.views[conversationID] = v
	c.mu.Unlock()

	c.rooms.Join(conversationID)
	if err := c.load(ctx, v); err != nil {
		return v, err
	}
	return v, nil
}

// CloseView 离开房间并丢弃视图
func (c *Channel) CloseView(conversationID string) {
	c.mu.Lock()
	delete(c.views, conversationID)
	c.mu.Unlock()
	c.rooms.Leave(conversationID)
}

func (c *Channel) load(ctx context.Context, v *View) error {
	page, err := c.history.GetMessages(ctx, v.conversationID, history_client.HistoryOptions{Limit: c.config.HistoryPageSize})
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, m := range page.Messages {
		c.apply(m, false)
	}

	v.mu.Lock()
	v.loaded = true
	v.hasOlder = page.HasMore
	v.olderCursor = page.NextCursor
	v.mu.Unlock()
	v.advance(page.Messages)
	return nil
}

// gapFill 拉取比视图最后一次历史页更新的全部消息，跳过已通过实时通道收到的消息。
// 失败时保持水位不变，等待下次重连
func (c *Channel) gapFill(v *View) error {
	ctx, cancel := c.requestContext()
	defer cancel()

	v.mu.Lock()
	loaded := v.loaded
	cursor := ""
	if v.synced != nil {
		cursor = models.CursorOf(v.synced).String()
	}
	v.mu.Unlock()

	if !loaded {
		return c.load(ctx, v)
	}

	for {
		page, err := c.history.GetMessages(ctx, v.conversationID, history_client.HistoryOptions{
			Cursor:    cursor,
			Limit:     c.config.HistoryPageSize,
			Direction: string(models.DirectionForward),
		})
		if err != nil {
			return err
		}
		for _, m := range page.Messages {
			c.apply(m, true)
		}
		v.advance(page.Messages)
		if !page.HasMore || len(page.Messages) == 0 {
			return nil
		}
		cursor = page.NextCursor
	}
}

// advance 将历史水位移动到 msgs 中最新的消息
func (v *View) advance(msgs []*models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range msgs {
		if v.synced == nil || v.synced.Before(m) {
			v.synced = m
		}
	}
}

// LoadOlder 在前面插入上一页历史，返回是否还有更多
func (v *View) LoadOlder(ctx context.Context) (bool, error) {
	v.mu.Lock()
	if !v.hasOlder {
		v.mu.Unlock()
		return false, nil
	}
	cursor := v.olderCursor
	v.mu.Unlock()

	page, err := v.ch.history.GetMessages(ctx, v.conversationID, history_client.HistoryOptions{
		Cursor: cursor,
		Limit:  v.ch.config.HistoryPageSize,
	})
	if err != nil {
		return true, err
	}
	for _, m := range page.Messages {
		v.ch.apply(m, false)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.hasOlder = page.HasMore
	if page.NextCursor != "" {
		v.olderCursor = page.NextCursor
	}
	return v.hasOlder, nil
}

func (v *View) insert(msg *models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.ids[msg.MessageID]; ok {
		return
	}
	v.ids[msg.MessageID] = struct{}{}
	i := sort.Search(len(v.messages), func(i int) bool { return msg.Before(v.messages[i]) })
	v.messages = append(v.messages, nil)
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = msg
}

func (v *View) ConversationID() string { return v.conversationID }

func (v *View) State() ViewState {
	v.mu.Lock()
	loaded := v.loaded
	v.mu.Unlock()

	switch {
	case !loaded:
		return ViewLoading
	case !v.ch.conn.Connected():
		return ViewDisconnected
	}
	return ViewReady
}

// CanSend 视图就绪时才可发送
func (v *View) CanSend() bool {
	return v.State() == ViewReady
}

// Messages 返回展示列表的副本
func (v *View) Messages() []*models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*models.Message(nil), v.messages...)
}

// Texts 返回消息文本，便于展示和测试
func (v *View) Texts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.messages))
	for i, m := range v.messages {
		out[i] = m.Text
	}
	return out
}
