// Package notification_fanout 将 new_notification 事件按类型分发给处理器，并维护通知未读数
package notification_fanout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"live-notify-service/logger"
	"live-notify-service/models"
	"live-notify-service/service/connection_manager"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Conn 共享的实时连接
type Conn interface {
	On(event string, fn connection_manager.Handler) (off func())
	OnStateChange(fn connection_manager.StateHandler) (off func())
	Connected() bool
	Acquire() (release func())
}

// API 通知 REST 接口
type API interface {
	ListNotifications(ctx context.Context, page, pageSize int, unreadOnly bool) (*models.NotificationPage, error)
	NotificationUnreadCount(ctx context.Context) (int64, error)
	MarkNotificationRead(ctx context.Context, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context) (int64, error)
	DeleteNotification(ctx context.Context, notificationID string) error
}

type Handler func(*models.NotificationPush)

type BadgeFunc func(unread int64)

// Handlers Subscribe 使用的分类型回调，nil 字段跳过
type Handlers struct {
	OnMessage          Handler
	OnReviewReceived   Handler
	OnReviewReply      Handler
	OnContentModerated Handler
	OnContentFlagged   Handler
	OnRequestAccepted  Handler
	// 接收所有通知，包括客户端不认识的类型
	OnAny Handler
}

type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Clock          clockwork.Clock
}

type listener struct {
	typ    models.NotificationType
	fn     Handler
	active atomic.Bool
}

type Fanout struct {
	conn   Conn
	api    API
	config Config
	log    zerolog.Logger

	mu        sync.Mutex
	seen      map[string]struct{}
	unread    int64
	listeners []*listener
	badge     []*BadgeFunc
	poller    clockwork.Ticker
	stopPoll  chan struct{}
	closed    bool

	offs    []func()
	release func()
	wg      sync.WaitGroup
}

func New(conn Conn, api API, config Config) *Fanout {
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	f := &Fanout{
		conn:    conn,
		api:     api,
		config:  config,
		log:     logger.Component("notification_fanout"),
		seen:    make(map[string]struct{}),
		release: conn.Acquire(),
	}
	f.offs = append(f.offs,
		conn.On(models.EventNewNotification, f.onNotification),
		conn.OnStateChange(f.onStateChange),
	)
	if !conn.Connected() {
		f.mu.Lock()
		f.startPollingLocked()
		f.mu.Unlock()
	}
	return f
}

// Subscribe 注册所有非 nil 处理器，返回一次性全部移除的函数
func (f *Fanout) Subscribe(h Handlers) (unsubscribeAll func()) {
	var offs []func()
	add := func(typ models.NotificationType, fn Handler) {
		if fn != nil {
			offs = append(offs, f.On(typ, fn))
		}
	}
	add(models.NotificationTypeMessage, h.OnMessage)
	add(models.NotificationTypeReviewReceived, h.OnReviewReceived)
	add(models.NotificationTypeReviewReply, h.OnReviewReply)
	add(models.NotificationTypeContentModerated, h.OnContentModerated)
	add(models.NotificationTypeContentFlagged, h.OnContentFlagged)
	add(models.NotificationTypeRequestAccepted, h.OnRequestAccepted)
	add("", h.OnAny)

	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// On 注册指定类型的处理器，typ 为空时接收所有类型，可在 fn 内调用 off
func (f *Fanout) On(typ models.NotificationType, fn Handler) (off func()) {
	l := &listener{typ: typ, fn: fn}
	l.active.Store(true)

	f.mu.Lock()
	f.listeners = append(f.listeners, l)
	f.mu.Unlock()

	return func() {
		if !l.active.Swap(false) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, x := range f.listeners {
			if x == l {
				f.listeners = append(f.listeners[:i:i], f.listeners[i+1:]...)
				return
			}
		}
	}
}

// OnUnreadChange 未读数变化时回调
func (f *Fanout) OnUnreadChange(fn BadgeFunc) (off func()) {
	h := &fn
	f.mu.Lock()
	f.badge = append(f.badge, h)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, x := range f.badge {
			if x == h {
				f.badge = append(f.badge[:i:i], f.badge[i+1:]...)
				return
			}
		}
	}
}

func (f *Fanout) UnreadCount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// Refresh 用服务端未读数覆盖本地未读数
func (f *Fanout) Refresh(ctx context.Context) (int64, error) {
	n, err := f.api.NotificationUnreadCount(ctx)
	if err != nil {
		return 0, err
	}
	f.setUnread(n)
	return n, nil
}

func (f *Fanout) MarkAsRead(ctx context.Context, notificationID string) error {
	if err := f.api.MarkNotificationRead(ctx, notificationID); err != nil {
		return err
	}
	f.reconcile(ctx)
	return nil
}

func (f *Fanout) MarkAllAsRead(ctx context.Context) error {
	if _, err := f.api.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}
	f.setUnread(0)
	return nil
}

func (f *Fanout) Delete(ctx context.Context, notificationID string) error {
	if err := f.api.DeleteNotification(ctx, notificationID); err != nil {
		return err
	}
	f.reconcile(ctx)
	return nil
}

// List 获取一页通知历史，列出的通知视为已见，迟到的同一条实时推送不会增加未读数
func (f *Fanout) List(ctx context.Context, page, pageSize int, unreadOnly bool) (*models.NotificationPage, error) {
	res, err := f.api.ListNotifications(ctx, page, pageSize, unreadOnly)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	for _, n := range res.Items {
		f.seen[n.NotificationID] = struct{}{}
	}
	f.mu.Unlock()
	return res, nil
}

// Polling 是否正在进行 REST 轮询
func (f *Fanout) Polling() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poller != nil
}

func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	offs := f.offs
	f.offs = nil
	f.stopPollingLocked()
	f.mu.Unlock()

	for _, off := range offs {
		off()
	}
	f.wg.Wait()
	f.release()
}

func (f *Fanout) reconcile(ctx context.Context) {
	if _, err := f.Refresh(ctx); err != nil {
		f.log.Warn().Err(err).Msg("unread refresh failed")
	}
}

func (f *Fanout) onNotification(args ...interface{}) {
	if len(args) == 0 {
		return
	}
	var n models.NotificationPush
	if err := connection_manager.DecodePayload(args[0], &n); err != nil || n.NotificationID == "" {
		f.log.Warn().Err(err).Msg("dropping malformed new_notification")
		return
	}

	f.mu.Lock()
	if _, dup := f.seen[n.NotificationID]; dup {
		f.mu.Unlock()
		return
	}
	f.seen[n.NotificationID] = struct{}{}
	f.unread++
	unread := f.unread
	badge := append([]*BadgeFunc(nil), f.badge...)
	ls := append([]*listener(nil), f.listeners...)
	f.mu.Unlock()

	for _, fn := range badge {
		(*fn)(unread)
	}
	for _, l := range ls {
		if (l.typ == "" || l.typ == n.NotificationType) && l.active.Load() {
			l.fn(&n)
		}
	}
}

func (f *Fanout) onStateChange(_, to connection_manager.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	if to != connection_manager.StateConnected {
		f.startPollingLocked()
		return
	}
	f.stopPollingLocked()
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), f.config.RequestTimeout)
		defer cancel()
		f.reconcile(ctx)
	}()
}

func (f *Fanout) startPollingLocked() {
	if f.poller != nil || f.closed {
		return
	}
	ticker := f.config.Clock.NewTicker(f.config.PollInterval)
	stop := make(chan struct{})
	f.poller, f.stopPoll = ticker, stop
	f.log.Debug().Dur("interval", f.config.PollInterval).Msg("live channel down, polling")

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				ctx, cancel := context.WithTimeout(context.Background(), f.config.RequestTimeout)
				f.reconcile(ctx)
				cancel()
			}
		}
	}()
}

func (f *Fanout) stopPollingLocked() {
	if f.poller == nil {
		return
	}
	f.poller.Stop()
	close(f.stopPoll)
	f.poller, f.stopPoll = nil, nil
}

func (f *Fanout) setUnread(n int64) {
	f.mu.Lock()
	changed := f.unread != n
	f.unread = n
	badge := append([]*BadgeFunc(nil), f.badge...)
	f.mu.Unlock()

	if changed {
		for _, fn := range badge {
			(*fn)(n)
		}
	}
}
