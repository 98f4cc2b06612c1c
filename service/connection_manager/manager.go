// Package connection_manager 客户端唯一的实时连接：握手、有限退避重连、
// 连接状态，以及在连接替换后依然有效的事件处理器注册
package connection_manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"live-notify-service/logger"
	"live-notify-service/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Handler 事件处理器，接收事件的原始参数
type Handler func(args ...interface{})

// StateHandler 连接状态变化回调
type StateHandler func(from, to State)

type Config struct {
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	ReconnectJitter   float64
	ConnectTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		ReconnectMaxDelay: 5 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// Session 当前逻辑会话
type Session struct {
	ID     string
	UserID string
	Token  string
	State  State
}

type handlerEntry struct {
	id     uint64
	fn     Handler
	active atomic.Bool
}

type stateEntry struct {
	id     uint64
	fn     StateHandler
	active atomic.Bool
}

type Manager struct {
	cfg    Config
	dialer Dialer
	clock  clockwork.Clock
	log    zerolog.Logger
	disp   *dispatcher

	mu            sync.Mutex
	state         State
	auth          AuthInfo
	transport     Transport
	generation    uint64
	handlers      map[string][]*handlerEntry
	stateHandlers []*stateEntry
	nextID        uint64
	refs          int
	lastErr       error
	policy        backoff.BackOff
	attempt       int
	retryTimer    clockwork.Timer
	closed        bool
}

func NewManager(dialer Dialer, cfg Config, clk clockwork.Clock) *Manager {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	def := DefaultConfig()
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = def.ReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		clock:    clk,
		log:      logger.Component("connection_manager"),
		disp:     newDispatcher(),
		state:    StateDisconnected,
		handlers: make(map[string][]*handlerEntry),
	}
}

func (m *Manager) newPolicy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(m.cfg.ReconnectDelay),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(m.cfg.ReconnectMaxDelay),
		backoff.WithRandomizationFactor(m.cfg.ReconnectJitter),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithMaxRetries(eb, uint64(m.cfg.ReconnectAttempts))
}

// Connect 使用给定凭证建立连接。令牌缺失或被拒绝返回 *AuthError，不重试；
// 网络错误返回 *TransportError 并开始重连
func (m *Manager) Connect(ctx context.Context, auth AuthInfo) (*Session, error) {
	if auth.Token == "" {
		err := &AuthError{Reason: "missing token"}
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, &TransportError{Op: "connect", Err: errors.New("manager closed")}
	}
	if m.state == StateConnected && m.auth.Token == auth.Token {
		s := m.sessionLocked()
		m.mu.Unlock()
		return s, nil
	}
	m.stopRetryLocked()
	m.dropTransportLocked()
	m.auth = auth
	m.policy = m.newPolicy()
	m.attempt = 0
	m.setStateLocked(StateConnecting)
	gen := m.generation
	m.mu.Unlock()

	err := m.dial(ctx, gen)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionLocked(), nil
}

// dial 为第 gen 代连接执行一次拨号
func (m *Manager) dial(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	auth := m.auth
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	t, err := m.dialer.Dial(dialCtx, auth, Callbacks{
		OnEvent: func(event string, args []interface{}) { m.onTransportEvent(gen, event, args) },
		OnDrop:  func(err error) { m.onTransportDrop(gen, err) },
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.closed {
		// 拨号期间已被 Disconnect 或新的 Connect 取代
		if t != nil {
			_ = t.Close()
		}
		if err == nil {
			err = &TransportError{Op: "dial", Err: errors.New("superseded")}
		}
		return err
	}

	if err != nil {
		if !IsAuthError(err) && !IsTransportError(err) {
			err = &TransportError{Op: "dial", Err: err}
		}
		m.lastErr = err
		m.emitLocked(models.EventConnectError, err)
		if IsAuthError(err) {
			m.log.Warn().Err(err).Msg("handshake rejected")
			m.setStateLocked(StateFailed)
			return err
		}
		m.log.Warn().Err(err).Int(logger.FieldAttempt, m.attempt).Msg("dial failed")
		m.scheduleRetryLocked()
		return err
	}

	m.transport = t
	m.lastErr = nil
	m.attempt = 0
	m.policy = m.newPolicy()
	m.log.Info().Str(logger.FieldSessionID, t.ID()).Str(logger.FieldUserID, m.auth.UserID).Msg("connected")
	m.setStateLocked(StateConnected)
	m.emitLocked(models.EventConnect)
	return nil
}

func (m *Manager) scheduleRetryLocked() {
	next := m.policy.NextBackOff()
	if next == backoff.Stop {
		cause := m.lastErr
		if cause == nil {
			cause = errors.New("connection lost")
		}
		m.lastErr = &TransportError{Op: "reconnect", Err: cause}
		m.log.Error().Err(cause).Int(logger.FieldAttempt, m.attempt).Msg("reconnect attempts exhausted")
		m.setStateLocked(StateFailed)
		return
	}
	m.attempt++
	gen := m.generation
	m.log.Info().Int(logger.FieldAttempt, m.attempt).Dur("delay", next).Msg("reconnect scheduled")
	m.retryTimer = m.clock.AfterFunc(next, func() { m.retry(gen) })
}

func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.closed {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	_ = m.dial(context.Background(), gen)
}

func (m *Manager) onTransportEvent(gen uint64, event string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}
	m.emitLocked(event, args...)
}

func (m *Manager) onTransportDrop(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.state != StateConnected {
		return
	}
	// 旧连接的迟到回调不能影响新连接
	m.dropTransportLocked()
	m.lastErr = err
	m.log.Warn().Err(err).Msg("connection lost")
	m.setStateLocked(StateDisconnected)
	m.emitLocked(models.EventDisconnect, "transport close")
	m.scheduleRetryLocked()
}

// Disconnect 关闭会话并取消等待中的重连，重复调用不做处理
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *Manager) disconnectLocked() {
	m.stopRetryLocked()
	wasConnected := m.transport != nil
	m.dropTransportLocked()
	if m.state == StateDisconnected {
		return
	}
	m.setStateLocked(StateDisconnected)
	if wasConnected {
		m.log.Info().Str(logger.FieldUserID, m.auth.UserID).Msg("disconnected")
		m.emitLocked(models.EventDisconnect, "io client disconnect")
	}
}

// dropTransportLocked 关闭当前连接，并使绑定在它上面的回调失效
func (m *Manager) dropTransportLocked() {
	m.generation++
	if m.transport != nil {
		_ = m.transport.Close()
		m.transport = nil
	}
}

func (m *Manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// Close 断开连接并停止分发 goroutine，不能在处理器中调用
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.disconnectLocked()
	m.closed = true
	m.mu.Unlock()
	m.disp.stop()
}

// Acquire 登记共享连接的使用者，返回的 release 可重复调用，最后一个 release 时断开连接
func (m *Manager) Acquire() (release func()) {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.refs--
			if m.refs == 0 {
				m.disconnectLocked()
			}
		})
	}
}

func (m *Manager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// On 注册事件处理器，在 Manager 生命周期内跨重连有效，可在 fn 内调用 off
func (m *Manager) On(event string, fn Handler) (off func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry := &handlerEntry{id: m.nextID, fn: fn}
	entry.active.Store(true)
	m.handlers[event] = append(m.handlers[event], entry)

	return func() {
		if !entry.active.Swap(false) {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.handlers[event]
		for i, e := range list {
			if e.id == entry.id {
				m.handlers[event] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(m.handlers[event]) == 0 {
			delete(m.handlers, event)
		}
	}
}

// OnStateChange 注册状态变化回调，可在 fn 内调用 off
func (m *Manager) OnStateChange(fn StateHandler) (off func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry := &stateEntry{id: m.nextID, fn: fn}
	entry.active.Store(true)
	m.stateHandlers = append(m.stateHandlers, entry)

	return func() {
		if !entry.active.Swap(false) {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, e := range m.stateHandlers {
			if e.id == entry.id {
				m.stateHandlers = append(m.stateHandlers[:i:i], m.stateHandlers[i+1:]...)
				break
			}
		}
	}
}

// Emit 通过当前连接发送事件
func (m *Manager) Emit(event string, payload interface{}) error {
	m.mu.Lock()
	t := m.transport
	state := m.state
	m.mu.Unlock()

	if t == nil || state != StateConnected {
		return &TransportError{Op: "emit", Err: ErrNotConnected}
	}
	return t.Emit(event, payload)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool { return m.State() == StateConnected }

// LastError 返回连接失败或最近一次断开的原因
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Session 返回当前会话，首次 Connect 前为 nil
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auth.Token == "" {
		return nil
	}
	return m.sessionLocked()
}

func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth.UserID
}

// Flush 等待已排队的处理器调用全部执行完，不能在处理器中调用
func (m *Manager) Flush() { m.disp.flush() }

func (m *Manager) sessionLocked() *Session {
	s := &Session{UserID: m.auth.UserID, Token: m.auth.Token, State: m.state}
	if m.transport != nil {
		s.ID = m.transport.ID()
	}
	return s
}

func (m *Manager) setStateLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.log.Debug().Str(logger.FieldState, string(to)).Str("from", string(from)).Msg("state change")

	entries := append([]*stateEntry(nil), m.stateHandlers...)
	m.disp.post(func() {
		for _, e := range entries {
			if e.active.Load() {
				e.fn(from, to)
			}
		}
	})
}

func (m *Manager) emitLocked(event string, args ...interface{}) {
	entries := append([]*handlerEntry(nil), m.handlers[event]...)
	if len(entries) == 0 {
		return
	}
	m.disp.post(func() {
		for _, e := range entries {
			if e.active.Load() {
				e.fn(args...)
			}
		}
	})
}
