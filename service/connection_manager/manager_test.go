package connection_manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"live-notify-service/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	id     string
	cb     Callbacks
	mu     sync.Mutex
	sent   []string
	closed bool
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Emit(event string, payload interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, event)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// fakeDialer 接下来的 len(failures) 次拨号依次返回排队的错误
type fakeDialer struct {
	mu         sync.Mutex
	failures   []error
	dials      int
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, _ AuthInfo, cb Callbacks) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}
	t := &fakeTransport{id: fmt.Sprintf("sock-%d", d.dials), cb: cb}
	d.transports = append(d.transports, t)
	return t, nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (d *fakeDialer) fail(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[len(d.transports)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func netErr() error {
	return &TransportError{Op: "dial", Err: errors.New("connection refused")}
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(_, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, to)
}

func (l *stateLog) get() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

// armed 等待 clk 上有待触发的重连定时器
func armed(t *testing.T, clk *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
}

func waitDials(t *testing.T, d *fakeDialer, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return d.dialCount() == n }, time.Second, time.Millisecond)
}

func waitState(t *testing.T, m *Manager, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == s }, time.Second, time.Millisecond)
}

func newTestManager(t *testing.T) (*Manager, *fakeDialer, *clockwork.FakeClock) {
	t.Helper()
	d := &fakeDialer{}
	clk := clockwork.NewFakeClockAt(time.Unix(0, 0))
	m := NewManager(d, DefaultConfig(), clk)
	t.Cleanup(m.Close)
	return m, d, clk
}

func TestConnectRequiresToken(t *testing.T) {
	m, d, _ := newTestManager(t)

	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a"})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 0, d.dialCount())
}

func TestConnectAuthRejectedIsNotRetried(t *testing.T) {
	m, d, clk := newTestManager(t)
	d.fail(&AuthError{Reason: "rejected by server"})

	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "bad"})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, StateFailed, m.State())

	clk.Advance(time.Minute)
	assert.Equal(t, 1, d.dialCount())
}

func TestConnectAndEmit(t *testing.T) {
	m, d, _ := newTestManager(t)

	s, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "sock-1", s.ID)
	assert.Equal(t, StateConnected, s.State)

	require.NoError(t, m.Emit(models.EventJoinRequest, "42"))
	assert.Equal(t, []string{models.EventJoinRequest}, d.last().sent)
}

func TestEmitWhileDisconnected(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.Emit(models.EventTyping, models.TypingPayload{ConversationID: "42"})
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	m, d, _ := newTestManager(t)
	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)

	disconnects := 0
	m.On(models.EventDisconnect, func(...interface{}) { disconnects++ })

	m.Disconnect()
	m.Disconnect()
	m.Flush()

	assert.Equal(t, StateDisconnected, m.State())
	assert.True(t, d.last().isClosed())
	assert.Equal(t, 1, disconnects)
}

func TestReconnectKeepsHandlers(t *testing.T) {
	m, d, clk := newTestManager(t)
	states := &stateLog{}
	m.OnStateChange(states.record)

	var got []string
	m.On(models.EventNewMessage, func(args ...interface{}) {
		got = append(got, args[0].(string))
	})

	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)
	first := d.last()
	first.cb.OnEvent(models.EventNewMessage, []interface{}{"m1"})

	first.cb.OnDrop(errors.New("transport close"))
	assert.Equal(t, StateDisconnected, m.State())
	assert.True(t, first.isClosed())

	armed(t, clk)
	clk.Advance(time.Second)
	waitState(t, m, StateConnected)
	second := d.last()
	require.NotSame(t, first, second)

	// 旧连接的事件被忽略
	first.cb.OnEvent(models.EventNewMessage, []interface{}{"stale"})
	second.cb.OnEvent(models.EventNewMessage, []interface{}{"m2"})
	m.Flush()

	assert.Equal(t, []string{"m1", "m2"}, got)
	assert.Equal(t, []State{StateConnecting, StateConnected, StateDisconnected, StateConnecting, StateConnected}, states.get())
}

func TestReconnectBackoffSchedule(t *testing.T) {
	m, d, clk := newTestManager(t)
	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)

	d.fail(netErr(), netErr(), netErr())
	d.last().cb.OnDrop(errors.New("ping timeout"))

	// 1s、2s、4s，第四次在 5s（上限）后成功
	armed(t, clk)
	clk.Advance(999 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount())
	clk.Advance(time.Millisecond)
	waitDials(t, d, 2)

	armed(t, clk)
	clk.Advance(1999 * time.Millisecond)
	assert.Equal(t, 2, d.dialCount())
	clk.Advance(time.Millisecond)
	waitDials(t, d, 3)

	armed(t, clk)
	clk.Advance(4 * time.Second)
	waitDials(t, d, 4)

	armed(t, clk)
	assert.Equal(t, StateConnecting, m.State())
	clk.Advance(4999 * time.Millisecond)
	assert.Equal(t, 4, d.dialCount())
	clk.Advance(time.Millisecond)
	waitDials(t, d, 5)
	waitState(t, m, StateConnected)
}

func TestReconnectGivesUpAfterFiveAttempts(t *testing.T) {
	m, d, clk := newTestManager(t)
	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)

	d.fail(netErr(), netErr(), netErr(), netErr(), netErr(), netErr())
	d.last().cb.OnDrop(errors.New("transport close"))

	for i := 0; i < 5; i++ {
		armed(t, clk)
		clk.Advance(5 * time.Second)
		waitDials(t, d, i+2)
	}
	waitState(t, m, StateFailed)
	assert.True(t, IsTransportError(m.LastError()))

	clk.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 6, d.dialCount())
}

func TestInitialTransportFailureStartsRetry(t *testing.T) {
	m, d, clk := newTestManager(t)
	d.fail(netErr())

	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.Error(t, err)
	assert.True(t, IsTransportError(err))

	armed(t, clk)
	clk.Advance(time.Second)
	waitState(t, m, StateConnected)
}

func TestStaleTransportCannotTearDownReconnect(t *testing.T) {
	m, d, clk := newTestManager(t)
	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)

	var got []string
	m.On(models.EventNewMessage, func(args ...interface{}) {
		got = append(got, args[0].(string))
	})

	first := d.last()
	first.cb.OnDrop(errors.New("ping timeout"))
	armed(t, clk)
	clk.Advance(time.Second)
	waitState(t, m, StateConnected)
	second := d.last()

	// 旧 socket 迟到的断开通知
	first.cb.OnDrop(errors.New("late close"))
	first.cb.OnEvent(models.EventNewMessage, []interface{}{"stale"})
	second.cb.OnEvent(models.EventNewMessage, []interface{}{"m1"})
	m.Flush()

	assert.Equal(t, StateConnected, m.State())
	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, 2, d.dialCount())
	assert.Equal(t, []string{"m1"}, got)
	require.NoError(t, m.Emit(models.EventTyping, models.TypingPayload{ConversationID: "42"}))
	assert.Equal(t, []string{models.EventTyping}, second.sent)
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	m, d, clk := newTestManager(t)
	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)

	d.last().cb.OnDrop(errors.New("transport close"))
	m.Disconnect()
	clk.Advance(time.Minute)

	assert.Equal(t, 1, d.dialCount())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestAcquireRefcount(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)

	releaseChat := m.Acquire()
	releaseNotif := m.Acquire()

	releaseChat()
	releaseChat()
	assert.Equal(t, 1, m.Refs())
	assert.Equal(t, StateConnected, m.State())

	releaseNotif()
	assert.Equal(t, 0, m.Refs())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestOffInsideHandler(t *testing.T) {
	m, d, _ := newTestManager(t)
	_, err := m.Connect(context.Background(), AuthInfo{UserID: "user-a", Token: "tok"})
	require.NoError(t, err)

	calls := 0
	var off func()
	off = m.On(models.EventNewNotification, func(...interface{}) {
		calls++
		off()
		off()
	})
	other := 0
	m.On(models.EventNewNotification, func(...interface{}) { other++ })

	d.last().cb.OnEvent(models.EventNewNotification, []interface{}{"n1"})
	d.last().cb.OnEvent(models.EventNewNotification, []interface{}{"n2"})
	m.Flush()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestDecodePayload(t *testing.T) {
	var p models.SendMessagePayload
	require.NoError(t, DecodePayload(map[string]interface{}{
		"conversationID": "42",
		"receiverID":     "user-b",
		"messageText":    "Hi",
	}, &p))
	assert.Equal(t, "user-b", p.ReceiverID)

	var typing models.TypingSignal
	require.NoError(t, DecodePayload(models.TypingSignal{ConversationID: "42", UserID: "user-a"}, &typing))
	assert.Equal(t, "user-a", typing.UserID)

	assert.Error(t, DecodePayload(nil, &p))
}
