package connection_manager

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"live-notify-service/logger"
	"live-notify-service/models"

	"github.com/rs/zerolog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io-client-go/socket"
)

// InboundEvents 从 socket 转发的业务事件
var InboundEvents = []string{
	models.EventNewMessage,
	models.EventUserTyping,
	models.EventUserStopTyping,
	models.EventNewNotification,
	models.EventError,
}

// SocketIODialer 通过 socket.io 连接服务端，关闭库自带的重连，由 Manager 负责重试
type SocketIODialer struct {
	BaseURL string
	Path    string
	Timeout time.Duration
	log     zerolog.Logger
}

func NewSocketIODialer(baseURL, path string, timeout time.Duration) *SocketIODialer {
	if path == "" {
		path = "/socket.io/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SocketIODialer{
		BaseURL: baseURL,
		Path:    path,
		Timeout: timeout,
		log:     logger.Component("socketio_dialer"),
	}
}

func (d *SocketIODialer) Dial(ctx context.Context, auth AuthInfo, cb Callbacks) (Transport, error) {
	options := socketio.DefaultOptions()
	options.SetTransports(types.NewSet(
		transports.Polling,
		transports.WebSocket,
	))
	options.SetPath(d.Path)
	options.SetTimeout(d.Timeout)
	options.SetReconnection(false)
	options.SetForceNew(true)
	options.SetAutoConnect(false)
	options.SetAuth(map[string]any{"token": auth.Token})

	s, err := socketio.Connect(d.BaseURL, options)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	t := &socketTransport{socket: s}
	result := make(chan error, 1)
	report := func(err error) {
		select {
		case result <- err:
		default:
		}
	}

	s.On(types.EventName(models.EventConnect), func(...any) {
		t.connected.Store(true)
		report(nil)
	})

	s.On(types.EventName(models.EventConnectError), func(args ...any) {
		defer func() {
			if r := recover(); r != nil {
				d.log.Warn().Interface("panic", r).Msg("recovered in connect_error handler")
			}
		}()
		report(classifyConnectError(firstError(args, "connect error")))
	})

	s.On(types.EventName(models.EventDisconnect), func(args ...any) {
		if !t.connected.Swap(false) || t.closing.Load() {
			return
		}
		reason := "transport close"
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		d.log.Info().Str("reason", reason).Msg("socket dropped")
		if cb.OnDrop != nil {
			cb.OnDrop(&TransportError{Op: "read", Err: errors.New(reason)})
		}
	})

	for _, event := range InboundEvents {
		event := event
		s.On(types.EventName(event), func(args ...any) {
			defer func() {
				if r := recover(); r != nil {
					d.log.Warn().Interface("panic", r).Str(logger.FieldEvent, event).Msg("recovered in event handler")
				}
			}()
			if cb.OnEvent != nil {
				cb.OnEvent(event, args)
			}
		})
	}

	s.Connect()

	select {
	case err := <-result:
		if err != nil {
			t.Close()
			return nil, err
		}
		return t, nil
	case <-ctx.Done():
		t.Close()
		return nil, &TransportError{Op: "dial", Err: ctx.Err()}
	}
}

func firstError(args []any, fallback string) error {
	if len(args) > 0 && args[0] != nil {
		if e, ok := args[0].(error); ok {
			return e
		}
		return fmt.Errorf("%s: %v", fallback, args[0])
	}
	return errors.New(fallback + ": unknown error")
}

// classifyConnectError 区分握手被拒绝和网络错误
func classifyConnectError(err error) error {
	var ext *socketio.ExtendedError
	if errors.As(err, &ext) && ext.Message == models.AuthRejectedMessage {
		return &AuthError{Reason: "rejected by server", Err: err}
	}
	return &TransportError{Op: "dial", Err: err}
}

type socketTransport struct {
	socket    *socketio.Socket
	connected atomic.Bool
	closing   atomic.Bool
}

func (t *socketTransport) ID() string { return t.socket.Id() }

func (t *socketTransport) Emit(event string, payload interface{}) error {
	if !t.socket.Connected() {
		return &TransportError{Op: "emit", Err: ErrNotConnected}
	}
	if err := t.socket.Emit(event, payload); err != nil {
		return &TransportError{Op: "emit", Err: err}
	}
	return nil
}

func (t *socketTransport) Close() error {
	t.closing.Store(true)
	t.socket.Disconnect()
	return nil
}
