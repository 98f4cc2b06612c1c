// Package live_server socket.io 实时服务端，校验握手并将客户端事件交给 chat_service
package live_server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"live-notify-service/logger"
	"live-notify-service/models"
	"live-notify-service/service/chat_service"
	"live-notify-service/service/store_service"

	"github.com/rs/zerolog"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
)

// Identity 连接的认证身份
type Identity struct {
	UserID string
	Role   string
}

// Authenticate 校验握手令牌
type Authenticate func(token string) (*Identity, error)

type Config struct {
	Path           string        `yaml:"path" json:"path"`
	PingInterval   time.Duration `yaml:"ping_interval" json:"ping_interval"`
	PingTimeout    time.Duration `yaml:"ping_timeout" json:"ping_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Path:           "/socket.io/",
		PingInterval:   25 * time.Second,
		PingTimeout:    20 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

type Server struct {
	io      *socket.Server
	handler http.Handler
	chat    *chat_service.Service
	authn   Authenticate
	config  *Config
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

func NewServer(config *Config, chat *chat_service.Service, authn Authenticate) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}

	opts := socket.DefaultServerOptions()
	opts.SetPath(strings.TrimSuffix(config.Path, "/"))
	if config.PingInterval > 0 {
		opts.SetPingInterval(config.PingInterval)
	}
	if config.PingTimeout > 0 {
		opts.SetPingTimeout(config.PingTimeout)
	}
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:       socket.NewServer(nil, opts),
		chat:     chat,
		authn:    authn,
		config:   config,
		log:      logger.Component("live_server"),
		sessions: make(map[string]*session),
	}
	s.io.Use(s.authMiddleware)
	_ = s.io.On("connection", func(args ...any) {
		client, ok := args[0].(*socket.Socket)
		if !ok {
			return
		}
		s.onConnection(client)
	})
	s.handler = s.io.ServeHandler(nil)
	return s
}

// Handler engine.io 传输处理器
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SessionCount 已认证的在线连接数
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	s.io.Close(func(error) { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("socket.io close timed out")
	}
}

func (s *Server) authMiddleware(client *socket.Socket, next func(*socket.ExtendedError)) {
	token := handshakeToken(client.Handshake())
	id, err := s.authn(token)
	if err != nil || id == nil || id.UserID == "" {
		reason := "missing token"
		if err != nil {
			reason = err.Error()
		}
		s.log.Info().Str(logger.FieldSessionID, string(client.Id())).Str("reason", reason).Msg("handshake rejected")
		next(socket.NewExtendedError(models.AuthRejectedMessage, map[string]any{"reason": reason}))
		return
	}
	client.SetData(id)
	next(nil)
}

// handshakeToken 依次读取 auth.token、token 查询参数和 Authorization 头
func handshakeToken(hs *socket.Handshake) string {
	if hs == nil {
		return ""
	}
	if m, ok := hs.Auth.(map[string]any); ok {
		if tok, ok := m["token"].(string); ok && tok != "" {
			return tok
		}
	}
	if v := hs.Query["token"]; len(v) > 0 && v[0] != "" {
		return v[0]
	}
	for name, values := range hs.Headers {
		if !strings.EqualFold(name, "Authorization") || len(values) == 0 {
			continue
		}
		if tok, ok := strings.CutPrefix(values[0], "Bearer "); ok {
			return tok
		}
	}
	return ""
}

func (s *Server) onConnection(client *socket.Socket) {
	id, ok := client.Data().(*Identity)
	if !ok {
		client.Disconnect(true)
		return
	}
	sess := &session{sock: client, userID: id.UserID, role: id.Role}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	s.chat.Connect(sess)

	_ = client.On(models.EventJoinRequest, func(args ...any) {
		convID, err := decodeConversationID(args)
		if err == nil {
			ctx, cancel := s.requestContext(sess)
			err = s.chat.HandleJoin(ctx, sess, convID)
			cancel()
		}
		s.reject(sess, models.EventJoinRequest, err)
	})
	_ = client.On(models.EventLeaveRequest, func(args ...any) {
		convID, err := decodeConversationID(args)
		if err != nil {
			s.reject(sess, models.EventLeaveRequest, err)
			return
		}
		s.chat.HandleLeave(sess, convID)
	})
	_ = client.On(models.EventSendMessage, func(args ...any) {
		var req models.SendMessagePayload
		err := decodeArg(args, &req)
		if err == nil {
			ctx, cancel := s.requestContext(sess)
			_, err = s.chat.HandleSend(ctx, sess, req)
			cancel()
		}
		s.reject(sess, models.EventSendMessage, err)
	})
	_ = client.On(models.EventTyping, func(args ...any) {
		if convID, err := decodeConversationID(args); err == nil {
			s.chat.HandleTyping(sess, convID, true)
		}
	})
	_ = client.On(models.EventStopTyping, func(args ...any) {
		if convID, err := decodeConversationID(args); err == nil {
			s.chat.HandleTyping(sess, convID, false)
		}
	})
	_ = client.On("disconnect", func(args ...any) {
		s.mu.Lock()
		delete(s.sessions, sess.ID())
		s.mu.Unlock()
		s.chat.Disconnect(sess)
	})
}

func (s *Server) requestContext(sess *session) (context.Context, context.CancelFunc) {
	lg := s.log.With().Str(logger.FieldSessionID, sess.ID()).Str(logger.FieldUserID, sess.userID).Logger()
	return context.WithTimeout(logger.WithLogger(context.Background(), lg), s.config.RequestTimeout)
}

// reject 通过 error 事件返回请求失败
func (s *Server) reject(sess *session, event string, err error) {
	if err == nil {
		return
	}
	code := models.ErrCodeInternal
	switch {
	case errors.Is(err, store_service.ErrInvalidInput):
		code = models.ErrCodeBadRequest
	case errors.Is(err, store_service.ErrNotParticipant):
		code = models.ErrCodeNotParticipant
	default:
		s.log.Error().Err(err).Str(logger.FieldSessionID, sess.ID()).Str(logger.FieldEvent, event).Msg("request failed")
	}
	if emitErr := sess.Emit(models.EventError, &models.ErrorPayload{Event: event, Code: code, Message: err.Error()}); emitErr != nil {
		s.log.Warn().Err(emitErr).Str(logger.FieldSessionID, sess.ID()).Msg("emit error event")
	}
}

// decodeArg 将事件的第一个参数解析到 v
func decodeArg(args []any, v any) error {
	if len(args) == 0 || args[0] == nil {
		return fmt.Errorf("%w: missing payload", store_service.ErrInvalidInput)
	}
	var raw []byte
	switch a := args[0].(type) {
	case string:
		raw = []byte(a)
	case []byte:
		raw = a
	default:
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("%w: %v", store_service.ErrInvalidInput, err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed payload", store_service.ErrInvalidInput)
	}
	return nil
}

// decodeConversationID 支持会话ID字符串或 {conversationId} 对象
func decodeConversationID(args []any) (string, error) {
	if len(args) > 0 {
		switch a := args[0].(type) {
		case string:
			if id := strings.TrimSpace(a); id != "" && !strings.HasPrefix(id, "{") {
				return id, nil
			}
		case float64:
			return fmt.Sprintf("%.0f", a), nil
		}
	}
	var p models.TypingPayload
	if err := decodeArg(args, &p); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.ConversationID) == "" {
		return "", fmt.Errorf("%w: conversationID is required", store_service.ErrInvalidInput)
	}
	return strings.TrimSpace(p.ConversationID), nil
}

// session 将 socket.io 连接适配为 chat_service.Session
type session struct {
	sock   *socket.Socket
	userID string
	role   string
}

func (s *session) ID() string     { return string(s.sock.Id()) }
func (s *session) UserID() string { return s.userID }
func (s *session) Role() string   { return s.role }

func (s *session) Emit(event string, payload interface{}) error {
	return s.sock.Emit(event, payload)
}
