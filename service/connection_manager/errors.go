package connection_manager

import (
	"errors"
	"fmt"
)

// ErrNotConnected 没有可用连接时发送事件，包装在 TransportError 中返回
var ErrNotConnected = errors.New("not connected")

// AuthError 凭证缺失或被拒绝，不会重试
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError 网络层错误，触发重连策略
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
