package connection_manager

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuthInfo 握手时提交的认证信息
type AuthInfo struct {
	UserID string
	Token  string
}

// Transport 一个实时连接，每次重连都会替换
type Transport interface {
	ID() string
	Emit(event string, payload interface{}) error
	Close() error
}

// Callbacks 接收 Transport 的入站事件。连接在未调用 Close 的情况下断开时 OnDrop 触发一次
type Callbacks struct {
	OnEvent func(event string, args []interface{})
	OnDrop  func(err error)
}

// Dialer 建立连接。Dial 阻塞到握手成功或失败，失败时返回 *AuthError 或 *TransportError
type Dialer interface {
	Dial(ctx context.Context, auth AuthInfo, cb Callbacks) (Transport, error)
}

// DecodePayload 将处理器参数解析到 v。参数可能是网络上解码的 JSON（map、字符串），
// 也可能是进程内传输的结构体
func DecodePayload(arg interface{}, v interface{}) error {
	switch a := arg.(type) {
	case nil:
		return fmt.Errorf("decode payload: empty argument")
	case json.RawMessage:
		return json.Unmarshal(a, v)
	case []byte:
		return json.Unmarshal(a, v)
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
