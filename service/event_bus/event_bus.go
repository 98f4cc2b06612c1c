// Package event_bus 将其他服务的业务事件（评价、审核、预约变更）送入通知流程
package event_bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"live-notify-service/logger"

	"github.com/redis/go-redis/v9"
)

// 业务服务发布的事件类型
const (
	EventNotificationRequested = "notification.requested"
)

type Event struct {
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEvent(eventType, key string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Key:       key,
		Payload:   data,
		Timestamp: time.Now(),
	}, nil
}

func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
}

// RedisBus 基于 Redis pub/sub 的 Publisher 和 Subscriber 实现
type RedisBus struct {
	client        *redis.Client
	subscriptions map[string]*redis.PubSub
	mu            sync.Mutex
	bufferSize    int
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
		bufferSize:    256,
	}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, channel, data).Err()
}

// Subscribe 订阅频道，ctx 结束或总线关闭时返回的 channel 被关闭。
// 等待订阅确认后才返回，之后发布的事件不会丢失
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	if prev, ok := b.subscriptions[channel]; ok {
		_ = prev.Close()
	}
	b.subscriptions[channel] = ps

	out := make(chan *Event, b.bufferSize)
	go b.processMessages(ctx, ps, out)
	return out, nil
}

func (b *RedisBus) processMessages(ctx context.Context, ps *redis.PubSub, out chan<- *Event) {
	defer close(out)
	lg := logger.Component("event_bus")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				lg.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
				continue
			}
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close 结束所有订阅，Redis 客户端由调用方关闭
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, ps := range b.subscriptions {
		_ = ps.Close()
		delete(b.subscriptions, name)
	}
	return nil
}
