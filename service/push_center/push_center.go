package pushcenter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"live-notify-service/logger"
	"live-notify-service/models"
	"live-notify-service/service/event_bus"
	"live-notify-service/service/push_service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// ErrInvalidRequest Publish 参数校验失败
var ErrInvalidRequest = errors.New("invalid notification request")

const messagePreviewLen = 80

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) (bool, error)
	Get(ctx context.Context, notificationID string) (*models.Notification, error)
}

// DeliveryLedger 记录已推送过的通知
type DeliveryLedger interface {
	ClaimDelivery(notificationID, recipientUserID string) (bool, error)
	SetDeliveredSessions(notificationID string, sessions int) error
	ReleaseDelivery(notificationID string) error
}

type Pusher interface {
	SendToUser(ctx context.Context, userID string, push *models.NotificationPush) (*push_service.BatchResult, error)
}

// PublishRequest 创建通知的请求。NotificationID 为可选的幂等键，
// 相同键的重复请求只投递一次
type PublishRequest struct {
	NotificationID   string                  `json:"notificationID"`
	RecipientUserID  string                  `json:"recipientUserID" binding:"required"`
	ConversationID   string                  `json:"conversationID"`
	NotificationType models.NotificationType `json:"notificationType" binding:"required"`
	ReviewID         string                  `json:"reviewID"`
	RequestID        string                  `json:"requestID"`
	Message          string                  `json:"message" binding:"required"`
	Reason           string                  `json:"reason"`
}

// PublishResult 发布结果
type PublishResult struct {
	Notification *models.Notification `json:"notification"`
	Duplicate    bool                 `json:"duplicate"`
	Sessions     int                  `json:"sessions"`
}

type Config struct {
	Workers       int           `yaml:"workers" json:"workers"`
	SendTimeout   time.Duration `yaml:"send_timeout" json:"send_timeout"`
	DomainChannel string        `yaml:"domain_channel" json:"domain_channel"`
}

// PushCenter 推送中心管理器：持久化通知并推送到接收者的所有在线会话，
// 同时消费 Redis 总线上的业务事件
type PushCenter struct {
	store      NotificationStore
	ledger     DeliveryLedger
	pusher     Pusher
	subscriber event_bus.Subscriber
	config     *Config
	log        zerolog.Logger

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

func NewPushCenter(config *Config, store NotificationStore, ledger DeliveryLedger, pusher Pusher, subscriber event_bus.Subscriber) *PushCenter {
	if config == nil {
		config = &Config{}
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	return &PushCenter{
		store:      store,
		ledger:     ledger,
		pusher:     pusher,
		subscriber: subscriber,
		config:     config,
		log:        logger.Component("push_center"),
	}
}

func (req *PublishRequest) validate() error {
	req.RecipientUserID = strings.TrimSpace(req.RecipientUserID)
	if req.RecipientUserID == "" {
		return fmt.Errorf("%w: recipientUserID is required", ErrInvalidRequest)
	}
	if !req.NotificationType.Valid() {
		return fmt.Errorf("%w: unknown notificationType %q", ErrInvalidRequest, req.NotificationType)
	}
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	return nil
}

// Publish 存储通知并推送到接收者的所有在线会话。
// 已投递过的通知ID返回 Duplicate，不会再次推送
func (pc *PushCenter) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.NotificationID == "" {
		req.NotificationID = uuid.NewString()
	}

	n := &models.Notification{
		NotificationID:   req.NotificationID,
		RecipientUserID:  req.RecipientUserID,
		NotificationType: req.NotificationType,
		ConversationID:   req.ConversationID,
		Payload: datatypes.NewJSONType(models.NotificationPayload{
			NotificationType: req.NotificationType,
			ReviewID:         req.ReviewID,
			RequestID:        req.RequestID,
			Message:          req.Message,
			Reason:           req.Reason,
		}),
		ReadStatus: models.ReadStatusUnread,
	}

	created, err := pc.store.Create(ctx, n)
	if err != nil {
		return nil, err
	}
	if !created {
		// 重复请求：推送首次存储的内容
		if n, err = pc.store.Get(ctx, req.NotificationID); err != nil {
			return nil, err
		}
	}

	lg := pc.log.With().
		Str(logger.FieldNotificationID, n.NotificationID).
		Str(logger.FieldUserID, n.RecipientUserID).
		Logger()

	claimed, err := pc.ledger.ClaimDelivery(n.NotificationID, n.RecipientUserID)
	if err != nil {
		return nil, fmt.Errorf("claim delivery: %w", err)
	}
	if !claimed {
		lg.Debug().Msg("already delivered, skipping push")
		return &PublishResult{Notification: n, Duplicate: true}, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, pc.config.SendTimeout)
	defer cancel()

	result, err := pc.pusher.SendToUser(sendCtx, n.RecipientUserID, n.Push())
	if err != nil {
		if relErr := pc.ledger.ReleaseDelivery(n.NotificationID); relErr != nil {
			lg.Error().Err(relErr).Msg("release delivery claim")
		}
		return nil, fmt.Errorf("push notification: %w", err)
	}

	sessions := result.ReachedProvider(push_service.ProviderTypeLive)
	if err := pc.ledger.SetDeliveredSessions(n.NotificationID, sessions); err != nil {
		lg.Warn().Err(err).Msg("record delivered sessions")
	}
	for _, r := range result.Results {
		if !r.Success {
			lg.Warn().Err(r.Error).Str("provider", r.Provider).Msg("provider delivery failed")
		}
	}

	lg.Info().
		Str("type", string(n.NotificationType)).
		Int("sessions", sessions).
		Msg("notification delivered")
	return &PublishResult{Notification: n, Sessions: sessions}, nil
}

// NotifyNewMessage 为消息接收方生成新消息通知。
// 通知ID由消息ID派生，重试发送只通知一次
func (pc *PushCenter) NotifyNewMessage(ctx context.Context, msg *models.Message) (*PublishResult, error) {
	return pc.Publish(ctx, PublishRequest{
		NotificationID:   "msg-" + msg.MessageID,
		RecipientUserID:  msg.ReceiverID,
		ConversationID:   msg.ConversationID,
		NotificationType: models.NotificationTypeMessage,
		Message:          preview(msg.Text),
	})
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= messagePreviewLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:messagePreviewLen]) + "…"
}

// Run 运行推送中心，启动业务事件消费；没有订阅者或频道时只标记为运行中
func (pc *PushCenter) Run() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.running {
		return fmt.Errorf("push center is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())

	if pc.subscriber != nil && pc.config.DomainChannel != "" {
		events, err := pc.subscriber.Subscribe(ctx, pc.config.DomainChannel)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe domain events: %w", err)
		}

		jobs := make(chan *event_bus.Event, pc.config.Workers*4)
		pc.wg.Add(1)
		go func() {
			defer pc.wg.Done()
			defer close(jobs)
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-events:
					if !ok {
						return
					}
					select {
					case jobs <- evt:
					case <-ctx.Done():
						return
					}
				}
			}
		}()

		for i := 0; i < pc.config.Workers; i++ {
			pc.wg.Add(1)
			go func() {
				defer pc.wg.Done()
				for evt := range jobs {
					pc.handleDomainEvent(ctx, evt)
				}
			}()
		}
		pc.log.Info().
			Str("channel", pc.config.DomainChannel).
			Int("workers", pc.config.Workers).
			Msg("domain event consumer started")
	}

	pc.cancel = cancel
	pc.running = true
	return nil
}

func (pc *PushCenter) handleDomainEvent(ctx context.Context, evt *event_bus.Event) {
	if evt.Type != event_bus.EventNotificationRequested {
		pc.log.Debug().Str("type", evt.Type).Msg("ignoring domain event")
		return
	}

	var req PublishRequest
	if err := evt.UnmarshalPayload(&req); err != nil {
		pc.log.Warn().Err(err).Msg("malformed notification request")
		return
	}
	if req.RecipientUserID == "" {
		req.RecipientUserID = evt.Key
	}

	if _, err := pc.Publish(ctx, req); err != nil {
		pc.log.Error().Err(err).Str(logger.FieldUserID, req.RecipientUserID).Msg("publish from domain event failed")
	}
}

func (pc *PushCenter) Stop() error {
	pc.mu.Lock()
	if !pc.running {
		pc.mu.Unlock()
		return nil
	}
	pc.cancel()
	pc.running = false
	pc.mu.Unlock()

	pc.wg.Wait()
	pc.log.Info().Msg("push center stopped")
	return nil
}

func (pc *PushCenter) IsRunning() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.running
}
