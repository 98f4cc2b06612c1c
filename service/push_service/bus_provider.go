package push_service

import (
	"context"
	"fmt"
	"time"

	"live-notify-service/models"
	"live-notify-service/service/event_bus"
)

// EventNotificationPushed BusProvider 写入的事件类型
const EventNotificationPushed = "notification.pushed"

// BusProvider Redis 总线推送提供者，将每次推送转发到 Redis 频道，
// 供外部网关（移动推送、邮件摘要）订阅
type BusProvider struct {
	publisher event_bus.Publisher
	channel   string
}

func NewBusProvider(publisher event_bus.Publisher, channel string) *BusProvider {
	return &BusProvider{publisher: publisher, channel: channel}
}

func (p *BusProvider) GetName() string {
	return ProviderTypeBus
}

func (p *BusProvider) Deliver(ctx context.Context, userID string, push *models.NotificationPush) (*DeliveryResult, error) {
	startTime := time.Now()

	event, err := event_bus.NewEvent(EventNotificationPushed, userID, push)
	if err != nil {
		return nil, fmt.Errorf("encode push: %w", err)
	}

	result := &DeliveryResult{
		Provider:       ProviderTypeBus,
		UserID:         userID,
		NotificationID: push.NotificationID,
		Timestamp:      time.Now(),
	}
	if err := p.publisher.Publish(ctx, p.channel, event); err != nil {
		result.Error = err
	} else {
		result.Success = true
		result.Reached = 1
	}
	result.Duration = time.Since(startTime)
	return result, nil
}

func (p *BusProvider) HealthCheck(ctx context.Context) error {
	if p.publisher == nil || p.channel == "" {
		return fmt.Errorf("bus provider not configured")
	}
	return nil
}
