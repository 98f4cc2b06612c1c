package push_service

import (
	"context"
	"errors"
	"time"

	"live-notify-service/models"
)

// UserEmitter 向用户的所有在线会话发送事件
type UserEmitter interface {
	SendToUser(userID, event string, payload interface{}) int
}

// LiveProvider 实时通道推送提供者，发送 new_notification 事件
type LiveProvider struct {
	sessions UserEmitter
}

func NewLiveProvider(sessions UserEmitter) *LiveProvider {
	return &LiveProvider{sessions: sessions}
}

func (p *LiveProvider) GetName() string {
	return ProviderTypeLive
}

// Deliver 用户没有在线会话时返回 Reached 0，通知仍可通过 REST 获取
func (p *LiveProvider) Deliver(ctx context.Context, userID string, push *models.NotificationPush) (*DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	startTime := time.Now()
	n := p.sessions.SendToUser(userID, models.EventNewNotification, push)
	return &DeliveryResult{
		Provider:       ProviderTypeLive,
		UserID:         userID,
		NotificationID: push.NotificationID,
		Reached:        n,
		Success:        true,
		Duration:       time.Since(startTime),
		Timestamp:      time.Now(),
	}, nil
}

func (p *LiveProvider) HealthCheck(ctx context.Context) error {
	if p.sessions == nil {
		return errors.New("live provider has no session router")
	}
	return nil
}
