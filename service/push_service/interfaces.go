package push_service

import (
	"context"
	"time"

	"live-notify-service/models"
)

// Provider 推送提供者接口
type Provider interface {
	GetName() string

	// 投递通知，返回触达的端点数（会话、订阅者）
	Deliver(ctx context.Context, userID string, push *models.NotificationPush) (*DeliveryResult, error)

	HealthCheck(ctx context.Context) error
}

// DeliveryResult 单个提供者对单个用户的投递结果
type DeliveryResult struct {
	Provider       string        `json:"provider"`
	UserID         string        `json:"userId"`
	NotificationID string        `json:"notificationId"`
	Reached        int           `json:"reached"`
	Success        bool          `json:"success"`
	Error          error         `json:"-"`
	Duration       time.Duration `json:"duration"`
	Timestamp      time.Time     `json:"timestamp"`
}

// BatchResult 一次发送的所有提供者结果
type BatchResult struct {
	TotalUsers     int               `json:"totalUsers"`
	TotalProviders int               `json:"totalProviders"`
	SuccessCount   int               `json:"successCount"`
	FailureCount   int               `json:"failureCount"`
	Reached        int               `json:"reached"`
	Results        []*DeliveryResult `json:"results"`
	Duration       time.Duration     `json:"duration"`
	Timestamp      time.Time         `json:"timestamp"`
}

// ReachedProvider 返回指定提供者触达的端点数
func (b *BatchResult) ReachedProvider(name string) int {
	n := 0
	for _, r := range b.Results {
		if r.Provider == name && r.Success {
			n += r.Reached
		}
	}
	return n
}

type PushService interface {
	SendToUser(ctx context.Context, userID string, push *models.NotificationPush) (*BatchResult, error)
	SendToUsers(ctx context.Context, userIDs []string, push *models.NotificationPush) (*BatchResult, error)
	RegisterProvider(provider Provider) error
	HealthCheck(ctx context.Context) map[string]error
	Start() error
	Stop() error
}

const (
	ProviderTypeLive = "live"
	ProviderTypeBus  = "bus"
)
