package push_service

import (
	"context"
	"sync"

	"live-notify-service/models"
	"live-notify-service/service/event_bus"
)

// Manager 推送服务管理器
type Manager struct {
	service *DefaultPushService
	mu      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		service: NewPushService(),
	}
}

// RegisterLiveProvider 注册实时通道推送提供者
func (m *Manager) RegisterLiveProvider(sessions UserEmitter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.service.RegisterProvider(NewLiveProvider(sessions))
}

// RegisterBusProvider 注册 Redis 总线推送提供者
func (m *Manager) RegisterBusProvider(publisher event_bus.Publisher, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.service.RegisterProvider(NewBusProvider(publisher, channel))
}

func (m *Manager) RegisterProvider(provider Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.service.RegisterProvider(provider)
}

func (m *Manager) SendToUser(ctx context.Context, userID string, push *models.NotificationPush) (*BatchResult, error) {
	return m.service.SendToUser(ctx, userID, push)
}

func (m *Manager) SendToUsers(ctx context.Context, userIDs []string, push *models.NotificationPush) (*BatchResult, error) {
	return m.service.SendToUsers(ctx, userIDs, push)
}

func (m *Manager) GetProviders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.service.GetProviders()
}

func (m *Manager) HealthCheck(ctx context.Context) map[string]error {
	return m.service.HealthCheck(ctx)
}

func (m *Manager) Start() error {
	return m.service.Start()
}

func (m *Manager) Stop() error {
	return m.service.Stop()
}
