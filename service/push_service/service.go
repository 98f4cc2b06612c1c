package push_service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"live-notify-service/models"
)

// DefaultPushService 默认推送服务实现，并发调用所有已注册的提供者
type DefaultPushService struct {
	providers map[string]Provider
	mu        sync.RWMutex
	running   bool
}

func NewPushService() *DefaultPushService {
	return &DefaultPushService{
		providers: make(map[string]Provider),
	}
}

func (s *DefaultPushService) SendToUser(ctx context.Context, userID string, push *models.NotificationPush) (*BatchResult, error) {
	return s.SendToUsers(ctx, []string{userID}, push)
}

func (s *DefaultPushService) SendToUsers(ctx context.Context, userIDs []string, push *models.NotificationPush) (*BatchResult, error) {
	startTime := time.Now()

	if push == nil {
		return nil, fmt.Errorf("push cannot be nil")
	}
	if !s.isRunning() {
		return nil, fmt.Errorf("push service is not running")
	}

	var results []*DeliveryResult
	var mu sync.Mutex
	var wg sync.WaitGroup

	s.mu.RLock()
	for _, userID := range userIDs {
		for _, provider := range s.providers {
			wg.Add(1)
			go func(uid string, prov Provider) {
				defer wg.Done()

				result := s.deliverSingle(ctx, uid, prov, push)

				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}(userID, provider)
		}
	}
	providerCount := len(s.providers)
	s.mu.RUnlock()

	wg.Wait()

	batch := &BatchResult{
		TotalUsers:     len(userIDs),
		TotalProviders: providerCount,
		Results:        results,
		Duration:       time.Since(startTime),
		Timestamp:      time.Now(),
	}
	for _, r := range results {
		if r.Success {
			batch.SuccessCount++
			batch.Reached += r.Reached
		} else {
			batch.FailureCount++
		}
	}
	return batch, nil
}

func (s *DefaultPushService) deliverSingle(ctx context.Context, userID string, provider Provider, push *models.NotificationPush) *DeliveryResult {
	startTime := time.Now()

	result := &DeliveryResult{
		Provider:       provider.GetName(),
		UserID:         userID,
		NotificationID: push.NotificationID,
		Timestamp:      time.Now(),
	}

	providerResult, err := provider.Deliver(ctx, userID, push)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(startTime)
		return result
	}

	result.Success = providerResult.Success
	result.Reached = providerResult.Reached
	result.Error = providerResult.Error
	result.Duration = time.Since(startTime)
	return result
}

func (s *DefaultPushService) RegisterProvider(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := provider.GetName()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	s.providers[name] = provider
	return nil
}

func (s *DefaultPushService) HealthCheck(ctx context.Context) map[string]error {
	s.mu.RLock()
	providers := make(map[string]Provider)
	for name, provider := range s.providers {
		providers[name] = provider
	}
	s.mu.RUnlock()

	results := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, provider := range providers {
		wg.Add(1)
		go func(n string, p Provider) {
			defer wg.Done()

			err := p.HealthCheck(ctx)
			mu.Lock()
			results[n] = err
			mu.Unlock()
		}(name, provider)
	}

	wg.Wait()
	return results
}

func (s *DefaultPushService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("service is already running")
	}
	s.running = true
	return nil
}

func (s *DefaultPushService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("service is not running")
	}
	s.running = false
	return nil
}

func (s *DefaultPushService) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetProviders 获取已注册的提供者名称（已排序）
func (s *DefaultPushService) GetProviders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
