// Package history_service REST 兜底接口的会话历史、已读回执和未读数服务
package history_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-notify-service/logger"
	"live-notify-service/models"
	"live-notify-service/service/cache_service"
	"live-notify-service/service/store_service"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ReceiptStore 已读回执存储
type ReceiptStore interface {
	UpsertReadReceipt(r *models.ReadReceipt) (bool, error)
	GetReadReceipt(conversationID, userID string) (*models.ReadReceipt, error)
}

type Service struct {
	conversations *store_service.ConversationRepository
	messages      *store_service.MessageRepository
	notifications *store_service.NotificationRepository
	receipts      ReceiptStore
	cache         cache_service.HistoryCache
	cacheTTL      time.Duration
	sf            singleflight.Group
}

func NewService(
	conversations *store_service.ConversationRepository,
	messages *store_service.MessageRepository,
	notifications *store_service.NotificationRepository,
	receipts ReceiptStore,
	cache cache_service.HistoryCache,
	cacheTTL time.Duration,
) *Service {
	if cache == nil {
		cache = cache_service.NopHistoryCache{}
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		notifications: notifications,
		receipts:      receipts,
		cache:         cache,
		cacheTTL:      cacheTTL,
	}
}

// authorize 会话尚无消息时返回 (nil, nil)
func (s *Service) authorize(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if errors.Is(err, store_service.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, store_service.ErrNotParticipant
	}
	return conv, nil
}

// GetHistory 按 (sentAt, messageID) 顺序返回一页消息
func (s *Service) GetHistory(ctx context.Context, userID, conversationID, cursor string, limit int, direction string) (*models.MessagePage, error) {
	dir, err := models.ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	cur, err := models.ParseCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	conv, err := s.authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return &models.MessagePage{Messages: []*models.Message{}}, nil
	}

	// 只有游标之前的历史页不会再变化，可以缓存
	if cur == nil || dir == models.DirectionForward {
		return s.messages.List(ctx, conversationID, cur, limit, dir)
	}

	key := s.cache.BuildKey(conversationID, cursor, string(dir), limit)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, conversationID, cur, limit, dir, key)
	})
	if err != nil {
		return nil, err
	}
	page, ok := v.(*models.MessagePage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return page, nil
}

func (s *Service) fetchWithCache(ctx context.Context, conversationID string, cur *models.Cursor, limit int, dir models.Direction, key string) (*models.MessagePage, error) {
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache_service.ErrCacheMiss) {
		l := logger.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	page, err := s.messages.List(ctx, conversationID, cur, limit, dir)
	if err != nil {
		return nil, err
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, key, page, s.cacheTTL); err != nil {
			l := logger.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()
	return page, nil
}

// MarkRead 将用户的已读回执移动到 messageID，为空时移动到最新消息，重复调用不产生变化
func (s *Service) MarkRead(ctx context.Context, userID, conversationID, messageID string) (*models.ReadResult, error) {
	conv, err := s.authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	res := &models.ReadResult{ConversationID: conversationID}
	if conv == nil {
		return res, nil
	}

	var target *models.Message
	if messageID != "" {
		target, err = s.messages.Get(ctx, messageID)
		if err == nil && target.ConversationID != conversationID {
			err = store_service.ErrNotFound
		}
	} else {
		target, err = s.messages.Latest(ctx, conversationID)
	}
	if errors.Is(err, store_service.ErrNotFound) && messageID == "" {
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	res.Changed, err = s.receipts.UpsertReadReceipt(&models.ReadReceipt{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadMessageID: target.MessageID,
		LastReadSentAt:    target.SentAt,
		UpdatedAt:         time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	if res.Changed {
		if _, err := s.notifications.MarkConversationRead(ctx, userID, conversationID); err != nil {
			return nil, err
		}
	}

	receipt, err := s.receipts.GetReadReceipt(conversationID, userID)
	if err != nil {
		return nil, err
	}
	res.LastReadMessageID = receipt.LastReadMessageID
	res.UnreadCount, err = s.countUnread(ctx, conversationID, userID, receipt)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UnreadCount 已读回执之后发给用户的消息数
func (s *Service) UnreadCount(ctx context.Context, userID, conversationID string) (int64, error) {
	conv, err := s.authorize(ctx, userID, conversationID)
	if err != nil || conv == nil {
		return 0, err
	}
	receipt, err := s.receipts.GetReadReceipt(conversationID, userID)
	if err != nil {
		return 0, err
	}
	return s.countUnread(ctx, conversationID, userID, receipt)
}

func (s *Service) countUnread(ctx context.Context, conversationID, userID string, receipt *models.ReadReceipt) (int64, error) {
	var after *models.Cursor
	if receipt != nil {
		after = &models.Cursor{SentAt: receipt.LastReadSentAt, MessageID: receipt.LastReadMessageID}
	}
	return s.messages.CountUnread(ctx, conversationID, userID, after)
}
