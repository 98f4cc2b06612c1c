package pebble_service

import (
	"encoding/json"
	"errors"
	"fmt"

	"live-notify-service/models"

	"github.com/cockroachdb/pebble"
)

func readReceiptKey(conversationID, userID string) []byte {
	return buildKey(conversationID, userID)
}

// UpsertReadReceipt 已读回执只前进：r 指向比已存储更新的消息时才更新，
// 返回是否发生变化，同一消息重复调用不产生变化
func (ps *PebbleService) UpsertReadReceipt(r *models.ReadReceipt) (bool, error) {
	if r.ConversationID == "" || r.UserID == "" {
		return false, fmt.Errorf("conversation id and user id are required")
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionReadReceipts)
	if err != nil {
		return false, err
	}

	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()

	current, err := getReadReceipt(db, r.ConversationID, r.UserID)
	if err != nil {
		return false, err
	}
	if current != nil {
		next := &models.Message{MessageID: r.LastReadMessageID, SentAt: r.LastReadSentAt}
		prev := &models.Message{MessageID: current.LastReadMessageID, SentAt: current.LastReadSentAt}
		if !prev.Before(next) {
			return false, nil
		}
	}

	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("marshal read receipt: %w", err)
	}
	if err := db.Set(readReceiptKey(r.ConversationID, r.UserID), data, pebble.Sync); err != nil {
		return false, fmt.Errorf("save read receipt: %w", err)
	}
	return true, nil
}

// GetReadReceipt 获取已读回执，用户从未读过该会话时返回 nil
func (ps *PebbleService) GetReadReceipt(conversationID, userID string) (*models.ReadReceipt, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionReadReceipts)
	if err != nil {
		return nil, err
	}
	return getReadReceipt(db, conversationID, userID)
}

func getReadReceipt(db *pebble.DB, conversationID, userID string) (*models.ReadReceipt, error) {
	value, closer, err := db.Get(readReceiptKey(conversationID, userID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read receipt: %w", err)
	}
	defer closer.Close()

	var r models.ReadReceipt
	if err := json.Unmarshal(value, &r); err != nil {
		return nil, fmt.Errorf("decode read receipt: %w", err)
	}
	return &r, nil
}
