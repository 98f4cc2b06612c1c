package pebble_service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// DeliveryRecord 通知投递记录
type DeliveryRecord struct {
	NotificationID  string `json:"notificationID"`
	RecipientUserID string `json:"recipientUserID"`
	DeliveredAt     int64  `json:"deliveredAt"`
	Sessions        int    `json:"sessions"`
}

// ClaimDelivery 登记通知投递，首次登记返回 true，同一ID再次登记返回 false
func (ps *PebbleService) ClaimDelivery(notificationID, recipientUserID string) (bool, error) {
	if notificationID == "" {
		return false, fmt.Errorf("notification id is empty")
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionDeliveredNotifications)
	if err != nil {
		return false, err
	}

	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()

	key := buildKey(notificationID)
	_, closer, err := db.Get(key)
	if err == nil {
		closer.Close()
		return false, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return false, fmt.Errorf("read delivery record: %w", err)
	}

	data, err := json.Marshal(&DeliveryRecord{
		NotificationID:  notificationID,
		RecipientUserID: recipientUserID,
		DeliveredAt:     time.Now().UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal delivery record: %w", err)
	}
	if err := db.Set(key, data, pebble.Sync); err != nil {
		return false, fmt.Errorf("save delivery record: %w", err)
	}
	return true, nil
}

// SetDeliveredSessions 记录收到推送的在线会话数
func (ps *PebbleService) SetDeliveredSessions(notificationID string, sessions int) error {
	rec, err := ps.GetDelivery(notificationID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no delivery record for %s", notificationID)
	}
	rec.Sessions = sessions

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	db, err := ps.getCollectionDB(CollectionDeliveredNotifications)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return db.Set(buildKey(notificationID), data, pebble.Sync)
}

// GetDelivery 获取投递记录，未登记时返回 nil
func (ps *PebbleService) GetDelivery(notificationID string) (*DeliveryRecord, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionDeliveredNotifications)
	if err != nil {
		return nil, err
	}
	value, closer, err := db.Get(buildKey(notificationID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read delivery record: %w", err)
	}
	defer closer.Close()

	var rec DeliveryRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("decode delivery record: %w", err)
	}
	return &rec, nil
}

// ReleaseDelivery 删除投递登记，使通知可以再次投递
func (ps *PebbleService) ReleaseDelivery(notificationID string) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionDeliveredNotifications)
	if err != nil {
		return err
	}
	if err := db.Delete(buildKey(notificationID), pebble.Sync); err != nil {
		return fmt.Errorf("delete delivery record: %w", err)
	}
	return nil
}
