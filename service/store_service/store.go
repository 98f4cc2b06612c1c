// Package store_service 会话、消息和通知的 gorm 数据仓库
package store_service

import (
	"errors"

	"live-notify-service/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = models.ErrInvalidInput
	// ErrNotParticipant 用户访问了不属于自己的预约会话
	ErrNotParticipant = errors.New("not a participant of this conversation")
)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
