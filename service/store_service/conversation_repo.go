package store_service

import (
	"context"
	"fmt"

	"live-notify-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.db.WithContext(ctx).First(&c, "conversation_id = ?", conversationID).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetOrCreate 获取会话，首次联系时创建，发送者的角色决定其在预约中的身份
func (r *ConversationRepository) GetOrCreate(ctx context.Context, conversationID, senderID, receiverID, senderRole string) (*models.Conversation, error) {
	if conversationID == "" || senderID == "" {
		return nil, fmt.Errorf("%w: conversation and sender are required", ErrInvalidInput)
	}
	c := &models.Conversation{ConversationID: conversationID}
	if senderRole == models.RoleProvider {
		c.ProviderID, c.CustomerID = senderID, receiverID
	} else {
		c.CustomerID, c.ProviderID = senderID, receiverID
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "conversation_id"}}, DoNothing: true}).
		Create(c).Error
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return r.Get(ctx, conversationID)
}
