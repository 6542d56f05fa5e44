package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docintell/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append assigns the next sequence number in the conversation and stores the
// message together with its sources. The unique (conversation_id, seq) index
// rejects a concurrent writer that picked the same number.
func (r *MessageRepository) Append(ctx context.Context, message *model.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ?", message.ConversationID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		message.Seq = maxSeq + 1
		for i := range message.Sources {
			message.Sources[i].MessageID = message.ID
			message.Sources[i].Position = i
		}
		return tx.Create(message).Error
	})
	if err != nil {
		return fmt.Errorf("append message failed: %w", err)
	}
	return nil
}

// ListRecent returns up to limit of the newest messages in append order.
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var messages []model.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) Last(ctx context.Context, conversationID string) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last message failed: %w", err)
	}
	return &message, nil
}
