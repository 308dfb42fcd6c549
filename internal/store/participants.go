// Package store 提供实时层需要的唯一外部查询：用户是否为某会话的参与者。
package store

import (
	"context"
	"errors"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/models"
	"gorm.io/gorm"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ParticipantChecker 回答 "用户 U 是否为会话 C 的参与者"。
// 会话不存在时返回 ErrConversationNotFound。
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, userID, conversationID string) (bool, error)
}

type GormParticipants struct {
	db *gorm.DB
}

func NewGormParticipants(db *gorm.DB) *GormParticipants {
	return &GormParticipants{db: db}
}

func (p *GormParticipants) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	tx := p.db.WithContext(ctx)
	var conv models.Conversation
	if err := tx.Select("id").First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrConversationNotFound
		}
		return false, err
	}
	var count int64
	err := tx.Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
