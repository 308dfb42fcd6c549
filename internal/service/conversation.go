package service

import (
	"context"
	"errors"
	"time"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/models"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationService 维护会话及其参与者，是实时层成员校验的数据来源。
type ConversationService struct {
	db      *gorm.DB
	checker store.ParticipantChecker
}

func NewConversationService(db *gorm.DB, checker store.ParticipantChecker) *ConversationService {
	return &ConversationService{db: db, checker: checker}
}

type ConversationDTO struct {
	ID           string    `json:"id"`
	CreatorID    string    `json:"creator_id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// Create 创建会话；创建者总是参与者，重复的参与者 ID 会被合并。
func (s *ConversationService) Create(ctx context.Context, creatorID string, participantIDs []string) (*ConversationDTO, error) {
	members := uniqueIDs(append([]string{creatorID}, participantIDs...))
	conv := models.Conversation{ID: uuid.NewString(), CreatorID: creatorID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id IN ?", members).Count(&count).Error; err != nil {
			return err
		}
		if int(count) != len(members) {
			return ErrUnknownParticipant
		}
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		rows := make([]models.Participant, 0, len(members))
		for _, uid := range members {
			rows = append(rows, models.Participant{ConversationID: conv.ID, UserID: uid})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return &ConversationDTO{ID: conv.ID, CreatorID: creatorID, Participants: members, CreatedAt: conv.CreatedAt}, nil
}

// ListForUser 返回用户参与的会话，按创建时间倒序。
func (s *ConversationService) ListForUser(ctx context.Context, userID string, limit int) ([]ConversationDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	db := s.db.WithContext(ctx)
	var convs []models.Conversation
	err := db.Where("id IN (?)", db.Model(&models.Participant{}).Select("conversation_id").Where("user_id = ?", userID)).
		Order("created_at desc").Limit(limit).Find(&convs).Error
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return []ConversationDTO{}, nil
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	var parts []models.Participant
	if err := db.Where("conversation_id IN ?", ids).Order("created_at asc").Find(&parts).Error; err != nil {
		return nil, err
	}
	byConv := make(map[string][]string, len(convs))
	for _, p := range parts {
		byConv[p.ConversationID] = append(byConv[p.ConversationID], p.UserID)
	}

	out := make([]ConversationDTO, 0, len(convs))
	for _, c := range convs {
		out = append(out, ConversationDTO{ID: c.ID, CreatorID: c.CreatorID, Participants: byConv[c.ID], CreatedAt: c.CreatedAt})
	}
	return out, nil
}

// Authorize 确认用户是会话参与者，REST 写入与历史查询共用。
func (s *ConversationService) Authorize(ctx context.Context, userID, conversationID string) error {
	ok, err := s.checker.IsParticipant(ctx, userID, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
