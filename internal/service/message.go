package service

import (
	"context"
	"time"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/metrics"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/models"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/ws"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MessageService 持久化会话消息，并把新消息推送给会话房间内的在线连接。
type MessageService struct {
	db            *gorm.DB
	conversations *ConversationService
	dispatcher    ws.Dispatcher
}

func NewMessageService(db *gorm.DB, conversations *ConversationService, dispatcher ws.Dispatcher) *MessageService {
	return &MessageService{db: db, conversations: conversations, dispatcher: dispatcher}
}

// MessageDTO 同时作为 REST 响应与 "chat.message" 事件负载。
type MessageDTO struct {
	ID             uint      `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Send 校验发送者身份后写库，再投递实时事件。投递是尽力而为的，离线成员通过历史接口补收。
func (s *MessageService) Send(ctx context.Context, userID, conversationID, content string) (*MessageDTO, error) {
	if err := s.conversations.Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msg := models.Message{ConversationID: conversationID, UserID: userID, Content: content}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	usernames, err := s.resolveUsernames(ctx, []models.Message{msg})
	if err != nil {
		return nil, err
	}
	dto := toMessageDTO(msg, usernames)

	metrics.WsMessagesTotal.Inc()
	n := s.dispatcher.Dispatch(ws.ConversationRoom(conversationID), ws.EventChatMessage, dto)
	log.Debug().Str("conversation_id", conversationID).Uint("message_id", msg.ID).Int("delivered", n).Msg("message dispatched")
	return &dto, nil
}

// ListByConversation 分页查询会话消息，按 id 升序返回。
func (s *MessageService) ListByConversation(ctx context.Context, userID, conversationID string, limit int, beforeID uint) ([]MessageDTO, error) {
	if err := s.conversations.Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	usernames, err := s.resolveUsernames(ctx, msgs)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m, usernames))
	}
	return out, nil
}

func toMessageDTO(m models.Message, usernames map[string]string) MessageDTO {
	return MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Username:       usernames[m.UserID],
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

// resolveUsernames 批量获取消息涉及的用户名。
func (s *MessageService) resolveUsernames(ctx context.Context, msgs []models.Message) (map[string]string, error) {
	seen := make(map[string]struct{}, len(msgs))
	userIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		userIDs = append(userIDs, m.UserID)
	}

	usernames := make(map[string]string, len(userIDs))
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.WithContext(ctx).Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}
	return usernames, nil
}
