package service

import (
	"context"
	"errors"
	"time"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/models"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/ws"
	"gorm.io/gorm"
)

type NotificationService struct {
	db         *gorm.DB
	dispatcher ws.Dispatcher
}

func NewNotificationService(db *gorm.DB, dispatcher ws.Dispatcher) *NotificationService {
	return &NotificationService{db: db, dispatcher: dispatcher}
}

type NotificationDTO struct {
	ID        uint       `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Create 先落库再推送到 "user:<id>"，用户的所有在线设备都会收到；离线时只保留记录。
func (s *NotificationService) Create(ctx context.Context, userID, kind, body string) (*NotificationDTO, error) {
	db := s.db.WithContext(ctx)
	if err := db.Select("id").First(&models.User{}, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownParticipant
		}
		return nil, err
	}
	n := models.Notification{UserID: userID, Kind: kind, Body: body}
	if err := db.Create(&n).Error; err != nil {
		return nil, err
	}
	dto := toNotificationDTO(n)
	s.dispatcher.Dispatch(ws.UserRoom(userID), ws.EventNotification, dto)
	return &dto, nil
}

// List 返回用户最近的通知，unreadOnly 时只返回未读。
func (s *NotificationService) List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]NotificationDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var rows []models.Notification
	if err := q.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]NotificationDTO, 0, len(rows))
	for _, n := range rows {
		out = append(out, toNotificationDTO(n))
	}
	return out, nil
}

// MarkRead 标记通知为已读，只能操作自己的通知；返回受影响的条数。
func (s *NotificationService) MarkRead(ctx context.Context, userID string, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND id IN ? AND read_at IS NULL", userID, ids).
		Update("read_at", &now)
	return res.RowsAffected, res.Error
}

func toNotificationDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{ID: n.ID, UserID: n.UserID, Kind: n.Kind, Body: n.Body, ReadAt: n.ReadAt, CreatedAt: n.CreatedAt}
}
