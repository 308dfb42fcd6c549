package models

import "time"

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Conversation 是一组参与者之间的会话，实时房间键为 "conversation:<ID>"。
type Conversation struct {
	ID        string `gorm:"primaryKey;size:36"`
	CreatorID string `gorm:"size:36;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Participant struct {
	ConversationID string `gorm:"primaryKey;size:36"`
	UserID         string `gorm:"primaryKey;size:36;index"`
	CreatedAt      time.Time
}

type Message struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"index:idx_msg_conversation_id;size:36;not null"`
	UserID         string `gorm:"index;size:36;not null"`
	Content        string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

// Notification 是离线用户补收通知的持久记录，实时推送只是附带行为。
type Notification struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;size:36;not null"`
	Kind      string `gorm:"size:64;not null"`
	Body      string `gorm:"type:text;not null"`
	ReadAt    *time.Time
	CreatedAt time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"index;size:36;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
