package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrAuthentication 包装所有握手阶段的身份失败，调用方据此拒绝连接。
	ErrAuthentication = errors.New("authentication failed")
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrUnknownUser    = errors.New("unknown user")
)

// UserLookup 确认令牌主体仍然存在。
type UserLookup interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Verifier 把握手令牌解析为稳定的用户 ID。每个连接只在建立时校验一次。
type Verifier struct {
	secret string
	users  UserLookup
}

func NewVerifier(secret string, users UserLookup) *Verifier {
	return &Verifier{secret: secret, users: users}
}

func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, ErrMissingToken)
	}
	claims, err := ParseAccessToken(token, v.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", ErrAuthentication, ErrInvalidToken, err)
	}
	if v.users == nil {
		return claims.UserID, nil
	}
	ok, err := v.users.UserExists(ctx, claims.UserID)
	if err != nil {
		return "", fmt.Errorf("%w: lookup user: %v", ErrAuthentication, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, ErrUnknownUser)
	}
	return claims.UserID, nil
}

// GormUsers 基于 users 表实现 UserLookup。
type GormUsers struct {
	db *gorm.DB
}

func NewGormUsers(db *gorm.DB) *GormUsers { return &GormUsers{db: db} }

func (u *GormUsers) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := u.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
