package service

import (
	"context"
	"errors"
	"time"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/auth"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/config"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserService 负责账号注册与令牌签发。实时连接使用同一把密钥校验访问令牌。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

type RegisterResult struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Register 创建用户，用户 ID 为 UUID，同时作为个人房间 "user:<ID>" 的键。
func (s *UserService) Register(ctx context.Context, username, password string) (*RegisterResult, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{ID: uuid.NewString(), Username: username, PasswordHash: hash}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &RegisterResult{ID: user.ID, Username: user.Username}, nil
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type LoginResult struct {
	TokenPair
	User models.User `json:"-"`
}

// Login 校验用户名密码并签发 token 对。
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	pair, err := s.issue(s.db.WithContext(ctx), user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{TokenPair: *pair, User: user}, nil
}

// RefreshTokens 旋转刷新：旧 refresh token 作废，签发新的一对。
func (s *UserService) RefreshTokens(ctx context.Context, oldRT string) (*TokenPair, error) {
	var pair *TokenPair
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := auth.ValidateRefreshToken(tx, oldRT)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		if err := auth.RevokeRefreshToken(tx, oldRT); err != nil {
			return err
		}
		pair, err = s.issue(tx, rec.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *UserService) issue(db *gorm.DB, userID string) (*TokenPair, error) {
	at, err := auth.GenerateAccessToken(userID, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return nil, err
	}
	rt, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := auth.SaveRefreshToken(db, userID, rt, time.Now().Add(s.cfg.RefreshTokenTTL())); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: at, RefreshToken: rt}, nil
}
