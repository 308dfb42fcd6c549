package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/auth"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/service"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	users         *service.UserService
	conversations *service.ConversationService
	messages      *service.MessageService
	notifications *service.NotificationService
	hub           *ws.Hub
}

func NewHandler(users *service.UserService, conversations *service.ConversationService, messages *service.MessageService, notifications *service.NotificationService, hub *ws.Hub) *Handler {
	return &Handler{users: users, conversations: conversations, messages: messages, notifications: notifications, hub: hub}
}

type credentials struct {
	Username string `json:"username" binding:"required,min=2,max=64"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

func bindCredentials(c *gin.Context) (credentials, bool) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return req, false
	}
	return req, true
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	result, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	result, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          gin.H{"id": result.User.ID, "username": result.User.Username},
	})
}

// RefreshToken 旋转刷新 token 对。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	pair, err := h.users.RefreshTokens(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			log.Error().Err(err).Msg("refresh token")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req struct {
		ParticipantIDs []string `json:"participant_ids" binding:"max=256,dive,required,max=36"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	userID := auth.GetUserID(c)
	conv, err := h.conversations.Create(c.Request.Context(), userID, req.ParticipantIDs)
	if err != nil {
		if errors.Is(err, service.ErrUnknownParticipant) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown participant"})
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("create conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) ListConversations(c *gin.Context) {
	userID := auth.GetUserID(c)
	convs, err := h.conversations.ListForUser(c.Request.Context(), userID, queryInt(c, "limit", 100))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// SendMessage 写入消息并推送给会话房间；非参与者得到 403。
func (h *Handler) SendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required,max=4000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	userID := auth.GetUserID(c)
	msg, err := h.messages.Send(c.Request.Context(), userID, c.Param("id"), req.Content)
	if err != nil {
		h.conversationError(c, err, "send message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ListMessages 分页查询会话历史。
func (h *Handler) ListMessages(c *gin.Context) {
	var beforeID uint
	if bid := c.Query("before_id"); bid != "" {
		v, err := strconv.ParseUint(bid, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id"})
			return
		}
		beforeID = uint(v)
	}
	msgs, err := h.messages.ListByConversation(c.Request.Context(), auth.GetUserID(c), c.Param("id"), queryInt(c, "limit", 50), beforeID)
	if err != nil {
		h.conversationError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) conversationError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	default:
		log.Error().Err(err).Str("conversation_id", c.Param("id")).Msg(op)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// CreateNotification 为当前用户写入通知并推送到其个人房间。
// user_id 可省略；指向他人时返回 403，个人房间只接受本人写入。
func (h *Handler) CreateNotification(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"omitempty,max=36"`
		Kind   string `json:"kind" binding:"required,max=64"`
		Body   string `json:"body" binding:"required,max=4000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	userID := auth.GetUserID(c)
	if req.UserID != "" && req.UserID != userID {
		log.Warn().Str("user_id", userID).Str("target", req.UserID).Msg("notification for another user rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	n, err := h.notifications.Create(c.Request.Context(), userID, req.Kind, req.Body)
	if err != nil {
		if errors.Is(err, service.ErrUnknownParticipant) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("create notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	userID := auth.GetUserID(c)
	out, err := h.notifications.List(c.Request.Context(), userID, queryInt(c, "limit", 50), c.Query("unread") == "true")
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("list notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

func (h *Handler) MarkNotificationsRead(c *gin.Context) {
	var req struct {
		IDs []uint `json:"ids" binding:"required,min=1,max=200"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	userID := auth.GetUserID(c)
	n, err := h.notifications.MarkRead(c.Request.Context(), userID, req.IDs)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("mark notifications read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Presence 查询用户是否至少有一个在线连接。
func (h *Handler) Presence(c *gin.Context) {
	userID := c.Param("user_id")
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "online": h.hub.UserOnline(userID)})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
