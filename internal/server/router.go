package server

import (
	"net/http"
	"time"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/auth"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/config"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/metrics"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/mw"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/service"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/store"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Server 持有路由与需要在停服时释放的后台资源。
type Server struct {
	Engine  *gin.Engine
	limiter *mw.Limiter
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// Close 停止限速器的回收协程；Hub 由调用方关闭。
func (s *Server) Close() {
	s.limiter.Stop()
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// REST 与 WebSocket 共用同一个 Verifier 和同一套来源策略。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub) *Server {
	verifier := auth.NewVerifier(cfg.JWTSecret, auth.NewGormUsers(db))
	checker := store.NewBreakerChecker(store.NewGormParticipants(db), store.BreakerSettings{
		Failures: uint32(cfg.StoreBreakerFailures),
		Timeout:  cfg.StoreBreakerTimeout(),
	})
	origins := mw.NewOriginPolicy(cfg.Env, cfg.WSAllowedOrigins)

	conversations := service.NewConversationService(db, checker)
	h := NewHandler(
		service.NewUserService(db, cfg),
		conversations,
		service.NewMessageService(db, conversations, hub),
		service.NewNotificationService(db, hub),
		hub,
	)

	limiter := mw.NewLimiter(rate.Every(time.Second/20), 40, 2*time.Minute)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(origins))
	r.Use(limiter.Middleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Connections(), "participants_store": checker.State().String()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(verifier))
	authed.POST("/conversations", h.CreateConversation)
	authed.GET("/conversations", h.ListConversations)
	authed.POST("/conversations/:id/messages", h.SendMessage)
	authed.GET("/conversations/:id/messages", h.ListMessages)
	authed.POST("/notifications", h.CreateNotification)
	authed.GET("/notifications", h.ListNotifications)
	authed.PATCH("/notifications/read", h.MarkNotificationsRead)
	authed.GET("/presence/:user_id", h.Presence)

	r.GET("/ws", ws.Serve(hub, verifier, ws.NewController(hub, checker), ws.ServeOptions{
		Client: ws.ClientOptions{
			SendBuffer:        cfg.WSSendBuffer,
			MessagesPerSecond: cfg.WSMessagesPerSecond,
			PongWait:          cfg.PongWait(),
		},
		CheckOrigin: origins.Allowed,
	}))

	return &Server{Engine: r, limiter: limiter}
}
