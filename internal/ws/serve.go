package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/auth"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Authenticator 把握手令牌解析为用户 ID，失败时连接不会被建立。
type Authenticator interface {
	Verify(ctx context.Context, token string) (string, error)
}

type ServeOptions struct {
	Client      ClientOptions
	CheckOrigin func(r *http.Request) bool
}

// Serve 在升级协议之前完成身份校验：未通过的请求直接得到 401，
// 不会产生 Registry 条目，也不会加入任何个人房间。
func Serve(h *Hub, authn Authenticator, ctl *Controller, opts ServeOptions) gin.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: opts.CheckOrigin}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return func(c *gin.Context) {
		userID, err := authn.Verify(c.Request.Context(), auth.HandshakeToken(c.Request))
		if err != nil {
			metrics.WsAuthFailures.Inc()
			log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("ws handshake rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := NewClient(userID, conn, opts.Client)
		if err := h.Admit(client); err != nil {
			log.Info().Err(err).Str("user_id", userID).Msg("ws connection not admitted")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(ctl)
	}
}
