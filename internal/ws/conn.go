package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxMessageSize  = 64 * 1024
)

// 连接状态机：unauthenticated -> authenticated -> terminated，只能前进。
const (
	stateUnauthenticated int32 = iota
	stateAuthenticated
	stateTerminated
)

type enqueueResult int

const (
	enqueued enqueueResult = iota
	queueFull
	queueClosed
)

// ClientOptions 控制单个连接的发送缓冲、上行限速与心跳超时。
type ClientOptions struct {
	SendBuffer        int
	MessagesPerSecond int
	PongWait          time.Duration
}

// Client 是一条已通过身份校验的 WebSocket 连接。userID 在创建时确定，之后不可变。
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn

	limiter  *rate.Limiter
	pongWait time.Duration
	state    atomic.Int32

	// ctx 在连接终止时取消，进行中的成员校验随之放弃。
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex // 保护 send 的关闭
	send   chan []byte
	closed bool
}

func NewClient(userID string, conn *websocket.Conn, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:       uuid.NewString(),
		userID:   userID,
		conn:     conn,
		pongWait: opts.PongWait,
		ctx:      ctx,
		cancel:   cancel,
		send:     make(chan []byte, opts.SendBuffer),
	}
	if opts.MessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.MessagesPerSecond)
	}
	return c
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

func (c *Client) Authenticated() bool { return c.state.Load() == stateAuthenticated }

func (c *Client) Terminated() bool { return c.state.Load() == stateTerminated }

// enqueue 非阻塞地把帧放入发送队列。
func (c *Client) enqueue(b []byte) enqueueResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.Load() == stateTerminated {
		return queueClosed
	}
	select {
	case c.send <- b:
		return enqueued
	default:
		return queueFull
	}
}

func (c *Client) emit(roomID, kind string, payload interface{}) bool {
	b, err := encodeEvent(roomID, kind, payload)
	if err != nil {
		return false
	}
	return c.enqueue(b) == enqueued
}

// shutdown 只执行一次：取消上下文并关闭发送队列，writePump 随后发送 close 帧。
func (c *Client) shutdown() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Client) readPump(ctl *Controller) {
	defer func() {
		c.hub.Disconnect(c.id)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("ws read")
			}
			return
		}
		if !c.allow() {
			log.Debug().Str("conn_id", c.id).Msg("ws inbound rate limited")
			continue
		}
		ctl.Handle(c.ctx, c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				// 写失败同样触发断开，读协程随后会收到错误并重复调用 Disconnect（幂等）。
				c.hub.Disconnect(c.id)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Disconnect(c.id)
				return
			}
		}
	}
}
