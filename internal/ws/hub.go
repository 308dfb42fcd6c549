package ws

import (
	"errors"
	"sync"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	// ErrConnectionGone 表示连接已断开（或从未注册）：断开总是优先于迟到的 join/leave。
	ErrConnectionGone = errors.New("connection is not registered")
	// ErrInvariant 表示 Registry 与 Index 不一致，属于缺陷，相关操作被丢弃。
	ErrInvariant = errors.New("registry and room index disagree")
	// ErrHubClosed 表示 Hub 已停止接纳新连接。
	ErrHubClosed = errors.New("hub is closed")
)

// Dispatcher 是 REST handler 推送实时事件的入口。
type Dispatcher interface {
	Dispatch(roomID, kind string, payload interface{}) int
}

// Hub 协调 Registry 与 Index。mu 保证成员关系的两侧对投递而言是原子更新的：
// 所有修改持写锁，Dispatch 只在读锁下取成员快照，逐个投递时不持任何锁。
// 加锁顺序固定为 Hub -> Registry/Index。
type Hub struct {
	mu       sync.RWMutex
	registry *Registry
	index    *Index
	closed   bool
}

var _ Dispatcher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{registry: NewRegistry(), index: NewIndex()}
}

// Admit 注册已通过身份校验的连接，并加入其个人房间。
func (h *Hub) Admit(c *Client) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if err := h.registry.Register(c); err != nil {
		h.mu.Unlock()
		log.Error().Err(err).Str("conn_id", c.id).Msg("admit connection")
		return err
	}
	c.hub = h
	c.state.Store(stateAuthenticated)
	if _, err := h.joinLocked(c.id, UserRoom(c.userID)); err != nil {
		// 个人房间加入失败说明两侧已不一致，撤销注册，连接不被接纳。
		h.registry.Unregister(c.id)
		c.state.Store(stateTerminated)
		h.mu.Unlock()
		return err
	}
	rooms := h.index.Len()
	h.mu.Unlock()

	metrics.WsConnections.Inc()
	metrics.WsRooms.Set(float64(rooms))
	log.Info().Str("conn_id", c.id).Str("user_id", c.userID).Msg("ws connected")
	return nil
}

// Join 把连接加入房间；返回成员关系是否发生了变化。
func (h *Hub) Join(connID, roomID string) (bool, error) {
	h.mu.Lock()
	changed, err := h.joinLocked(connID, roomID)
	rooms := h.index.Len()
	h.mu.Unlock()
	metrics.WsRooms.Set(float64(rooms))
	return changed, err
}

func (h *Hub) joinLocked(connID, roomID string) (bool, error) {
	added, ok := h.registry.addRoom(connID, roomID)
	if !ok {
		return false, ErrConnectionGone
	}
	joined := h.index.Join(roomID, connID)
	if added != joined {
		// 回滚本次改动，保持调用前的状态，不去猜哪一侧才是对的。
		if added {
			h.registry.removeRoom(connID, roomID)
		}
		if joined {
			h.index.Leave(roomID, connID)
		}
		log.Error().Err(ErrInvariant).Str("conn_id", connID).Str("room", roomID).Msg("join")
		return false, ErrInvariant
	}
	return added, nil
}

// Leave 把连接移出房间；不在房间内时是无操作。
func (h *Hub) Leave(connID, roomID string) (bool, error) {
	h.mu.Lock()
	removed, ok := h.registry.removeRoom(connID, roomID)
	if !ok {
		h.mu.Unlock()
		return false, ErrConnectionGone
	}
	left := h.index.Leave(roomID, connID)
	if removed != left {
		if removed {
			h.registry.addRoom(connID, roomID)
		}
		if left {
			h.index.Join(roomID, connID)
		}
		h.mu.Unlock()
		log.Error().Err(ErrInvariant).Str("conn_id", connID).Str("room", roomID).Msg("leave")
		return false, ErrInvariant
	}
	rooms := h.index.Len()
	h.mu.Unlock()
	metrics.WsRooms.Set(float64(rooms))
	return removed, nil
}

// Disconnect 把连接转入 terminated：注销并释放全部房间，然后关闭发送队列。
// 幂等，传输层重复上报断开时不会出错；返回本次调用是否真正移除了连接。
func (h *Hub) Disconnect(connID string) bool {
	h.mu.Lock()
	c, ok := h.registry.Get(connID)
	if !ok {
		h.mu.Unlock()
		return false
	}
	c.state.Store(stateTerminated)
	for _, roomID := range h.registry.Unregister(connID) {
		if !h.index.Leave(roomID, connID) {
			log.Error().Err(ErrInvariant).Str("conn_id", connID).Str("room", roomID).Msg("disconnect")
		}
	}
	rooms := h.index.Len()
	h.mu.Unlock()

	c.shutdown()
	metrics.WsConnections.Dec()
	metrics.WsRooms.Set(float64(rooms))
	log.Info().Str("conn_id", connID).Str("user_id", c.userID).Msg("ws disconnected")
	return true
}

// Evict 由服务端主动终止连接（慢消费者、停机）。
func (h *Hub) Evict(connID, reason string) {
	if h.Disconnect(connID) {
		metrics.WsEvictions.Inc()
		log.Warn().Str("conn_id", connID).Str("reason", reason).Msg("ws evicted")
	}
}

// Dispatch 把事件投递给房间当前的全部成员，返回成功入队的数量。
// 投递是非阻塞、尽力而为的：单个接收方失败不会影响其它成员，也不会返回给调用方。
// 同一发送方对同一房间的事件按调用顺序进入每个成员的 FIFO 发送队列。
func (h *Hub) Dispatch(roomID, kind string, payload interface{}) int {
	data, err := encodeEvent(roomID, kind, payload)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Str("kind", kind).Msg("encode event")
		return 0
	}
	metrics.WsEventsDispatched.WithLabelValues(kind).Inc()

	recipients := h.snapshot(roomID)
	delivered := 0
	var slow []string
	for _, c := range recipients {
		switch c.enqueue(data) {
		case enqueued:
			delivered++
		case queueFull:
			metrics.WsDeliveriesDropped.Inc()
			slow = append(slow, c.id)
		default:
			metrics.WsDeliveriesDropped.Inc()
		}
	}
	for _, id := range slow {
		h.Evict(id, "send buffer full")
	}
	return delivered
}

func (h *Hub) snapshot(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := h.index.MembersOf(roomID)
	out := make([]*Client, 0, len(ids))
	for _, id := range ids {
		c, ok := h.registry.Get(id)
		if !ok {
			log.Error().Err(ErrInvariant).Str("conn_id", id).Str("room", roomID).Msg("dispatch")
			continue
		}
		out = append(out, c)
	}
	return out
}

// Online 返回房间当前的连接数。
func (h *Hub) Online(roomID string) int {
	return len(h.index.MembersOf(roomID))
}

// UserOnline 判断用户是否至少有一个在线连接。
func (h *Hub) UserOnline(userID string) bool {
	return h.index.Has(UserRoom(userID))
}

func (h *Hub) RoomsOf(connID string) []string {
	return h.registry.Rooms(connID)
}

func (h *Hub) Connections() int {
	return h.registry.Len()
}

func (h *Hub) Rooms() int {
	return h.index.Len()
}

// Close 停止接纳新连接并驱逐所有在线连接，用于优雅停服。可重复调用。
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	for _, id := range h.registry.ids() {
		h.Evict(id, "server shutdown")
	}
}
