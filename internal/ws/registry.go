package ws

import (
	"errors"
	"sort"
	"sync"
)

var ErrDuplicateConnection = errors.New("connection already registered")

type entry struct {
	client *Client
	rooms  map[string]struct{}
}

// Registry 是在线连接的权威列表：连接 ID -> 用户 ID 与其所在房间。
// 它从不直接操作 Index，两侧由 Hub 统一协调。
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*entry)}
}

func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[c.id]; exists {
		return ErrDuplicateConnection
	}
	r.conns[c.id] = &entry{client: c, rooms: make(map[string]struct{})}
	return nil
}

func (r *Registry) Lookup(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return e.client.userID, true
}

func (r *Registry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Unregister 删除连接并返回它最后所在的房间（已排序）。重复调用是无操作。
func (r *Registry) Unregister(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	rooms := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Rooms 返回连接当前所在的房间（已排序）；连接不存在时返回 nil。
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// addRoom 返回 (是否新增, 连接是否存在)。
func (r *Registry) addRoom(connID, roomID string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return false, false
	}
	if _, in := e.rooms[roomID]; in {
		return false, true
	}
	e.rooms[roomID] = struct{}{}
	return true, true
}

// removeRoom 返回 (是否删除, 连接是否存在)。
func (r *Registry) removeRoom(connID, roomID string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return false, false
	}
	if _, in := e.rooms[roomID]; !in {
		return false, true
	}
	delete(e.rooms, roomID)
	return true, true
}
