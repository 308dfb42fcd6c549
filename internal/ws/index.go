package ws

import "sync"

// Index 维护 房间 -> 连接集合 的映射。成员集合为空时房间条目立即删除。
type Index struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewIndex() *Index {
	return &Index{rooms: make(map[string]map[string]struct{})}
}

// Join 幂等；返回成员关系是否发生了变化。
func (ix *Index) Join(roomID, connID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	members := ix.rooms[roomID]
	if members == nil {
		members = make(map[string]struct{})
		ix.rooms[roomID] = members
	}
	if _, ok := members[connID]; ok {
		return false
	}
	members[connID] = struct{}{}
	return true
}

// Leave 幂等；最后一个成员离开时删除房间。
func (ix *Index) Leave(roomID, connID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	members, ok := ix.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(ix.rooms, roomID)
	}
	return true
}

// MembersOf 返回成员快照，调用方可以在不持锁的情况下遍历。
func (ix *Index) MembersOf(roomID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	members := ix.rooms[roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (ix *Index) Has(roomID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.rooms[roomID]
	return ok
}

func (ix *Index) IsMember(roomID, connID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.rooms[roomID][connID]
	return ok
}

// Len 返回非空房间数量。
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.rooms)
}
