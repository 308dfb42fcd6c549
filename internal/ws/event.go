package ws

import "github.com/goccy/go-json"

// 服务端下发的事件类型。
const (
	EventChatMessage  = "chat.message"
	EventNotification = "notification.new"
	EventRoomJoined   = "room.joined"
	EventRoomLeft     = "room.left"
	EventPong         = "pong"
)

// 客户端上行的请求类型。
const (
	TypeJoinConversation  = "join_conversation"
	TypeLeaveConversation = "leave_conversation"
	TypePing              = "ping"
)

// Event 是下发给客户端的帧；Data 对本层而言是不透明的可序列化值。
type Event struct {
	Type string      `json:"type"`
	Room string      `json:"room,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func encodeEvent(roomID, kind string, payload interface{}) ([]byte, error) {
	return json.Marshal(Event{Type: kind, Room: roomID, Data: payload})
}
