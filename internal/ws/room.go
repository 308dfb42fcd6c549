package ws

// 房间键的两个保留命名空间。索引本身只做字符串精确匹配，不解析前缀。
const (
	UserRoomPrefix         = "user:"
	ConversationRoomPrefix = "conversation:"
)

// UserRoom 返回用户的个人房间，用户的每个设备/标签页都会自动加入。
func UserRoom(userID string) string { return UserRoomPrefix + userID }

func ConversationRoom(conversationID string) string { return ConversationRoomPrefix + conversationID }
