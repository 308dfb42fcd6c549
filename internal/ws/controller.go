package ws

import (
	"context"
	"errors"
	"strings"

	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/metrics"
	"github.com/Arvi7048/Alumni-Sphere-Backend/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var (
	ErrNotParticipant   = errors.New("not a participant of conversation")
	ErrInvalidRequest   = errors.New("invalid room request")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

var validate = validator.New()

// Controller 处理客户端发起的会话房间 join/leave。
// join 之前必须经由外部存储确认参与者身份；校验期间不持有 Hub 的任何锁。
type Controller struct {
	hub     *Hub
	checker store.ParticipantChecker
}

func NewController(hub *Hub, checker store.ParticipantChecker) *Controller {
	return &Controller{hub: hub, checker: checker}
}

// Handle 解析一帧上行消息并执行。请求是 fire-and-forget 的：
// 格式错误、未知类型与授权失败都只记录日志，不回错误给客户端。
func (ctl *Controller) Handle(ctx context.Context, c *Client, frame []byte) {
	if !gjson.ValidBytes(frame) {
		log.Debug().Str("conn_id", c.id).Msg("ws malformed frame")
		return
	}
	typ := gjson.GetBytes(frame, "type").String()
	var err error
	switch typ {
	case TypeJoinConversation:
		err = ctl.JoinConversation(ctx, c, conversationID(frame))
	case TypeLeaveConversation:
		err = ctl.LeaveConversation(c, conversationID(frame))
	case TypePing:
		c.emit("", EventPong, nil)
	default:
		err = ErrUnknownFrameType
	}
	if err != nil {
		log.Debug().Err(err).Str("conn_id", c.id).Str("user_id", c.userID).Str("type", typ).Msg("ws request dropped")
	}
}

// conversationID 同时接受顶层字段与 {"data": {...}} 包裹的写法。
func conversationID(frame []byte) string {
	if r := gjson.GetBytes(frame, "conversation_id"); r.Exists() {
		return r.String()
	}
	return gjson.GetBytes(frame, "data.conversation_id").String()
}

func validConversationID(id string) bool {
	return validate.Var(id, "required,max=128,printascii") == nil && !strings.ContainsRune(id, ' ')
}

// JoinConversation 在确认参与者身份后把连接加入会话房间。
// 连接在校验期间断开时返回 ErrConnectionGone，成员关系不会被改动。
func (ctl *Controller) JoinConversation(ctx context.Context, c *Client, conversationID string) error {
	if !validConversationID(conversationID) {
		return ErrInvalidRequest
	}
	if !c.Authenticated() {
		return ErrConnectionGone
	}
	ok, err := ctl.checker.IsParticipant(ctx, c.userID, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			metrics.WsJoinDenied.Inc()
			return ErrNotParticipant
		}
		log.Warn().Err(err).Str("conn_id", c.id).Str("conversation_id", conversationID).Msg("participant check")
		return err
	}
	if !ok {
		metrics.WsJoinDenied.Inc()
		return ErrNotParticipant
	}
	// 校验期间连接可能已断开；Hub.Join 仍会在锁内做最终判断。
	if c.Terminated() {
		return ErrConnectionGone
	}
	room := ConversationRoom(conversationID)
	changed, err := ctl.hub.Join(c.id, room)
	if err != nil {
		return err
	}
	if changed {
		c.emit(room, EventRoomJoined, map[string]string{"room": room})
	}
	return nil
}

// LeaveConversation 无条件离开；不在房间内时是无操作。
func (ctl *Controller) LeaveConversation(c *Client, conversationID string) error {
	if !validConversationID(conversationID) {
		return ErrInvalidRequest
	}
	room := ConversationRoom(conversationID)
	changed, err := ctl.hub.Leave(c.id, room)
	if err != nil {
		return err
	}
	if changed {
		c.emit(room, EventRoomLeft, map[string]string{"room": room})
	}
	return nil
}
