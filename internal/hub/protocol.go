package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"team-meetings/internal/domain"

	"github.com/go-playground/validator/v10"
)

// 客户端发送的事件
const (
	EventJoinMeeting      = "join-meeting"
	EventSendMessage      = "send-message"
	EventWebRTCOffer      = "webrtc-offer"
	EventWebRTCAnswer     = "webrtc-answer"
	EventICECandidate     = "webrtc-ice-candidate"
	EventUpdateMediaState = "update-media-state"
	EventLeaveMeeting     = "leave-meeting"
)

// 中继发送的事件
const (
	EventCurrentParticipants = "current-participants"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventNewMessage          = "new-message"
	EventUserMediaUpdated    = "user-media-updated"
	EventError               = "error"
)

const maxChatLength = 2000

var validate = validator.New()

// Frame 是所有中继消息的外层结构。
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RoomKey 是中继房间标识，必须是会议房间的十进制 ID，字符串 "12" 和数字 12 等价。
// 在线状态按房间 ID 记录，清理任务也按房间 ID 查询，所以其他写法（如 "meeting-12"、"012"）一律拒绝。
type RoomKey string

func (k *RoomKey) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
	} else {
		var n uint64
		if err := json.Unmarshal(b, &n); err != nil {
			return domain.ErrInvalidRelayKey
		}
		raw = strconv.FormatUint(n, 10)
	}
	id, err := domain.ParseRelayKey(raw)
	if err != nil {
		return err
	}
	*k = RoomKey(domain.RelayKey(id))
	return nil
}

// inbound 是客户端消息的封闭集合，每种事件对应一个类型。
type inbound interface {
	room() string
}

type joinMeeting struct {
	Room RoomKey `json:"room" validate:"required"`
}

type sendMessage struct {
	Room    RoomKey `json:"room" validate:"required"`
	Message string  `json:"message" validate:"required"`
}

// signal 是 offer/answer/ice-candidate 共用的点对点信令，payload 不做解析。
type signal struct {
	event        string
	Room         RoomKey `validate:"required"`
	TargetUserID uint    `validate:"required"`
	Payload      json.RawMessage
}

type mediaState struct {
	Room   RoomKey `json:"room" validate:"required"`
	Mic    *bool   `json:"mic" validate:"required"`
	Camera *bool   `json:"camera" validate:"required"`
}

type leaveMeeting struct {
	Room RoomKey `json:"room" validate:"required"`
}

func (m joinMeeting) room() string  { return string(m.Room) }
func (m sendMessage) room() string  { return string(m.Room) }
func (m signal) room() string       { return string(m.Room) }
func (m mediaState) room() string   { return string(m.Room) }
func (m leaveMeeting) room() string { return string(m.Room) }

// signalPayloadField 是每种信令事件携带 payload 的字段名
var signalPayloadField = map[string]string{
	EventWebRTCOffer:  "offer",
	EventWebRTCAnswer: "answer",
	EventICECandidate: "candidate",
}

var errUnknownEvent = errors.New("unknown event")

// parseFrame 解析并校验一条客户端消息。
func parseFrame(raw []byte) (string, inbound, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", nil, fmt.Errorf("malformed frame: %w", err)
	}
	if len(f.Data) == 0 {
		f.Data = json.RawMessage("{}")
	}

	var (
		msg inbound
		err error
	)
	switch f.Event {
	case EventJoinMeeting:
		var m joinMeeting
		err = json.Unmarshal(f.Data, &m)
		msg = m
	case EventSendMessage:
		var m sendMessage
		err = json.Unmarshal(f.Data, &m)
		m.Message = strings.TrimSpace(m.Message)
		if len([]rune(m.Message)) > maxChatLength {
			return f.Event, nil, fmt.Errorf("message exceeds %d characters", maxChatLength)
		}
		msg = m
	case EventWebRTCOffer, EventWebRTCAnswer, EventICECandidate:
		msg, err = parseSignal(f.Event, f.Data)
	case EventUpdateMediaState:
		var m mediaState
		err = json.Unmarshal(f.Data, &m)
		msg = m
	case EventLeaveMeeting:
		var m leaveMeeting
		err = json.Unmarshal(f.Data, &m)
		msg = m
	default:
		return f.Event, nil, fmt.Errorf("%w %q", errUnknownEvent, f.Event)
	}
	if err != nil {
		return f.Event, nil, fmt.Errorf("invalid %s payload: %w", f.Event, err)
	}
	if err := validate.Struct(msg); err != nil {
		return f.Event, nil, fmt.Errorf("invalid %s payload: %w", f.Event, err)
	}
	return f.Event, msg, nil
}

func parseSignal(event string, data json.RawMessage) (inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	s := signal{event: event, Payload: fields[signalPayloadField[event]]}
	if raw, ok := fields["room"]; ok {
		if err := json.Unmarshal(raw, &s.Room); err != nil {
			return nil, err
		}
	}
	if raw, ok := fields["targetUserId"]; ok {
		if err := json.Unmarshal(raw, &s.TargetUserID); err != nil {
			return nil, fmt.Errorf("targetUserId: %w", err)
		}
	}
	if len(s.Payload) == 0 || string(s.Payload) == "null" {
		return nil, fmt.Errorf("missing %s", signalPayloadField[event])
	}
	return s, nil
}

// --- 出站消息 ---

type currentParticipants struct {
	ParticipantIDs []uint `json:"participantIds"`
}

type userJoined struct {
	UserID   uint               `json:"userId"`
	UserInfo domain.UserProfile `json:"userInfo"`
}

type userLeft struct {
	UserID uint `json:"userId"`
}

type newMessage struct {
	ID        string             `json:"id"`
	Sender    domain.UserProfile `json:"sender"`
	Content   string             `json:"content"`
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
}

type userMediaUpdated struct {
	UserID uint `json:"userId"`
	Mic    bool `json:"mic"`
	Camera bool `json:"camera"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// encodeFrame 序列化一条出站消息
func encodeFrame(event string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: payload})
}

// encodeSignal 构造转发给目标用户的信令，附加发送者信息
func encodeSignal(s signal, from domain.UserProfile) ([]byte, error) {
	body := map[string]interface{}{
		"room":         s.room(),
		"targetUserId": s.TargetUserID,
		"fromUserId":   from.ID,
		"fromUserInfo": from,
	}
	body[signalPayloadField[s.event]] = s.Payload
	return encodeFrame(s.event, body)
}
