package domain

import "errors"

// 会议状态机的转换错误
var (
	ErrMeetingAlreadyActive = errors.New("a meeting is already active in this room")
	ErrMeetingNotActive     = errors.New("no meeting is active in this room")
	ErrRoomFull             = errors.New("the room has reached its participant limit")
)
