package service

import (
	"errors"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInvalidAccessCode    = errors.New("invalid access code")
	ErrForbidden            = errors.New("you are not allowed to perform this action")
	ErrNoActiveMeeting      = errors.New("no meeting is active in this room")
	ErrRoomFull             = errors.New("the room has reached its participant limit")
	ErrChatDisabled         = errors.New("chat is disabled in this room")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConcurrentUpdate     = errors.New("the room was modified concurrently, please retry")
	ErrInternalServer       = errors.New("internal server error")
)

// mapRepoError 将仓库层错误映射为服务层错误，notFound 指定记录不存在时返回的错误。
func mapRepoError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrStaleVersion):
		return ErrConcurrentUpdate
	default:
		return ErrInternalServer
	}
}

// mapTransitionError 将会议状态机的错误映射为服务层错误
func mapTransitionError(err error) error {
	switch {
	case errors.Is(err, domain.ErrMeetingNotActive):
		return ErrNoActiveMeeting
	case errors.Is(err, domain.ErrRoomFull):
		return ErrRoomFull
	default:
		return err
	}
}
