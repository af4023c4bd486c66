package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
	MaxMessageLength    = 2000
)

// MessageService 负责房间的持久化聊天。
type MessageService struct {
	roomRepo    repository.RoomRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	now         func() time.Time
}

// NewMessageService 创建 MessageService 实例。
func NewMessageService(roomRepo repository.RoomRepository, messageRepo repository.MessageRepository, userRepo repository.UserRepository) *MessageService {
	if roomRepo == nil || messageRepo == nil || userRepo == nil {
		panic("repositories cannot be nil for MessageService")
	}
	return &MessageService{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		now:         time.Now,
	}
}

// Post 追加一条聊天消息。
func (s *MessageService) Post(ctx context.Context, roomID, userID uint, content string) (*domain.MeetingMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, ErrInvalidInput
	}

	room, err := loadAuthorizedRoom(ctx, s.roomRepo, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !room.Settings.ChatEnabled {
		return nil, ErrChatDisabled
	}

	sender, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to load message sender")
		return nil, ErrInternalServer
	}

	msg := &domain.MeetingMessage{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  userID,
		Content:   content,
		Type:      domain.MessageTypeText,
		CreatedAt: s.now().UTC(),
	}
	if err := s.messageRepo.Save(ctx, msg); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Error("Failed to save chat message")
		return nil, ErrInternalServer
	}
	msg.Sender = sender
	return msg, nil
}

// List 返回最近的 limit 条消息，按时间正序。
func (s *MessageService) List(ctx context.Context, roomID, userID uint, limit int) ([]domain.MeetingMessage, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}
	if _, err := loadAuthorizedRoom(ctx, s.roomRepo, roomID, userID); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.Recent(ctx, roomID, limit)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to list chat messages")
		return nil, ErrInternalServer
	}
	return messages, nil
}

// PurgeRoom 删除房间的所有聊天消息，由后台任务在项目删除后调用。
func (s *MessageService) PurgeRoom(ctx context.Context, roomID uint) (int64, error) {
	n, err := s.messageRepo.DeleteByRoomID(ctx, roomID)
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "deleted": n}).Info("Chat messages purged")
	return n, nil
}
