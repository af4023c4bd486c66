package repository

import (
	"context"

	"team-meetings/internal/domain"
)

// MessageRepository 定义了持久化聊天消息的存储操作。
type MessageRepository interface {
	// Save 追加一条消息。
	Save(ctx context.Context, msg *domain.MeetingMessage) error

	// Recent 返回房间最近的 limit 条消息，按时间正序，已预加载发送者。
	Recent(ctx context.Context, roomID uint, limit int) ([]domain.MeetingMessage, error)

	// DeleteByRoomID 删除房间的所有消息，返回删除的条数。
	DeleteByRoomID(ctx context.Context, roomID uint) (int64, error)
}
