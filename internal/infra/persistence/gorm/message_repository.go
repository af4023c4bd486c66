package gormpersistence

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"team-meetings/internal/domain"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Save(ctx context.Context, msg *domain.MeetingMessage) error {
	if err := r.db.WithContext(ctx).Omit("Sender").Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: save message %s in room %d: %w", msg.ID, msg.RoomID, err)
	}
	return nil
}

// Recent 先按时间倒序取最近 limit 条，再反转为正序
func (r *GormMessageRepository) Recent(ctx context.Context, roomID uint, limit int) ([]domain.MeetingMessage, error) {
	var messages []domain.MeetingMessage
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: recent messages for room %d: %w", roomID, err)
	}
	return lo.Reverse(messages), nil
}

func (r *GormMessageRepository) DeleteByRoomID(ctx context.Context, roomID uint) (int64, error) {
	result := r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&domain.MeetingMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: delete messages for room %d: %w", roomID, result.Error)
	}
	return result.RowsAffected, nil
}
