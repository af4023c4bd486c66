package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"
)

// meetingStateColumns 是 SaveMeetingState 条件更新时写入的列
var meetingStateColumns = []string{
	"meeting_active",
	"current_meeting",
	"history",
	"stats_total_meetings",
	"stats_total_duration_minutes",
	"stats_last_meeting_at",
	"stats_max_participants",
	"version",
	"updated_at",
}

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// Create 插入房间，初始成员随关联一起创建
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (project: %d, access_code: %s): %w", room.ProjectID, room.AccessCode, err)
	}
	return nil
}

func (r *GormRoomRepository) withMembers(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("joined_at ASC, id ASC")
	})
}

// FindByID 根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	if err := r.withMembers(ctx).First(&room, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

// FindByProjectID 查找项目的房间
func (r *GormRoomRepository) FindByProjectID(ctx context.Context, projectID uint) (*domain.Room, error) {
	var room domain.Room
	if err := r.withMembers(ctx).Where("project_id = ?", projectID).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by project %d: %w", projectID, err)
	}
	return &room, nil
}

// FindByAccessCode 根据访问码查找房间
func (r *GormRoomRepository) FindByAccessCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	if err := r.withMembers(ctx).Where("access_code = ?", code).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by access code '%s': %w", code, err)
	}
	return &room, nil
}

// ListForUser 返回用户创建或参与的房间，会议进行中的优先
func (r *GormRoomRepository) ListForUser(ctx context.Context, userID uint) ([]domain.Room, error) {
	var rooms []domain.Room
	memberOf := r.db.Model(&domain.RoomMember{}).Select("room_id").Where("user_id = ?", userID)
	err := r.withMembers(ctx).
		Where("creator_id = ?", userID).
		Or("id IN (?)", memberOf).
		Order("meeting_active DESC").
		Order("updated_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list rooms for user %d: %w", userID, err)
	}
	return rooms, nil
}

// ListActive 返回所有会议进行中的房间
func (r *GormRoomRepository) ListActive(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := r.withMembers(ctx).Where("meeting_active = ?", true).Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("gorm: list active rooms: %w", err)
	}
	return rooms, nil
}

// SaveMeetingState 以版本号为条件写入会议相关的列
func (r *GormRoomRepository) SaveMeetingState(ctx context.Context, room *domain.Room) error {
	expected := room.Version
	next := *room
	next.Members = nil
	next.Version = expected + 1
	next.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).
		Model(&next).
		Where("version = ?", expected).
		Select(meetingStateColumns).
		Updates(&next)
	if result.Error != nil {
		return fmt.Errorf("gorm: save meeting state for room %d (version %d): %w", room.ID, expected, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrStaleVersion
	}
	room.Version = next.Version
	room.UpdatedAt = next.UpdatedAt
	return nil
}

// UpdateSettings 覆盖房间设置
func (r *GormRoomRepository) UpdateSettings(ctx context.Context, roomID uint, s domain.RoomSettings) error {
	result := r.db.WithContext(ctx).Model(&domain.Room{}).Where("id = ?", roomID).Updates(map[string]interface{}{
		"setting_default_mic":          s.DefaultMic,
		"setting_default_camera":       s.DefaultCamera,
		"setting_chat_enabled":         s.ChatEnabled,
		"setting_screen_share_enabled": s.ScreenShareEnabled,
		"setting_recording_allowed":    s.RecordingAllowed,
		"setting_public":               s.Public,
		"setting_max_participants":     s.MaxParticipants,
	})
	if result.Error != nil {
		return fmt.Errorf("gorm: update settings for room %d: %w", roomID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

// AddMember 依赖 (room_id, user_id) 唯一索引，重复添加时不做任何事
func (r *GormRoomRepository) AddMember(ctx context.Context, roomID uint, member domain.RoomMember) (bool, error) {
	member.ID = 0
	member.RoomID = roomID
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member)
	if result.Error != nil {
		return false, fmt.Errorf("gorm: add member %d to room %d: %w", member.UserID, roomID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RemoveMember 删除名单中的成员
func (r *GormRoomRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.RoomMember{})
	if result.Error != nil {
		return fmt.Errorf("gorm: remove member %d from room %d: %w", userID, roomID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateMemberStatus 更新成员在线状态，成员不存在时静默忽略
func (r *GormRoomRepository) UpdateMemberStatus(ctx context.Context, roomID, userID uint, status domain.PresenceStatus, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(map[string]interface{}{"status": status, "last_activity_at": at}).Error
	if err != nil {
		return fmt.Errorf("gorm: update member %d status in room %d: %w", userID, roomID, err)
	}
	return nil
}

// DeleteByProjectID 在一个事务中删除项目的房间及成员
func (r *GormRoomRepository) DeleteByProjectID(ctx context.Context, projectID uint) (uint, error) {
	var roomID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		if err := tx.Select("id").Where("project_id = ?", projectID).First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRoomNotFound
			}
			return err
		}
		if err := tx.Where("room_id = ?", room.ID).Delete(&domain.RoomMember{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.Room{}, room.ID).Error; err != nil {
			return err
		}
		roomID = room.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("gorm: delete room of project %d: %w", projectID, err)
	}
	return roomID, nil
}
