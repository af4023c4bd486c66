package repository

import (
	"context"
	"time"

	"team-meetings/internal/domain"
)

// RoomRepository 定义了会议房间的存储操作。
type RoomRepository interface {
	// Create 插入新房间及其初始成员。
	// project_id 或 access_code 冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room) error

	// FindByID 根据 ID 查找房间 (含成员名单)，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByProjectID 查找项目对应的房间。
	FindByProjectID(ctx context.Context, projectID uint) (*domain.Room, error)

	// FindByAccessCode 根据访问码 (已规范化为大写) 查找房间。
	FindByAccessCode(ctx context.Context, code string) (*domain.Room, error)

	// ListForUser 返回用户作为创建者或成员的房间，进行中的会议排在前面。
	ListForUser(ctx context.Context, userID uint) ([]domain.Room, error)

	// ListActive 返回所有会议进行中的房间。
	ListActive(ctx context.Context) ([]domain.Room, error)

	// SaveMeetingState 以 room.Version 为条件写入会议状态、统计和历史，
	// 成功后 room.Version 递增。版本已变化时返回 ErrStaleVersion。
	SaveMeetingState(ctx context.Context, room *domain.Room) error

	// UpdateSettings 覆盖房间设置。
	UpdateSettings(ctx context.Context, roomID uint, settings domain.RoomSettings) error

	// AddMember 添加成员，(room_id, user_id) 已存在时不做任何事。
	// 返回是否实际插入了新成员。
	AddMember(ctx context.Context, roomID uint, member domain.RoomMember) (bool, error)

	// RemoveMember 从名单中删除成员，成员不存在时返回 ErrNotFound。
	RemoveMember(ctx context.Context, roomID, userID uint) error

	// UpdateMemberStatus 更新成员的在线状态和最后活动时间。
	UpdateMemberStatus(ctx context.Context, roomID, userID uint, status domain.PresenceStatus, at time.Time) error

	// DeleteByProjectID 删除项目的房间及其成员，返回被删除房间的 ID。
	DeleteByProjectID(ctx context.Context, projectID uint) (uint, error)
}
