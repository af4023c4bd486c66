package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"

	"github.com/sirupsen/logrus"
)

const maxAccessCodeAttempts = 10

// RoomOption 配置 RoomService
type RoomOption func(*RoomService)

// WithAccessCodeGenerator 替换访问码生成函数
func WithAccessCodeGenerator(gen func() (string, error)) RoomOption {
	return func(s *RoomService) { s.generateCode = gen }
}

// WithRoomClock 替换时间来源
func WithRoomClock(now func() time.Time) RoomOption {
	return func(s *RoomService) { s.now = now }
}

// RoomService 是房间注册表：房间的创建、成员名单、设置和访问码。
type RoomService struct {
	roomRepo     repository.RoomRepository
	projectRepo  repository.ProjectRepository
	generateCode func() (string, error)
	now          func() time.Time
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, projectRepo repository.ProjectRepository, opts ...RoomOption) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if projectRepo == nil {
		panic("ProjectRepository cannot be nil for RoomService")
	}
	s := &RoomService{
		roomRepo:     roomRepo,
		projectRepo:  projectRepo,
		generateCode: domain.GenerateAccessCode,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom 为项目创建房间，项目已有房间时直接返回已有房间。
// 依赖 project_id 和 access_code 的唯一索引处理并发创建与访问码冲突。
func (s *RoomService) CreateRoom(ctx context.Context, projectID, ownerID uint, name string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"project_id": projectID, "owner_id": ownerID})

	existing, err := s.roomRepo.FindByProjectID(ctx, projectID)
	if err == nil {
		logCtx.WithField("room_id", existing.ID).Debug("Room already exists for project")
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logCtx.WithError(err).Error("Failed to look up room by project")
		return nil, ErrInternalServer
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Project %d meeting room", projectID)
	}

	for attempt := 1; attempt <= maxAccessCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate access code")
			return nil, ErrInternalServer
		}

		now := s.now()
		room := &domain.Room{
			ProjectID:  projectID,
			Name:       name,
			CreatorID:  ownerID,
			AccessCode: code,
			Settings:   domain.DefaultRoomSettings(),
			Members: []domain.RoomMember{{
				UserID:         ownerID,
				Role:           domain.RoleHost,
				Status:         domain.StatusOffline,
				JoinedAt:       now,
				LastActivityAt: now,
			}},
		}

		err = s.roomRepo.Create(ctx, room)
		if err == nil {
			logCtx.WithFields(logrus.Fields{"room_id": room.ID, "access_code": code}).Info("Room created successfully")
			return room, nil
		}
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Error("Failed to save new room")
			return nil, ErrInternalServer
		}

		// 冲突可能来自 project_id (并发创建) 或 access_code (碰撞)
		if existing, findErr := s.roomRepo.FindByProjectID(ctx, projectID); findErr == nil {
			logCtx.WithField("room_id", existing.ID).Info("Room created concurrently for project, returning existing")
			return existing, nil
		}
		logCtx.WithField("access_code", code).Warnf("Access code collision, retrying (attempt %d)", attempt)
	}

	logCtx.Errorf("Failed to create room after %d attempts", maxAccessCodeAttempts)
	return nil, ErrInternalServer
}

// AddMember 将用户加入名单，已是成员时不做任何事。
func (s *RoomService) AddMember(ctx context.Context, roomID, userID uint, role domain.MemberRole) error {
	if role == "" {
		role = domain.RoleParticipant
	}
	if !role.Valid() {
		return ErrInvalidInput
	}
	now := s.now()
	added, err := s.roomRepo.AddMember(ctx, roomID, domain.RoomMember{
		UserID:         userID,
		Role:           role,
		Status:         domain.StatusOffline,
		JoinedAt:       now,
		LastActivityAt: now,
	})
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "role": role})
	if err != nil {
		logCtx.WithError(err).Error("Failed to add room member")
		return ErrInternalServer
	}
	if added {
		logCtx.Info("Member added to room")
	}
	return nil
}

// RemoveMember 从名单中移除用户，不影响历史记录。
func (s *RoomService) RemoveMember(ctx context.Context, roomID, userID uint) error {
	err := s.roomRepo.RemoveMember(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMemberNotFound
		}
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Error("Failed to remove room member")
		return ErrInternalServer
	}
	return nil
}

// RemoveMemberAs 由创建者或主持人移除成员。
func (s *RoomService) RemoveMemberAs(ctx context.Context, actorID, roomID, userID uint) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.CanManage(actorID) {
		return ErrForbidden
	}
	return s.RemoveMember(ctx, roomID, userID)
}

// ListRooms 返回用户创建或参与的房间，会议进行中的排在前面。
func (s *RoomService) ListRooms(ctx context.Context, userID uint) ([]domain.Room, error) {
	rooms, err := s.roomRepo.ListForUser(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list rooms")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// GetRoom 返回房间详情。
// 调用者是项目成员但还不是房间成员时，自动将其加入名单后返回最新详情。
func (s *RoomService) GetRoom(ctx context.Context, roomID, userID uint) (*domain.Room, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if domain.IsAuthorized(room, userID) {
		return room, nil
	}

	project, err := s.projectRepo.FindByID(ctx, room.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrForbidden
		}
		logrus.WithError(err).WithField("project_id", room.ProjectID).Error("Failed to load project for room enrollment")
		return nil, ErrInternalServer
	}
	if !domain.IsAuthorized(project, userID) {
		return nil, ErrForbidden
	}

	if err := s.AddMember(ctx, roomID, userID, domain.RoleParticipant); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("Project member auto-enrolled into room")
	return s.loadRoom(ctx, roomID)
}

// JoinByAccessCode 通过访问码加入房间的名单。
func (s *RoomService) JoinByAccessCode(ctx context.Context, userID uint, code string) (*domain.Room, error) {
	code = domain.NormalizeAccessCode(code)
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "access_code": code})
	if !domain.IsValidAccessCode(code) {
		logCtx.Warn("Malformed access code")
		return nil, ErrInvalidAccessCode
	}

	room, err := s.roomRepo.FindByAccessCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logCtx.Warn("No room matches access code")
			return nil, ErrInvalidAccessCode
		}
		logCtx.WithError(err).Error("Failed to find room by access code")
		return nil, ErrInternalServer
	}

	if !domain.IsAuthorized(room, userID) {
		if err := s.AddMember(ctx, room.ID, userID, domain.RoleParticipant); err != nil {
			return nil, err
		}
		return s.loadRoom(ctx, room.ID)
	}
	logCtx.WithField("room_id", room.ID).Debug("User already belongs to room")
	return room, nil
}

// UpdateSettings 部分更新设置，仅限创建者或主持人。
func (s *RoomService) UpdateSettings(ctx context.Context, roomID, userID uint, patch domain.RoomSettingsPatch) (*domain.RoomSettings, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.CanManage(userID) {
		return nil, ErrForbidden
	}
	if patch.MaxParticipants != nil && *patch.MaxParticipants < 0 {
		return nil, ErrInvalidInput
	}

	settings := room.Settings
	patch.Apply(&settings)
	if err := s.roomRepo.UpdateSettings(ctx, roomID, settings); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to update room settings")
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return &settings, nil
}

// RoomHistory 是统计和历史记录 (按时间倒序)。
type RoomHistory struct {
	Stats   domain.RoomStats       `json:"stats"`
	History []domain.MeetingRecord `json:"history"`
}

// GetHistory 返回房间的统计和历史记录。
func (s *RoomService) GetHistory(ctx context.Context, roomID, userID uint) (*RoomHistory, error) {
	room, err := s.authorizedRoom(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	return &RoomHistory{Stats: room.Stats, History: room.HistoryNewestFirst()}, nil
}

// DeleteForProject 删除项目的房间，返回被删除房间的 ID。
func (s *RoomService) DeleteForProject(ctx context.Context, projectID uint) (uint, error) {
	roomID, err := s.roomRepo.DeleteByProjectID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("project_id", projectID).Error("Failed to delete project room")
		return 0, ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"project_id": projectID, "room_id": roomID}).Info("Project room deleted")
	return roomID, nil
}

func (s *RoomService) loadRoom(ctx context.Context, roomID uint) (*domain.Room, error) {
	return loadRoom(ctx, s.roomRepo, roomID)
}

func (s *RoomService) authorizedRoom(ctx context.Context, roomID, userID uint) (*domain.Room, error) {
	return loadAuthorizedRoom(ctx, s.roomRepo, roomID, userID)
}

// --- 包内共享的辅助函数 ---

func loadRoom(ctx context.Context, repo repository.RoomRepository, roomID uint) (*domain.Room, error) {
	room, err := repo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load room")
		return nil, ErrInternalServer
	}
	return room, nil
}

// loadAuthorizedRoom 加载房间并检查用户是否为成员或创建者
func loadAuthorizedRoom(ctx context.Context, repo repository.RoomRepository, roomID, userID uint) (*domain.Room, error) {
	room, err := loadRoom(ctx, repo, roomID)
	if err != nil {
		return nil, err
	}
	if !domain.IsAuthorized(room, userID) {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Warn("User is not a member of the room")
		return nil, ErrForbidden
	}
	return room, nil
}
