package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// ChatPurgeScheduler 安排在后台删除房间的聊天记录。
type ChatPurgeScheduler interface {
	ScheduleChatPurge(ctx context.Context, roomID uint) error
}

// ProjectService 负责项目的创建和删除编排：项目 -> 房间 (-> 聊天)。
// 任何一步失败都会撤销已完成的步骤。
type ProjectService struct {
	projectRepo repository.ProjectRepository
	rooms       *RoomService
	purger      ChatPurgeScheduler
	now         func() time.Time
}

// NewProjectService 创建 ProjectService 实例。purger 可以为 nil。
func NewProjectService(projectRepo repository.ProjectRepository, rooms *RoomService, purger ChatPurgeScheduler) *ProjectService {
	if projectRepo == nil {
		panic("ProjectRepository cannot be nil for ProjectService")
	}
	if rooms == nil {
		panic("RoomService cannot be nil for ProjectService")
	}
	return &ProjectService{projectRepo: projectRepo, rooms: rooms, purger: purger, now: time.Now}
}

// Create 创建项目及其会议房间。房间创建失败时删除已创建的项目。
func (s *ProjectService) Create(ctx context.Context, creatorID uint, name string, memberIDs []uint) (*domain.Project, *domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, ErrInvalidInput
	}
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "project_name": name})

	now := s.now()
	ids := lo.Uniq(lo.Filter(memberIDs, func(id uint, _ int) bool { return id != 0 && id != creatorID }))
	project := &domain.Project{
		Name:      name,
		CreatorID: creatorID,
		Members: lo.Map(ids, func(id uint, _ int) domain.ProjectMember {
			return domain.ProjectMember{UserID: id, AddedAt: now}
		}),
	}

	// 1. 创建项目
	if err := s.projectRepo.Create(ctx, project); err != nil {
		logCtx.WithError(err).Error("Failed to create project")
		return nil, nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("project_id", project.ID)

	// 2. 创建房间，失败时撤销项目
	room, err := s.rooms.CreateRoom(ctx, project.ID, creatorID, name)
	if err != nil {
		logCtx.WithError(err).Error("Failed to create project room, rolling back project")
		if delErr := s.projectRepo.Delete(ctx, project.ID); delErr != nil {
			logCtx.WithError(delErr).Error("Compensation failed: could not delete project")
		}
		return nil, nil, err
	}

	// 3. 聊天记录随房间存在，无需单独创建
	logCtx.WithField("room_id", room.ID).Info("Project created with meeting room")
	return project, room, nil
}

// AddMember 添加项目成员，仅限项目创建者。
func (s *ProjectService) AddMember(ctx context.Context, projectID, actorID, userID uint) (*domain.Project, error) {
	project, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.CreatorID != actorID {
		return nil, ErrForbidden
	}
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.projectRepo.AddMember(ctx, projectID, domain.ProjectMember{UserID: userID, AddedAt: s.now()}); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"project_id": projectID, "user_id": userID}).Error("Failed to add project member")
		return nil, ErrInternalServer
	}
	return s.load(ctx, projectID)
}

// Delete 删除项目：先删除房间，再删除项目，最后在后台清理聊天记录。
func (s *ProjectService) Delete(ctx context.Context, projectID, actorID uint) error {
	project, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}
	if project.CreatorID != actorID {
		return ErrForbidden
	}
	logCtx := logrus.WithField("project_id", projectID)

	// 1. 删除房间 (房间可能已不存在)
	roomID, err := s.rooms.DeleteForProject(ctx, projectID)
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		return err
	}

	// 2. 删除项目，失败时为仍存在的项目重建房间
	if err := s.projectRepo.Delete(ctx, projectID); err != nil {
		logCtx.WithError(err).Error("Failed to delete project after its room was removed")
		if roomID != 0 && !errors.Is(err, repository.ErrNotFound) {
			s.restoreRoom(ctx, project, roomID)
		}
		return mapRepoError(err, ErrProjectNotFound)
	}

	// 3. 后台清理聊天记录
	if roomID != 0 && s.purger != nil {
		if err := s.purger.ScheduleChatPurge(ctx, roomID); err != nil {
			logCtx.WithError(err).WithField("room_id", roomID).Warn("Failed to schedule chat purge")
		}
	}
	logCtx.Info("Project deleted")
	return nil
}

// restoreRoom 在项目删除失败后重建房间。新房间的 ID 和访问码都是新的，旧房间的会议历史不会恢复。
func (s *ProjectService) restoreRoom(ctx context.Context, project *domain.Project, deletedRoomID uint) {
	logCtx := logrus.WithFields(logrus.Fields{"project_id": project.ID, "deleted_room_id": deletedRoomID})
	room, err := s.rooms.CreateRoom(ctx, project.ID, project.CreatorID, project.Name)
	if err != nil {
		logCtx.WithError(err).Error("Compensation failed: project left without a meeting room")
		return
	}
	logCtx.WithField("room_id", room.ID).Warn("Recreated meeting room for project that could not be deleted")
}

func (s *ProjectService) load(ctx context.Context, projectID uint) (*domain.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		logrus.WithError(err).WithField("project_id", projectID).Error("Failed to load project")
		return nil, ErrInternalServer
	}
	return project, nil
}
