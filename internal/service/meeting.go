package service

import (
	"context"
	"errors"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const maxMeetingWriteAttempts = 3

// errNoChange 表示状态转换没有修改房间，无需写入
var errNoChange = errors.New("no change")

// MeetingOption 配置 MeetingService
type MeetingOption func(*MeetingService)

// WithMeetingClock 替换时间来源
func WithMeetingClock(now func() time.Time) MeetingOption {
	return func(s *MeetingService) { s.now = now }
}

// MeetingService 是会议生命周期控制器 (Idle <-> Active)。
// 同一房间的转换在进程内串行执行，并以版本号条件写入，跨实例也不会出现两个进行中的会议。
type MeetingService struct {
	roomRepo repository.RoomRepository
	presence repository.PresenceRepository // 可以为 nil，此时不清理失联的参与者
	locks    *roomLocks
	now      func() time.Time
}

// NewMeetingService 创建 MeetingService 实例。
func NewMeetingService(roomRepo repository.RoomRepository, presence repository.PresenceRepository, opts ...MeetingOption) *MeetingService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for MeetingService")
	}
	s := &MeetingService{
		roomRepo: roomRepo,
		presence: presence,
		locks:    newRoomLocks(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MeetingResult 是一次状态转换的结果。
type MeetingResult struct {
	Room             *domain.Room
	Started          bool                  // 本次调用开启了会议
	AlreadyInMeeting bool                  // 调用者已经在实时列表中
	Ended            *domain.MeetingRecord // 本次调用结束了会议 (包括最后一人离开)
}

// Start 开始会议；会议已在进行时等同于 Join。
func (s *MeetingService) Start(ctx context.Context, roomID, userID uint, media domain.MediaState) (*MeetingResult, error) {
	result := &MeetingResult{}
	room, err := s.transition(ctx, roomID, userID, "start", func(room *domain.Room, now time.Time) error {
		*result = MeetingResult{}
		err := room.StartMeeting(userID, media, now)
		if errors.Is(err, domain.ErrMeetingAlreadyActive) {
			already, joinErr := room.JoinMeeting(userID, media, now)
			if joinErr != nil {
				return joinErr
			}
			if already {
				result.AlreadyInMeeting = true
				return errNoChange
			}
			return nil
		}
		if err != nil {
			return err
		}
		result.Started = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Room = room
	s.touchMember(ctx, roomID, userID, domain.StatusOnline)
	return result, nil
}

// Join 加入进行中的会议，没有会议时返回 ErrNoActiveMeeting。
func (s *MeetingService) Join(ctx context.Context, roomID, userID uint, media domain.MediaState) (*MeetingResult, error) {
	result := &MeetingResult{}
	room, err := s.transition(ctx, roomID, userID, "join", func(room *domain.Room, now time.Time) error {
		*result = MeetingResult{}
		already, err := room.JoinMeeting(userID, media, now)
		if err != nil {
			return err
		}
		if already {
			result.AlreadyInMeeting = true
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Room = room
	s.touchMember(ctx, roomID, userID, domain.StatusOnline)
	return result, nil
}

// Leave 离开会议，最后一人离开时自动结束会议。
func (s *MeetingService) Leave(ctx context.Context, roomID, userID uint) (*MeetingResult, error) {
	result, err := s.leave(ctx, roomID, userID, true)
	if err != nil {
		return nil, err
	}
	s.touchMember(ctx, roomID, userID, domain.StatusOffline)
	return result, nil
}

func (s *MeetingService) leave(ctx context.Context, roomID, userID uint, checkAuth bool) (*MeetingResult, error) {
	result := &MeetingResult{}
	op := "leave"
	if !checkAuth {
		op = "reap"
	}
	room, err := s.transitionWith(ctx, roomID, userID, op, checkAuth, func(room *domain.Room, now time.Time) error {
		*result = MeetingResult{}
		if !room.MeetingActive {
			return domain.ErrMeetingNotActive
		}
		if !room.IsLive(userID) {
			// 已经离开，重复调用不修改出席记录
			return errNoChange
		}
		record, err := room.LeaveMeeting(userID, now)
		if err != nil {
			return err
		}
		result.Ended = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Room = room
	if result.Ended != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "duration_minutes": result.Ended.DurationMinutes}).
			Info("Last participant left, meeting ended")
	}
	return result, nil
}

// End 结束会议，仅限创建者或主持人。
func (s *MeetingService) End(ctx context.Context, roomID, userID uint) (*MeetingResult, error) {
	result := &MeetingResult{}
	room, err := s.transition(ctx, roomID, userID, "end", func(room *domain.Room, now time.Time) error {
		*result = MeetingResult{}
		if !room.CanManage(userID) {
			return ErrForbidden
		}
		record, err := room.EndMeeting(now)
		if err != nil {
			return err
		}
		result.Ended = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Room = room
	return result, nil
}

// ReapStaleParticipants 将在中继中已没有连接的参与者移出会议。
// 只处理加入时间早于 grace 的参与者，给客户端留出建立中继连接的时间。
func (s *MeetingService) ReapStaleParticipants(ctx context.Context, grace time.Duration) (int, error) {
	if s.presence == nil {
		return 0, nil
	}
	rooms, err := s.roomRepo.ListActive(ctx)
	if err != nil {
		logrus.WithError(err).Error("Reaper: failed to list active rooms")
		return 0, ErrInternalServer
	}

	reaped := 0
	cutoff := s.now().Add(-grace)
	for _, room := range rooms {
		logCtx := logrus.WithField("room_id", room.ID)
		connected, err := s.presence.UserIDs(ctx, domain.RelayKey(room.ID), cutoff)
		if err != nil {
			logCtx.WithError(err).Warn("Reaper: failed to read relay presence, skipping room")
			continue
		}
		stale := lo.Filter(room.CurrentMeeting.Live, func(p domain.LiveParticipant, _ int) bool {
			return p.ConnectedAt.Before(cutoff) && !lo.Contains(connected, p.UserID)
		})
		for _, p := range stale {
			if _, err := s.leave(ctx, room.ID, p.UserID, false); err != nil {
				if !errors.Is(err, ErrNoActiveMeeting) {
					logCtx.WithError(err).WithField("user_id", p.UserID).Warn("Reaper: failed to retire participant")
				}
				continue
			}
			s.touchMember(ctx, room.ID, p.UserID, domain.StatusOffline)
			reaped++
		}
	}
	if reaped > 0 {
		logrus.WithField("reaped", reaped).Info("Reaper: retired stale meeting participants")
	}
	return reaped, nil
}

func (s *MeetingService) transition(ctx context.Context, roomID, userID uint, op string, apply func(*domain.Room, time.Time) error) (*domain.Room, error) {
	return s.transitionWith(ctx, roomID, userID, op, true, apply)
}

// transitionWith 在房间锁内执行 读取 -> 转换 -> 条件写入，版本冲突时重新读取重试。
func (s *MeetingService) transitionWith(ctx context.Context, roomID, userID uint, op string, checkAuth bool, apply func(*domain.Room, time.Time) error) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "operation": op})

	unlock := s.locks.lock(roomID)
	defer unlock()

	for attempt := 1; attempt <= maxMeetingWriteAttempts; attempt++ {
		// 1. 读取最新状态
		var (
			room *domain.Room
			err  error
		)
		if checkAuth {
			room, err = loadAuthorizedRoom(ctx, s.roomRepo, roomID, userID)
		} else {
			room, err = loadRoom(ctx, s.roomRepo, roomID)
		}
		if err != nil {
			return nil, err
		}

		// 2. 应用状态转换
		err = apply(room, s.now())
		if errors.Is(err, errNoChange) {
			return room, nil
		}
		if err != nil {
			logCtx.WithError(err).Debug("Meeting transition rejected")
			return nil, mapTransitionError(err)
		}

		// 3. 条件写入
		err = s.roomRepo.SaveMeetingState(ctx, room)
		if err == nil {
			logCtx.WithFields(logrus.Fields{"active": room.MeetingActive, "version": room.Version}).Info("Meeting state saved")
			return room, nil
		}
		if !errors.Is(err, repository.ErrStaleVersion) {
			logCtx.WithError(err).Error("Failed to save meeting state")
			return nil, mapRepoError(err, ErrRoomNotFound)
		}
		logCtx.Warnf("Stale room version, retrying (attempt %d)", attempt)
	}

	logCtx.Errorf("Giving up after %d conflicting writes", maxMeetingWriteAttempts)
	return nil, ErrConcurrentUpdate
}

// touchMember 更新名单中的在线状态，失败只记录日志
func (s *MeetingService) touchMember(ctx context.Context, roomID, userID uint, status domain.PresenceStatus) {
	if err := s.roomRepo.UpdateMemberStatus(ctx, roomID, userID, status, s.now()); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Warn("Failed to update member status")
	}
}
