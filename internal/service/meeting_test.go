package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository/mocks"
	"team-meetings/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var micOnly = domain.MediaState{Mic: true}

func newMeetingService(repo *memRoomRepo, clock *testClock) *service.MeetingService {
	return service.NewMeetingService(repo, nil, service.WithMeetingClock(clock.Now))
}

func TestMeetingService_StartJoinLeaveEnd(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10, 20))
	clock := newTestClock()
	svc := newMeetingService(repo, clock)
	ctx := context.Background()

	res, err := svc.Start(ctx, 1, 10, micOnly)
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.True(t, res.Room.MeetingActive)

	clock.Advance(5 * time.Minute)
	res, err = svc.Join(ctx, 1, 20, domain.MediaState{Camera: true})
	require.NoError(t, err)
	assert.False(t, res.AlreadyInMeeting)
	assert.Len(t, res.Room.CurrentMeeting.Live, 2)

	clock.Advance(10 * time.Minute)
	res, err = svc.Leave(ctx, 1, 20)
	require.NoError(t, err)
	assert.Nil(t, res.Ended)

	clock.Advance(15 * time.Minute)
	res, err = svc.End(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, res.Ended)
	assert.Equal(t, 30, res.Ended.DurationMinutes)
	assert.False(t, res.Room.MeetingActive)

	stored := repo.get(1)
	assert.Equal(t, 1, stored.Stats.TotalMeetings)
	assert.Equal(t, 30, stored.Stats.TotalDurationMinutes)
	assert.Equal(t, 2, stored.Stats.MaxParticipants)
	require.Len(t, stored.History, 1)
	assert.Empty(t, stored.CurrentMeeting.Live)

	// 在线状态随加入和离开更新
	m, _ := stored.Member(20)
	assert.Equal(t, domain.StatusOffline, m.Status)
	m, _ = stored.Member(10)
	assert.Equal(t, domain.StatusOnline, m.Status)
}

func TestMeetingService_StartWhileActiveJoins(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10, 20))
	svc := newMeetingService(repo, newTestClock())
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 10, micOnly)
	require.NoError(t, err)

	res, err := svc.Start(ctx, 1, 20, micOnly)
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.Len(t, res.Room.CurrentMeeting.Live, 2)

	// 已在会议中再次开始不写入
	saves := repo.saves
	res, err = svc.Start(ctx, 1, 20, micOnly)
	require.NoError(t, err)
	assert.True(t, res.AlreadyInMeeting)
	assert.Equal(t, saves, repo.saves)
	assert.Equal(t, 1, repo.get(1).Stats.TotalMeetings)
}

func TestMeetingService_JoinWithoutMeeting(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10, 20))
	svc := newMeetingService(repo, newTestClock())

	_, err := svc.Join(context.Background(), 1, 20, micOnly)
	assert.ErrorIs(t, err, service.ErrNoActiveMeeting)
}

func TestMeetingService_NonMemberForbidden(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10))
	svc := newMeetingService(repo, newTestClock())
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 99, micOnly)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.Start(ctx, 2, 10, micOnly)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestMeetingService_EndRequiresManager(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10, 20))
	svc := newMeetingService(repo, newTestClock())
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 20, micOnly)
	require.NoError(t, err)

	_, err = svc.End(ctx, 1, 20)
	assert.ErrorIs(t, err, service.ErrForbidden)
	assert.True(t, repo.get(1).MeetingActive)

	_, err = svc.End(ctx, 1, 10)
	require.NoError(t, err)

	_, err = svc.End(ctx, 1, 10)
	assert.ErrorIs(t, err, service.ErrNoActiveMeeting)
}

func TestMeetingService_LastLeaveEndsMeeting(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10))
	clock := newTestClock()
	svc := newMeetingService(repo, clock)
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 10, micOnly)
	require.NoError(t, err)
	clock.Advance(20 * time.Second)

	res, err := svc.Leave(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, res.Ended)
	assert.Equal(t, 1, res.Ended.DurationMinutes, "不足一分钟按一分钟计")
	assert.False(t, repo.get(1).MeetingActive)

	// 没有会议时离开返回错误
	_, err = svc.Leave(ctx, 1, 10)
	assert.ErrorIs(t, err, service.ErrNoActiveMeeting)
}

func TestMeetingService_LeaveTwiceIsNoop(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10, 20))
	clock := newTestClock()
	svc := newMeetingService(repo, clock)
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 10, micOnly)
	require.NoError(t, err)
	_, err = svc.Join(ctx, 1, 20, micOnly)
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	_, err = svc.Leave(ctx, 1, 20)
	require.NoError(t, err)
	saves := repo.saves

	clock.Advance(3 * time.Minute)
	res, err := svc.Leave(ctx, 1, 20)
	require.NoError(t, err)
	assert.Nil(t, res.Ended)
	assert.Equal(t, saves, repo.saves)

	ledger := repo.get(1).CurrentMeeting.Ledger
	require.Len(t, ledger, 2)
	require.NotNil(t, ledger[1].DisconnectedAt)
	assert.Equal(t, newTestClock().Now().Add(3*time.Minute), *ledger[1].DisconnectedAt)
}

func TestMeetingService_ParticipantCap(t *testing.T) {
	room := newRoom(1, 10, 20, 30)
	room.Settings.MaxParticipants = 2
	repo := newMemRoomRepo(room)
	svc := newMeetingService(repo, newTestClock())
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 10, micOnly)
	require.NoError(t, err)
	_, err = svc.Join(ctx, 1, 20, micOnly)
	require.NoError(t, err)

	_, err = svc.Join(ctx, 1, 30, micOnly)
	assert.ErrorIs(t, err, service.ErrRoomFull)
}

func TestMeetingService_ConcurrentStartOneMeeting(t *testing.T) {
	users := []uint{1, 2, 3, 4, 5, 6, 7, 8}
	repo := newMemRoomRepo(newRoom(1, users...))
	svc := newMeetingService(repo, newTestClock())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint) {
			defer wg.Done()
			res, err := svc.Start(context.Background(), 1, uid, micOnly)
			if !assert.NoError(t, err) {
				return
			}
			if res.Started {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}(uid)
	}
	wg.Wait()

	assert.Equal(t, 1, started, "只能有一次调用真正开始会议")
	stored := repo.get(1)
	assert.Equal(t, 1, stored.Stats.TotalMeetings)
	assert.Len(t, stored.CurrentMeeting.Live, len(users))
}

func TestMeetingService_ConcurrentStartAcrossInstances(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10, 20))
	clock := newTestClock()
	// 两个服务实例不共享进程内锁，只能依靠版本号
	a := newMeetingService(repo, clock)
	b := newMeetingService(repo, clock)

	var wg sync.WaitGroup
	results := make([]*service.MeetingResult, 2)
	for i, svc := range []*service.MeetingService{a, b} {
		wg.Add(1)
		go func(i int, svc *service.MeetingService, uid uint) {
			defer wg.Done()
			res, err := svc.Start(context.Background(), 1, uid, micOnly)
			assert.NoError(t, err)
			results[i] = res
		}(i, svc, uint(10*(i+1)))
	}
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.NotEqual(t, results[0].Started, results[1].Started, "恰好一个实例开始会议")
	stored := repo.get(1)
	assert.Equal(t, 1, stored.Stats.TotalMeetings)
	assert.Len(t, stored.CurrentMeeting.Live, 2)
}

func TestMeetingService_ReapStaleParticipants(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10, 20))
	clock := newTestClock()
	presence := new(mocks.PresenceRepository)
	svc := service.NewMeetingService(repo, presence, service.WithMeetingClock(clock.Now))
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 10, micOnly)
	require.NoError(t, err)
	_, err = svc.Join(ctx, 1, 20, micOnly)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	// 只有用户 20 还连着中继
	presence.On("UserIDs", ctx, "1", mock.AnythingOfType("time.Time")).Return([]uint{20}, nil).Once()

	reaped, err := svc.ReapStaleParticipants(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	stored := repo.get(1)
	assert.True(t, stored.MeetingActive)
	assert.False(t, stored.IsLive(10))
	assert.True(t, stored.IsLive(20))
	presence.AssertExpectations(t)
}

func TestMeetingService_ReapSkipsRecentJoiners(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10))
	clock := newTestClock()
	presence := new(mocks.PresenceRepository)
	svc := service.NewMeetingService(repo, presence, service.WithMeetingClock(clock.Now))
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 10, micOnly)
	require.NoError(t, err)
	clock.Advance(10 * time.Second)

	presence.On("UserIDs", ctx, "1", mock.AnythingOfType("time.Time")).Return([]uint{}, nil).Once()

	reaped, err := svc.ReapStaleParticipants(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, reaped)
	assert.True(t, repo.get(1).MeetingActive)
}

func TestMeetingService_ReapWithoutPresence(t *testing.T) {
	svc := service.NewMeetingService(newMemRoomRepo(newRoom(1, 10)), nil)
	reaped, err := svc.ReapStaleParticipants(context.Background(), time.Minute)
	assert.NoError(t, err)
	assert.Zero(t, reaped)
}

// 中继按 domain.RelayKey 记录心跳，清理任务按同一标识查询，连着中继的参与者不会被移出
func TestMeetingService_ReapKeepsParticipantsConnectedToRelay(t *testing.T) {
	repo := newMemRoomRepo(newRoom(1, 10, 20))
	clock := newTestClock()
	presence := newMemPresence()
	svc := service.NewMeetingService(repo, presence, service.WithMeetingClock(clock.Now))
	ctx := context.Background()

	_, err := svc.Start(ctx, 1, 10, micOnly)
	require.NoError(t, err)
	_, err = svc.Join(ctx, 1, 20, micOnly)
	require.NoError(t, err)

	// 两人都保持中继连接，心跳持续刷新
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		require.NoError(t, presence.Touch(ctx, domain.RelayKey(1), 10, "conn-a", clock.Now()))
		require.NoError(t, presence.Touch(ctx, domain.RelayKey(1), 20, "conn-b", clock.Now()))
	}

	reaped, err := svc.ReapStaleParticipants(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, reaped)

	stored := repo.get(1)
	assert.True(t, stored.MeetingActive)
	assert.True(t, stored.IsLive(10))
	assert.True(t, stored.IsLive(20))
	assert.Empty(t, stored.History)

	// 用户 10 断开后超过宽限期才被移出，会议仍在进行
	require.NoError(t, presence.Remove(ctx, domain.RelayKey(1), 10, "conn-a"))
	clock.Advance(time.Minute)
	require.NoError(t, presence.Touch(ctx, domain.RelayKey(1), 20, "conn-b", clock.Now()))

	reaped, err = svc.ReapStaleParticipants(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
	stored = repo.get(1)
	assert.True(t, stored.MeetingActive)
	assert.False(t, stored.IsLive(10))
}
