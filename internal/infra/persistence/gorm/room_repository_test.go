package gormpersistence_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"team-meetings/internal/domain"
	gormpersistence "team-meetings/internal/infra/persistence/gorm"
	"team-meetings/internal/infra/setup"
	"team-meetings/internal/repository"
	"team-meetings/internal/service"
)

// openTestDB 在临时目录中创建迁移好的 SQLite 数据库
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "meetings.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// SQLite 只允许一个写者，单连接避免 SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, setup.MigrateDB(db))
	return db
}

func createRoom(t *testing.T, repo *gormpersistence.GormRoomRepository, members ...uint) *domain.Room {
	t.Helper()
	now := time.Now()
	room := &domain.Room{
		ProjectID:  1,
		Name:       "Standup",
		CreatorID:  members[0],
		AccessCode: "MEETTEST01",
		Settings:   domain.DefaultRoomSettings(),
	}
	for i, id := range members {
		role := domain.RoleParticipant
		if i == 0 {
			role = domain.RoleHost
		}
		room.Members = append(room.Members, domain.RoomMember{
			UserID: id, Role: role, Status: domain.StatusOffline, JoinedAt: now, LastActivityAt: now,
		})
	}
	require.NoError(t, repo.Create(context.Background(), room))
	return room
}

func TestGormRoomRepository_SaveMeetingStateRejectsStaleVersion(t *testing.T) {
	repo := gormpersistence.NewGormRoomRepository(openTestDB(t))
	ctx := context.Background()
	created := createRoom(t, repo, 10, 20)

	first, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)

	// 1. 第一个写入者成功，版本号加一
	require.NoError(t, first.StartMeeting(10, domain.MediaState{Mic: true}, time.Now()))
	require.NoError(t, repo.SaveMeetingState(ctx, first))
	assert.Equal(t, uint(1), first.Version)

	// 2. 基于旧版本的写入被拒绝，不覆盖已保存的状态
	require.NoError(t, second.StartMeeting(20, domain.MediaState{Camera: true}, time.Now()))
	assert.ErrorIs(t, repo.SaveMeetingState(ctx, second), repository.ErrStaleVersion)
	assert.Equal(t, uint(0), second.Version)

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.Version)
	assert.True(t, stored.MeetingActive)
	require.Len(t, stored.CurrentMeeting.Live, 1)
	assert.Equal(t, uint(10), stored.CurrentMeeting.Live[0].UserID)
	assert.Equal(t, 1, stored.Stats.TotalMeetings)
	assert.Len(t, stored.Members, 2, "成员名单不受会议状态写入影响")
}

func TestGormRoomRepository_SaveMeetingStateMissingRoom(t *testing.T) {
	repo := gormpersistence.NewGormRoomRepository(openTestDB(t))

	err := repo.SaveMeetingState(context.Background(), &domain.Room{ID: 404})
	assert.ErrorIs(t, err, repository.ErrStaleVersion)
}

// 两个服务实例各自持有进程内锁，只能依靠版本条件写入保证只开启一次会议
func TestGormRoomRepository_ConcurrentStartAcrossInstances(t *testing.T) {
	db := openTestDB(t)
	repo := gormpersistence.NewGormRoomRepository(db)
	created := createRoom(t, repo, 10, 20)

	instances := []*service.MeetingService{
		service.NewMeetingService(gormpersistence.NewGormRoomRepository(db), nil),
		service.NewMeetingService(gormpersistence.NewGormRoomRepository(db), nil),
	}
	users := []uint{10, 20}

	var (
		wg      sync.WaitGroup
		results = make([]*service.MeetingResult, len(instances))
		errs    = make([]error, len(instances))
		ready   = make(chan struct{})
	)
	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-ready
			results[i], errs[i] = instances[i].Start(context.Background(), created.ID, users[i], domain.MediaState{Mic: true})
		}(i)
	}
	close(ready)
	wg.Wait()

	started := 0
	for i := range instances {
		require.NoError(t, errs[i])
		if results[i].Started {
			started++
		}
	}
	assert.Equal(t, 1, started)

	stored, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, stored.MeetingActive)
	assert.Equal(t, 1, stored.Stats.TotalMeetings)
	assert.Equal(t, uint(2), stored.Version)
	assert.True(t, stored.IsLive(10))
	assert.True(t, stored.IsLive(20))
}
