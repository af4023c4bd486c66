package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"team-meetings/internal/tasks"
)

type fakeReaper struct {
	grace time.Duration
	err   error
}

func (f *fakeReaper) ReapStaleParticipants(_ context.Context, grace time.Duration) (int, error) {
	f.grace = grace
	return 2, f.err
}

type fakePurger struct {
	rooms []uint
	err   error
}

func (f *fakePurger) PurgeRoom(_ context.Context, roomID uint) (int64, error) {
	f.rooms = append(f.rooms, roomID)
	return 5, f.err
}

func TestReapStaleHandler(t *testing.T) {
	t.Run("uses payload grace", func(t *testing.T) {
		reaper := &fakeReaper{}
		task, err := tasks.NewReapStaleTask(45 * time.Second)
		require.NoError(t, err)

		require.NoError(t, NewReapStaleHandler(reaper).ProcessTask(context.Background(), task))
		assert.Equal(t, 45*time.Second, reaper.grace)
	})

	t.Run("falls back to default grace", func(t *testing.T) {
		reaper := &fakeReaper{}
		task := asynq.NewTask(tasks.TypeMeetingReapStale, nil)

		require.NoError(t, NewReapStaleHandler(reaper).ProcessTask(context.Background(), task))
		assert.Equal(t, defaultReapGrace, reaper.grace)
	})

	t.Run("malformed payload skips retry", func(t *testing.T) {
		task := asynq.NewTask(tasks.TypeMeetingReapStale, []byte("{"))
		err := NewReapStaleHandler(&fakeReaper{}).ProcessTask(context.Background(), task)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("service failure is retried", func(t *testing.T) {
		task := asynq.NewTask(tasks.TypeMeetingReapStale, nil)
		err := NewReapStaleHandler(&fakeReaper{err: errors.New("boom")}).ProcessTask(context.Background(), task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestChatPurgeHandler(t *testing.T) {
	purger := &fakePurger{}
	task, err := tasks.NewChatPurgeTask(8)
	require.NoError(t, err)

	require.NoError(t, NewChatPurgeHandler(purger).ProcessTask(context.Background(), task))
	assert.Equal(t, []uint{8}, purger.rooms)

	bad := asynq.NewTask(tasks.TypeChatPurge, []byte(`{"room_id":0}`))
	assert.ErrorIs(t, NewChatPurgeHandler(purger).ProcessTask(context.Background(), bad), asynq.SkipRetry)
	assert.Len(t, purger.rooms, 1)
}

func TestServeMux_RoutesByType(t *testing.T) {
	reaper := &fakeReaper{}
	purger := &fakePurger{}
	mux := NewServeMux(reaper, purger)

	task, err := tasks.NewChatPurgeTask(4)
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Equal(t, []uint{4}, purger.rooms)

	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("unknown:task", nil)))
}
