package service_test

import (
	"context"
	"strings"
	"testing"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository/mocks"
	"team-meetings/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type messageFixture struct {
	rooms    *mocks.RoomRepository
	messages *mocks.MessageRepository
	users    *mocks.UserRepository
	svc      *service.MessageService
}

func newMessageFixture() *messageFixture {
	f := &messageFixture{
		rooms:    new(mocks.RoomRepository),
		messages: new(mocks.MessageRepository),
		users:    new(mocks.UserRepository),
	}
	f.svc = service.NewMessageService(f.rooms, f.messages, f.users)
	return f
}

func TestMessageService_Post(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	sender := &domain.User{ID: 20, Username: "bob"}

	f.rooms.On("FindByID", ctx, uint(1)).Return(newRoom(1, 10, 20), nil).Once()
	f.users.On("FindByID", ctx, uint(20)).Return(sender, nil).Once()
	f.messages.On("Save", ctx, mock.MatchedBy(func(m *domain.MeetingMessage) bool {
		_, err := uuid.Parse(m.ID)
		return err == nil && m.RoomID == 1 && m.SenderID == 20 && m.Content == "hello" && m.Type == domain.MessageTypeText
	})).Return(nil).Once()

	msg, err := f.svc.Post(ctx, 1, 20, "  hello ")

	require.NoError(t, err)
	assert.Equal(t, "bob", msg.Sender.Username)
	assert.False(t, msg.CreatedAt.IsZero())
	f.rooms.AssertExpectations(t)
	f.messages.AssertExpectations(t)
}

func TestMessageService_Post_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty content", func(t *testing.T) {
		f := newMessageFixture()
		_, err := f.svc.Post(ctx, 1, 20, "   ")
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("too long", func(t *testing.T) {
		f := newMessageFixture()
		_, err := f.svc.Post(ctx, 1, 20, strings.Repeat("字", service.MaxMessageLength+1))
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("not a member", func(t *testing.T) {
		f := newMessageFixture()
		f.rooms.On("FindByID", ctx, uint(1)).Return(newRoom(1, 10), nil).Once()
		_, err := f.svc.Post(ctx, 1, 20, "hi")
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("chat disabled", func(t *testing.T) {
		f := newMessageFixture()
		room := newRoom(1, 10, 20)
		room.Settings.ChatEnabled = false
		f.rooms.On("FindByID", ctx, uint(1)).Return(room, nil).Once()

		_, err := f.svc.Post(ctx, 1, 20, "hi")

		assert.ErrorIs(t, err, service.ErrChatDisabled)
		f.messages.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestMessageService_List_ClampsLimit(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		requested int
		want      int
	}{
		{0, service.DefaultMessageLimit},
		{-3, service.DefaultMessageLimit},
		{10, 10},
		{10000, service.MaxMessageLimit},
	}
	for _, tt := range tests {
		f := newMessageFixture()
		f.rooms.On("FindByID", ctx, uint(1)).Return(newRoom(1, 10), nil).Once()
		f.messages.On("Recent", ctx, uint(1), tt.want).Return([]domain.MeetingMessage{{ID: "m1"}}, nil).Once()

		msgs, err := f.svc.List(ctx, 1, 10, tt.requested)

		require.NoError(t, err)
		assert.Len(t, msgs, 1)
		f.messages.AssertExpectations(t)
	}
}

func TestMessageService_List_Forbidden(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.rooms.On("FindByID", ctx, uint(1)).Return(newRoom(1, 10), nil).Once()

	_, err := f.svc.List(ctx, 1, 99, 10)

	assert.ErrorIs(t, err, service.ErrForbidden)
	f.messages.AssertNotCalled(t, "Recent", mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageService_PurgeRoom(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.messages.On("DeleteByRoomID", ctx, uint(4)).Return(int64(12), nil).Once()

	n, err := f.svc.PurgeRoom(ctx, 4)

	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
