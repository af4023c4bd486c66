package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"
)

// memRoomRepo 是带版本检查的内存 RoomRepository，用于并发场景。
type memRoomRepo struct {
	mu     sync.Mutex
	rooms  map[uint]*domain.Room
	saves  int
	stales int
}

func newMemRoomRepo(rooms ...*domain.Room) *memRoomRepo {
	r := &memRoomRepo{rooms: make(map[uint]*domain.Room)}
	for _, room := range rooms {
		r.rooms[room.ID] = cloneRoom(room)
	}
	return r
}

func cloneRoom(src *domain.Room) *domain.Room {
	dst := *src
	dst.Members = append([]domain.RoomMember(nil), src.Members...)
	dst.CurrentMeeting.Live = append([]domain.LiveParticipant(nil), src.CurrentMeeting.Live...)
	dst.CurrentMeeting.Ledger = append([]domain.LedgerEntry(nil), src.CurrentMeeting.Ledger...)
	dst.History = append([]domain.MeetingRecord(nil), src.History...)
	return &dst
}

func (r *memRoomRepo) get(id uint) *domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRoom(r.rooms[id])
}

func (r *memRoomRepo) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rooms {
		if existing.ProjectID == room.ProjectID || existing.AccessCode == room.AccessCode {
			return repository.ErrDuplicateEntry
		}
	}
	room.ID = uint(len(r.rooms) + 1)
	r.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (r *memRoomRepo) FindByID(_ context.Context, id uint) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (r *memRoomRepo) FindByProjectID(_ context.Context, projectID uint) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.ProjectID == projectID {
			return cloneRoom(room), nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (r *memRoomRepo) FindByAccessCode(_ context.Context, code string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.AccessCode == code {
			return cloneRoom(room), nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (r *memRoomRepo) ListForUser(_ context.Context, userID uint) ([]domain.Room, error) {
	return nil, errors.New("not implemented")
}

func (r *memRoomRepo) ListActive(_ context.Context) ([]domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Room
	for _, room := range r.rooms {
		if room.MeetingActive {
			out = append(out, *cloneRoom(room))
		}
	}
	return out, nil
}

func (r *memRoomRepo) SaveMeetingState(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rooms[room.ID]
	if !ok {
		return repository.ErrRoomNotFound
	}
	if stored.Version != room.Version {
		r.stales++
		return repository.ErrStaleVersion
	}
	next := cloneRoom(room)
	next.Members = stored.Members
	next.Settings = stored.Settings
	next.Version++
	r.rooms[room.ID] = next
	room.Version = next.Version
	r.saves++
	return nil
}

func (r *memRoomRepo) UpdateSettings(_ context.Context, roomID uint, settings domain.RoomSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return repository.ErrRoomNotFound
	}
	room.Settings = settings
	return nil
}

func (r *memRoomRepo) AddMember(_ context.Context, roomID uint, member domain.RoomMember) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false, repository.ErrRoomNotFound
	}
	if room.HasMember(member.UserID) {
		return false, nil
	}
	member.RoomID = roomID
	room.Members = append(room.Members, member)
	return true, nil
}

func (r *memRoomRepo) RemoveMember(_ context.Context, roomID, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return repository.ErrNotFound
	}
	for i, m := range room.Members {
		if m.UserID == userID {
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memRoomRepo) UpdateMemberStatus(_ context.Context, roomID, userID uint, status domain.PresenceStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		if m, ok := room.Member(userID); ok {
			m.Status = status
			m.LastActivityAt = at
		}
	}
	return nil
}

func (r *memRoomRepo) DeleteByProjectID(_ context.Context, projectID uint) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, room := range r.rooms {
		if room.ProjectID == projectID {
			delete(r.rooms, id)
			return id, nil
		}
	}
	return 0, repository.ErrRoomNotFound
}

// testClock 是可以手动推进的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newRoom 构造一个成员为 members 的空闲房间，第一个成员是创建者 (host)。
func newRoom(id uint, members ...uint) *domain.Room {
	room := &domain.Room{
		ID:         id,
		ProjectID:  100 + id,
		Name:       "Design sync",
		CreatorID:  members[0],
		AccessCode: "MEETABC123",
		Settings:   domain.DefaultRoomSettings(),
	}
	for i, uid := range members {
		role := domain.RoleParticipant
		if i == 0 {
			role = domain.RoleHost
		}
		room.Members = append(room.Members, domain.RoomMember{RoomID: id, UserID: uid, Role: role, Status: domain.StatusOffline})
	}
	return room
}

// memPresence 是按房间标识记录心跳的内存 PresenceRepository。
type memPresence struct {
	mu    sync.Mutex
	beats map[string]map[uint]time.Time
}

func newMemPresence() *memPresence {
	return &memPresence{beats: make(map[string]map[uint]time.Time)}
}

func (p *memPresence) Touch(_ context.Context, room string, userID uint, _ string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.beats[room] == nil {
		p.beats[room] = make(map[uint]time.Time)
	}
	p.beats[room][userID] = at
	return nil
}

func (p *memPresence) Remove(_ context.Context, room string, userID uint, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.beats[room], userID)
	return nil
}

func (p *memPresence) UserIDs(_ context.Context, room string, since time.Time) ([]uint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []uint
	for id, at := range p.beats[room] {
		if !at.Before(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
