// Package hub 实现会议的在线状态和信令中继：房间分组、广播、点对点转发。
package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"team-meetings/internal/domain"
	"team-meetings/internal/repository"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// SDP offer 通常有几 KB
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
	outboxSize     = 1024
	jobTimeout     = 5 * time.Second

	defaultPresenceInterval = 30 * time.Second
	presenceLookupTimeout   = 300 * time.Millisecond
)

// Option 配置 Hub
type Option func(*Hub)

// WithBroker 启用跨实例转发
func WithBroker(b repository.RelayBroker) Option {
	return func(h *Hub) { h.broker = b }
}

// WithPresence 启用共享的在线记录，interval 是心跳刷新周期
func WithPresence(p repository.PresenceRepository, interval time.Duration) Option {
	return func(h *Hub) {
		h.presence = p
		if interval > 0 {
			h.presenceInterval = interval
		}
	}
}

// Hub 维护本实例的连接和房间分组，负责广播和信令转发。
// 跨实例的消息通过 RelayBroker 转发，Hub 本身不保存会议状态。
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	instanceID       string
	broker           repository.RelayBroker
	presence         repository.PresenceRepository
	presenceInterval time.Duration

	// outbox 串行执行 Redis 写入，消息处理不等待外部 I/O
	outbox   chan func(context.Context)
	running  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	now      func() time.Time
}

// NewHub 创建 Hub 实例，需要调用 Start 启动后台任务。
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:          make(map[*Client]struct{}),
		rooms:            make(map[string]map[*Client]struct{}),
		instanceID:       uuid.NewString(),
		presenceInterval: defaultPresenceInterval,
		outbox:           make(chan func(context.Context), outboxSize),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InstanceID 返回本实例在 broker 中的标识
func (h *Hub) InstanceID() string { return h.instanceID }

// Start 启动 outbox、broker 订阅和在线心跳。
func (h *Hub) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	log := logrus.WithFields(logrus.Fields{"component": "hub", "instance_id": h.instanceID})

	if h.broker != nil {
		envelopes, err := h.broker.Subscribe(ctx)
		if err != nil {
			cancel()
			return fmt.Errorf("hub: subscribe relay broker: %w", err)
		}
		h.wg.Add(1)
		go h.runBroker(ctx, envelopes)
	}

	h.cancel = cancel
	h.running.Store(true)
	h.wg.Add(1)
	go h.runOutbox(ctx)

	if h.presence != nil {
		h.wg.Add(1)
		go h.runPresence(ctx)
	}
	log.WithFields(logrus.Fields{"broker": h.broker != nil, "presence": h.presence != nil}).Info("Hub is running...")
	return nil
}

// Stop 停止后台任务并关闭所有连接。可以重复调用。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.running.Store(false)
		if h.cancel != nil {
			h.cancel()
		}
		h.wg.Wait()

		h.mu.Lock()
		for c := range h.clients {
			c.closeSend()
		}
		n := len(h.clients)
		h.clients = make(map[*Client]struct{})
		h.rooms = make(map[string]map[*Client]struct{})
		h.mu.Unlock()
		logrus.WithFields(logrus.Fields{"component": "hub", "closed_clients": n}).Info("Hub stopped")
	})
}

// Register 登记一个已认证的连接。
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	c.logger().Info("Client registered to Hub")
}

// Unregister 移除连接：对它所在的每个房间广播 user-left，然后关闭发送通道。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	left := lo.Keys(c.rooms)
	for _, room := range left {
		h.removeFromRoomLocked(c, room)
	}
	c.closeSend()
	h.mu.Unlock()

	for _, room := range left {
		h.announceLeave(c, room)
	}
	c.logger().WithField("rooms_left", len(left)).Info("Client unregistered from Hub")
}

// HandleFrame 处理一条客户端消息。同一连接的消息按顺序处理。
func (h *Hub) HandleFrame(c *Client, raw []byte) {
	event, msg, err := parseFrame(raw)
	logCtx := c.logger().WithField("event", event)
	if err != nil {
		logCtx.WithError(err).Warn("Rejected relay frame")
		h.sendError(c, err.Error())
		return
	}
	logCtx = logCtx.WithField("room", msg.room())

	switch m := msg.(type) {
	case joinMeeting:
		h.join(c, m.room())
		return
	case leaveMeeting:
		h.leave(c, m.room())
		return
	}

	if !h.inRoom(c, msg.room()) {
		logCtx.Warn("Frame for a room the connection has not joined")
		h.sendError(c, fmt.Sprintf("join room %s before sending %s", msg.room(), event))
		return
	}

	switch m := msg.(type) {
	case sendMessage:
		h.chat(c, m)
	case signal:
		h.relaySignal(c, m)
	case mediaState:
		h.mediaUpdate(c, m)
	}
}

// join 将连接加入房间分组。重复加入只重新发送参与者列表。
func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	_, already := c.rooms[room]
	if !already {
		group, ok := h.rooms[room]
		if !ok {
			group = make(map[*Client]struct{})
			h.rooms[room] = group
		}
		group[c] = struct{}{}
		c.rooms[room] = struct{}{}
	}
	local := h.roomUserIDsLocked(room)
	h.mu.Unlock()

	if !already {
		frame, err := encodeFrame(EventUserJoined, userJoined{UserID: c.user.ID, UserInfo: c.user})
		if err == nil {
			h.fanout(room, frame, c, 0)
		}
		h.touchPresence(room, c)
		c.logger().WithField("room", room).Info("Client joined room")
	}

	h.sendRoster(c, room, local)
}

// leave 将连接移出房间分组，未加入时不做任何事。
func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	_, joined := c.rooms[room]
	if joined {
		h.removeFromRoomLocked(c, room)
	}
	h.mu.Unlock()
	if joined {
		h.announceLeave(c, room)
		c.logger().WithField("room", room).Info("Client left room")
	}
}

func (h *Hub) announceLeave(c *Client, room string) {
	if frame, err := encodeFrame(EventUserLeft, userLeft{UserID: c.user.ID}); err == nil {
		h.fanout(room, frame, c, 0)
	}
	if h.presence != nil {
		userID, connID := c.user.ID, c.id
		h.enqueue("presence remove", func(ctx context.Context) error {
			return h.presence.Remove(ctx, room, userID, connID)
		})
	}
}

// chat 广播聊天消息，发送者也会收到。
func (h *Hub) chat(c *Client, m sendMessage) {
	frame, err := encodeFrame(EventNewMessage, newMessage{
		ID:        uuid.NewString(),
		Sender:    c.user,
		Content:   m.Message,
		Type:      domain.MessageTypeText,
		Timestamp: h.now().UTC(),
	})
	if err != nil {
		c.logger().WithError(err).Error("Failed to encode chat message")
		return
	}
	h.fanout(m.room(), frame, nil, 0)
}

// relaySignal 只转发给目标用户在同一房间的连接。
func (h *Hub) relaySignal(c *Client, s signal) {
	frame, err := encodeSignal(s, c.user)
	if err != nil {
		c.logger().WithError(err).Error("Failed to encode signaling envelope")
		return
	}
	h.fanout(s.room(), frame, c, s.TargetUserID)
}

// mediaUpdate 将媒体状态转发给房间内的其他连接，不做持久化。
func (h *Hub) mediaUpdate(c *Client, m mediaState) {
	frame, err := encodeFrame(EventUserMediaUpdated, userMediaUpdated{UserID: c.user.ID, Mic: *m.Mic, Camera: *m.Camera})
	if err != nil {
		return
	}
	h.fanout(m.room(), frame, c, 0)
}

// fanout 投递给本实例的连接，并通过 broker 转发给其他实例。
// target 非零时只投递给该用户的连接。
func (h *Hub) fanout(room string, frame []byte, exclude *Client, target uint) {
	delivered := h.deliverLocal(room, frame, func(rc *Client) bool {
		return rc != exclude && (target == 0 || rc.user.ID == target)
	})
	logrus.WithFields(logrus.Fields{"room": room, "recipients": delivered, "target_user_id": target}).Debug("Frame fanned out locally")

	if h.broker != nil {
		env := repository.RelayEnvelope{Origin: h.instanceID, Room: room, TargetUserID: target, Frame: frame}
		h.enqueue("broker publish", func(ctx context.Context) error {
			return h.broker.Publish(ctx, env)
		})
	}
}

// deliverLocal 以非阻塞方式发送给房间内满足条件的连接，返回成功放入队列的数量。
// 持有读锁发送，Unregister 在写锁下关闭通道，因此不会向已关闭的通道发送。
func (h *Hub) deliverLocal(room string, frame []byte, accept func(*Client) bool) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for rc := range h.rooms[room] {
		if !accept(rc) {
			continue
		}
		select {
		case rc.send <- frame:
			delivered++
		default:
			rc.logger().Warn("Client send channel full, dropping frame")
		}
	}
	return delivered
}

// deliverRemote 投递其他实例转发过来的消息
func (h *Hub) deliverRemote(env repository.RelayEnvelope) {
	if env.Origin == h.instanceID {
		return
	}
	h.deliverLocal(env.Room, env.Frame, func(rc *Client) bool {
		return env.TargetUserID == 0 || rc.user.ID == env.TargetUserID
	})
}

func (h *Hub) sendTo(c *Client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger().Warn("Client send channel full, dropping direct frame")
	}
}

func (h *Hub) sendError(c *Client, message string) {
	if frame, err := encodeFrame(EventError, errorPayload{Message: message}); err == nil {
		h.sendTo(c, frame)
	}
}

func (h *Hub) inRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (h *Hub) removeFromRoomLocked(c *Client, room string) {
	delete(c.rooms, room)
	if group, ok := h.rooms[room]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) roomUserIDsLocked(room string) []uint {
	ids := make([]uint, 0, len(h.rooms[room]))
	for rc := range h.rooms[room] {
		ids = append(ids, rc.user.ID)
	}
	return ids
}

// sendRoster 回复 current-participants。配置了共享在线记录时，合并其他实例成员的查询放到 outbox 中执行，
// 读循环不等待 Redis；outbox 未运行或已满时直接发送本实例的成员。
func (h *Hub) sendRoster(c *Client, room string, local []uint) {
	if h.presence != nil {
		since := h.now().Add(-3 * h.presenceInterval)
		queued := h.enqueue("participant roster", func(ctx context.Context) error {
			lookupCtx, cancel := context.WithTimeout(ctx, presenceLookupTimeout)
			remote, err := h.presence.UserIDs(lookupCtx, room, since)
			cancel()
			if err != nil {
				logrus.WithError(err).WithField("room", room).Warn("Presence lookup failed, using local participants only")
			}
			h.mu.RLock()
			current := h.roomUserIDsLocked(room)
			h.mu.RUnlock()
			h.writeRoster(c, append(current, remote...))
			return nil
		})
		if queued {
			return
		}
	}
	h.writeRoster(c, local)
}

// writeRoster 去重排序后发送给单个连接
func (h *Hub) writeRoster(c *Client, ids []uint) {
	ids = lo.Uniq(ids)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	frame, err := encodeFrame(EventCurrentParticipants, currentParticipants{ParticipantIDs: ids})
	if err != nil {
		c.logger().WithError(err).Error("Failed to encode participant list")
		return
	}
	h.sendTo(c, frame)
}

func (h *Hub) touchPresence(room string, c *Client) {
	if h.presence == nil {
		return
	}
	userID, connID, at := c.user.ID, c.id, h.now()
	h.enqueue("presence touch", func(ctx context.Context) error {
		return h.presence.Touch(ctx, room, userID, connID, at)
	})
}

// --- 后台任务 ---

// enqueue 将外部 I/O 放入 outbox，队列满或 Hub 未运行时丢弃并返回 false
func (h *Hub) enqueue(name string, job func(context.Context) error) bool {
	if !h.running.Load() {
		return false
	}
	wrapped := func(ctx context.Context) {
		if err := job(ctx); err != nil {
			logrus.WithError(err).WithField("job", name).Warn("Hub background job failed")
		}
	}
	select {
	case h.outbox <- wrapped:
		return true
	default:
		logrus.WithField("job", name).Warn("Hub outbox full, dropping job")
		return false
	}
}

func (h *Hub) runOutbox(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-h.outbox:
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			job(jobCtx)
			cancel()
		}
	}
}

func (h *Hub) runBroker(ctx context.Context, envelopes <-chan repository.RelayEnvelope) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-envelopes:
			if !ok {
				logrus.WithField("component", "hub").Warn("Relay broker subscription closed")
				return
			}
			h.deliverRemote(env)
		}
	}
}

// runPresence 定期刷新本实例所有房间连接的心跳
func (h *Hub) runPresence(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.presenceInterval)
	defer ticker.Stop()

	type entry struct {
		room   string
		userID uint
		connID string
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			var entries []entry
			for room, group := range h.rooms {
				for c := range group {
					entries = append(entries, entry{room: room, userID: c.user.ID, connID: c.id})
				}
			}
			h.mu.RUnlock()

			at := h.now()
			for _, e := range entries {
				tctx, cancel := context.WithTimeout(ctx, jobTimeout)
				if err := h.presence.Touch(tctx, e.room, e.userID, e.connID, at); err != nil {
					logrus.WithError(err).WithField("room", e.room).Warn("Failed to refresh relay presence")
				}
				cancel()
			}
		}
	}
}
