package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// 任务类型
const (
	TypeMeetingReapStale = "meeting:reap_stale" // 周期任务：清理中继已断开的会议参与者
	TypeChatPurge        = "chat:purge"         // 项目删除后清空房间聊天
)

// 队列名称，与 worker.Server 的权重配置对应
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ReapStalePayload 是清理任务的参数
type ReapStalePayload struct {
	GraceSeconds int `json:"grace_seconds"`
}

// Grace 返回宽限期，未设置时为 0
func (p ReapStalePayload) Grace() time.Duration {
	return time.Duration(p.GraceSeconds) * time.Second
}

// ChatPurgePayload 是聊天清理任务的参数
type ChatPurgePayload struct {
	RoomID uint `json:"room_id"`
}

// NewReapStaleTask 创建清理任务，grace 内加入的参与者不会被清理
func NewReapStaleTask(grace time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ReapStalePayload{GraceSeconds: int(grace / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMeetingReapStale, payload), nil
}

// NewChatPurgeTask 创建房间聊天清理任务
func NewChatPurgeTask(roomID uint) (*asynq.Task, error) {
	if roomID == 0 {
		return nil, errors.New("room id must be set")
	}
	payload, err := json.Marshal(ChatPurgePayload{RoomID: roomID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeChatPurge, payload), nil
}

// Enqueuer 是 asynq.Client 中用到的部分
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher 把服务层的后台工作投递到 asynq 队列
type Dispatcher struct {
	client Enqueuer
}

// NewDispatcher 创建 Dispatcher 实例
func NewDispatcher(client Enqueuer) *Dispatcher {
	if client == nil {
		panic("Enqueuer cannot be nil for Dispatcher")
	}
	return &Dispatcher{client: client}
}

// ScheduleChatPurge 投递聊天清理任务。同一房间只会存在一个待处理的任务。
func (d *Dispatcher) ScheduleChatPurge(ctx context.Context, roomID uint) error {
	task, err := NewChatPurgeTask(roomID)
	if err != nil {
		return fmt.Errorf("failed to build chat purge task: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(5),
		asynq.TaskID(fmt.Sprintf("chat-purge:%d", roomID)),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithField("room_id", roomID).Debug("Chat purge already queued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue chat purge for room %d: %w", roomID, err)
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "task_id": info.ID, "queue": info.Queue}).Info("Chat purge task enqueued")
	return nil
}
