package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"team-meetings/internal/tasks"
)

// defaultReapGrace 是任务未指定宽限期时使用的值
const defaultReapGrace = 2 * time.Minute

// MeetingReaper 由 service.MeetingService 实现
type MeetingReaper interface {
	ReapStaleParticipants(ctx context.Context, grace time.Duration) (int, error)
}

// ChatPurger 由 service.MessageService 实现
type ChatPurger interface {
	PurgeRoom(ctx context.Context, roomID uint) (int64, error)
}

// taskLogger 返回带有任务信息的日志上下文
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	queue, _ := asynq.GetQueueName(ctx)
	retry, _ := asynq.GetRetryCount(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     retry,
	})
}

// ReapStaleHandler 处理周期性的失联参与者清理任务
type ReapStaleHandler struct {
	reaper MeetingReaper
}

// NewReapStaleHandler 创建 Handler 实例
func NewReapStaleHandler(reaper MeetingReaper) *ReapStaleHandler {
	if reaper == nil {
		panic("MeetingReaper cannot be nil for ReapStaleHandler")
	}
	return &ReapStaleHandler{reaper: reaper}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ReapStaleHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.ReapStalePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal reap payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	grace := payload.Grace()
	if grace <= 0 {
		grace = defaultReapGrace
	}

	reaped, err := h.reaper.ReapStaleParticipants(ctx, grace)
	if err != nil {
		logCtx.WithError(err).Error("Stale participant sweep failed")
		return fmt.Errorf("reap stale participants: %w", err)
	}
	logCtx.WithField("reaped", reaped).Debug("Stale participant sweep completed")
	return nil
}

// ChatPurgeHandler 删除已删除项目的房间聊天
type ChatPurgeHandler struct {
	purger ChatPurger
}

// NewChatPurgeHandler 创建 Handler 实例
func NewChatPurgeHandler(purger ChatPurger) *ChatPurgeHandler {
	if purger == nil {
		panic("ChatPurger cannot be nil for ChatPurgeHandler")
	}
	return &ChatPurgeHandler{purger: purger}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ChatPurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.ChatPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RoomID == 0 {
		logCtx.WithError(err).Error("Invalid chat purge payload")
		return fmt.Errorf("invalid chat purge payload %q: %w", t.Payload(), asynq.SkipRetry)
	}

	deleted, err := h.purger.PurgeRoom(ctx, payload.RoomID)
	if err != nil {
		logCtx.WithError(err).WithField("room_id", payload.RoomID).Error("Chat purge failed")
		return fmt.Errorf("purge chat for room %d: %w", payload.RoomID, err)
	}
	logCtx.WithFields(logrus.Fields{"room_id": payload.RoomID, "deleted": deleted}).Info("Room chat purged")
	return nil
}
