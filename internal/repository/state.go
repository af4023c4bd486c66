package repository

import (
	"context"
	"time"
)

// RateLimiter 是固定窗口计数器，由 Redis 实现。
type RateLimiter interface {
	// Allow 递增 key 在当前窗口内的计数，并报告是否仍在限额内。
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PresenceRepository 记录中继连接在各房间的存在情况，跨实例共享。
type PresenceRepository interface {
	// Touch 添加或刷新一个连接在房间中的心跳。
	Touch(ctx context.Context, room string, userID uint, connID string, at time.Time) error

	// Remove 删除一个连接在房间中的记录。
	Remove(ctx context.Context, room string, userID uint, connID string) error

	// UserIDs 返回在 since 之后有心跳的不同用户 ID。
	UserIDs(ctx context.Context, room string, since time.Time) ([]uint, error)
}

// RelayEnvelope 是中继在实例之间转发的已编码帧。
type RelayEnvelope struct {
	Origin       string `json:"origin"`                 // 发布者实例 ID，订阅方据此忽略自己的消息
	Room         string `json:"room"`
	TargetUserID uint   `json:"targetUserId,omitempty"` // 非零时只投递给该用户的连接
	Frame        []byte `json:"frame"`
}

// RelayBroker 在多个中继实例之间分发房间消息。
type RelayBroker interface {
	Publish(ctx context.Context, env RelayEnvelope) error

	// Subscribe 返回所有房间消息的通道，ctx 结束时通道关闭。
	Subscribe(ctx context.Context) (<-chan RelayEnvelope, error)
}
