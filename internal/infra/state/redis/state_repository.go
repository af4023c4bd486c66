package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const presenceKeyTTL = 10 * time.Minute

// RedisStateRepository 实现 RateLimiter 和 PresenceRepository
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "tm:"
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---
func (r *RedisStateRepository) rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", r.keyPrefix, key)
}

func (r *RedisStateRepository) presenceKey(room string) string {
	return fmt.Sprintf("%spresence:room:%s", r.keyPrefix, room)
}

func presenceMember(userID uint, connID string) string {
	return fmt.Sprintf("%d:%s", userID, connID)
}

// Allow 使用 INCR + EXPIRE 实现固定窗口计数
func (r *RedisStateRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := r.rateLimitKey(key)
	pipe := r.client.TxPipeline()
	incrCmd := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit pipeline for %s: %w", redisKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: read rate limit counter %s: %w", redisKey, err)
	}
	return count <= int64(limit), nil
}

// Touch 添加或刷新连接的心跳分数
func (r *RedisStateRepository) Touch(ctx context.Context, room string, userID uint, connID string, at time.Time) error {
	key := r.presenceKey(room)
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(at.UnixMilli()), Member: presenceMember(userID, connID)})
	pipe.Expire(ctx, key, presenceKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: touch presence %s in %s: %w", connID, key, err)
	}
	return nil
}

// Remove 删除连接在房间中的记录
func (r *RedisStateRepository) Remove(ctx context.Context, room string, userID uint, connID string) error {
	key := r.presenceKey(room)
	if err := r.client.ZRem(ctx, key, presenceMember(userID, connID)).Err(); err != nil {
		return fmt.Errorf("redis: remove presence %s from %s: %w", connID, key, err)
	}
	return nil
}

// UserIDs 返回 since 之后仍有心跳的用户，并顺便清理过期的连接
func (r *RedisStateRepository) UserIDs(ctx context.Context, room string, since time.Time) ([]uint, error) {
	key := r.presenceKey(room)
	cutoff := strconv.FormatInt(since.UnixMilli(), 10)

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
	rangeCmd := pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: cutoff, Max: "+inf"})
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: read presence from %s: %w", key, err)
	}

	members, err := rangeCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: read presence from %s: %w", key, err)
	}
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		raw, _, _ := strings.Cut(m, ":")
		id, parseErr := strconv.ParseUint(raw, 10, 64)
		if parseErr != nil {
			logrus.WithField("member", m).Warn("redis: malformed presence member, skipping")
			continue
		}
		ids = append(ids, uint(id))
	}
	return lo.Uniq(ids), nil
}
