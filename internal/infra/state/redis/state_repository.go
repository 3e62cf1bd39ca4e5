package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
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
		keyPrefix = "ce:" // 默认前缀 "ce:" (collaborative editor)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---
func (r *RedisStateRepository) documentCacheKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:document", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", r.keyPrefix, key)
}

// GetDocumentCache 尝试从 Redis 缓存中获取文档快照。
func (r *RedisStateRepository) GetDocumentCache(ctx context.Context, roomID string) (*domain.DocumentSnapshot, error) {
	key := r.documentCacheKey(roomID)
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: failed to get document cache for room %s from %s: %w", roomID, key, err)
	}
	var snapshot domain.DocumentSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal document cache for room %s from %s: %w", roomID, key, err)
	}
	return &snapshot, nil
}

// SetDocumentCache 将文档快照写入缓存。ttl 为 0 表示永不过期。
func (r *RedisStateRepository) SetDocumentCache(ctx context.Context, snapshot *domain.DocumentSnapshot, ttl time.Duration) error {
	key := r.documentCacheKey(snapshot.RoomID)
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal document cache (room %s, revision %d): %w", snapshot.RoomID, snapshot.Revision, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set document cache for room %s on key %s: %w", snapshot.RoomID, key, err)
	}
	return nil
}

// DeleteDocumentCache 删除文档缓存，key 不存在不算错误。
func (r *RedisStateRepository) DeleteDocumentCache(ctx context.Context, roomID string) error {
	key := r.documentCacheKey(roomID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete document cache for room %s on key %s: %w", roomID, key, err)
	}
	return nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	// 使用 Pipeline 减少网络往返
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, duration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", fullKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", fullKey, err)
	}
	// 计数大于限制即超限
	return count > int64(limit), nil
}
