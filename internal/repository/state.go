package repository

import (
	"context"
	"time"

	"collaborative-editor/internal/domain"
)

// StateRepository 定义了与房间实时状态相关的操作，通常由 Redis 实现。
type StateRepository interface {
	// === Document Caching ===

	// GetDocumentCache 尝试从缓存中获取文档快照。
	// 如果缓存未命中，应返回 repository.ErrNotFound。
	GetDocumentCache(ctx context.Context, roomID string) (*domain.DocumentSnapshot, error)

	// SetDocumentCache 将文档快照写入缓存，ttl 为 0 表示不过期。
	SetDocumentCache(ctx context.Context, snapshot *domain.DocumentSnapshot, ttl time.Duration) error

	// DeleteDocumentCache 删除缓存。
	DeleteDocumentCache(ctx context.Context, roomID string) error

	// === Rate Limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限，false 如果未超限。
	CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error)
}
