package repository

import (
	"context"

	"collaborative-editor/internal/domain"
)

// VersionRepository 定义了文档历史版本的存储操作。
type VersionRepository interface {
	// Create 保存一个历史版本。
	Create(ctx context.Context, version *domain.DocumentVersion) error

	// Latest 返回项目最新的版本，没有时返回 ErrVersionNotFound。
	Latest(ctx context.Context, projectID string) (*domain.DocumentVersion, error)

	// ListByProject 按时间倒序列出项目的版本，limit <= 0 表示不限制。
	ListByProject(ctx context.Context, projectID string, limit int) ([]domain.DocumentVersion, error)

	// ProjectIDs 返回所有有版本记录的项目 ID。
	ProjectIDs(ctx context.Context) ([]string, error)

	// Prune 只保留项目最新的 keep 个版本，返回删除的数量。
	Prune(ctx context.Context, projectID string, keep int) (int64, error)
}
