package repository

import (
	"context"

	"collaborative-editor/internal/domain"
)

// ProjectRepository 定义了项目记录的存储和检索操作。
type ProjectRepository interface {
	// Create 创建项目。ID 冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, project *domain.Project) error

	// FindByID 根据 ID 查找项目，不存在时返回 ErrProjectNotFound。
	FindByID(ctx context.Context, id string) (*domain.Project, error)

	// ListByOwner 列出用户拥有的项目，按更新时间倒序。
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error)

	// UpdateMeta 更新标题和协作者，不触碰内容。
	UpdateMeta(ctx context.Context, project *domain.Project) error
}
