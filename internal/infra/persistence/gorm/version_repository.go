package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
)

// GormVersionRepository 是 VersionRepository 接口的 GORM 实现
type GormVersionRepository struct {
	db *gorm.DB
}

// NewGormVersionRepository 创建 GormVersionRepository 实例
func NewGormVersionRepository(db *gorm.DB) *GormVersionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormVersionRepository")
	}
	return &GormVersionRepository{db: db}
}

func (r *GormVersionRepository) Create(ctx context.Context, version *domain.DocumentVersion) error {
	if err := r.db.WithContext(ctx).Create(version).Error; err != nil {
		return fmt.Errorf("gorm: create version for project %s: %w", version.ProjectID, err)
	}
	return nil
}

func (r *GormVersionRepository) Latest(ctx context.Context, projectID string) (*domain.DocumentVersion, error) {
	var version domain.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").Order("id DESC").
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrVersionNotFound
		}
		return nil, fmt.Errorf("gorm: latest version of project %s: %w", projectID, err)
	}
	return &version, nil
}

func (r *GormVersionRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]domain.DocumentVersion, error) {
	versions := []domain.DocumentVersion{}
	q := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("gorm: list versions of project %s: %w", projectID, err)
	}
	return versions, nil
}

func (r *GormVersionRepository) ProjectIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.DocumentVersion{}).
		Distinct().
		Pluck("project_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list versioned projects: %w", err)
	}
	return ids, nil
}

// Prune 删除超出保留数量的旧版本
func (r *GormVersionRepository) Prune(ctx context.Context, projectID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&domain.DocumentVersion{}).
		Where("project_id = ?", projectID).
		Order("created_at DESC").Order("id DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: list version ids of project %s: %w", projectID, err)
	}
	if len(ids) <= keep {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("id IN ?", ids[keep:]).Delete(&domain.DocumentVersion{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: prune versions of project %s: %w", projectID, result.Error)
	}
	return result.RowsAffected, nil
}
