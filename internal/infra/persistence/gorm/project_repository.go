package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
)

// GormProjectRepository 是 ProjectRepository 和 DocumentRepository 的 GORM 实现。
// 文档内容就存放在项目记录上，房间 ID 即项目 ID。
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository 创建 GormProjectRepository 实例
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	if db == nil {
		panic("database connection cannot be nil for GormProjectRepository")
	}
	return &GormProjectRepository{db: db}
}

// Create 创建项目记录
func (r *GormProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	if project.Collaborators == "" {
		if err := project.SetCollaborators(nil); err != nil {
			return err
		}
	}
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create project %s: %w", project.ID, err)
	}
	return nil
}

// FindByID 实现根据 ID 查找项目
func (r *GormProjectRepository) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrProjectNotFound
		}
		return nil, fmt.Errorf("gorm: find project by id %s: %w", id, err)
	}
	return &project, nil
}

// ListByOwner 列出用户拥有的项目
func (r *GormProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error) {
	projects := []domain.Project{}
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list projects of owner %s: %w", ownerID, err)
	}
	return projects, nil
}

// UpdateMeta 只更新标题和协作者
func (r *GormProjectRepository) UpdateMeta(ctx context.Context, project *domain.Project) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ?", project.ID).
		Updates(map[string]interface{}{
			"title":         project.Title,
			"collaborators": project.Collaborators,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: update project %s: %w", project.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrProjectNotFound
	}
	return nil
}

// LoadDocument 读取房间最近一次持久化的内容
func (r *GormProjectRepository) LoadDocument(ctx context.Context, roomID string) (*domain.DocumentSnapshot, error) {
	var project domain.Project
	err := r.db.WithContext(ctx).
		Select("id", "content", "revision", "updated_at").
		Where("id = ?", roomID).
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("gorm: load document %s: %w", roomID, err)
	}
	return &domain.DocumentSnapshot{
		RoomID:    project.ID,
		Content:   project.Content,
		Revision:  project.Revision,
		UpdatedAt: project.UpdatedAt,
	}, nil
}

// StoreDocument 写入内容，房间没有对应项目时以默认标题创建
func (r *GormProjectRepository) StoreDocument(ctx context.Context, snapshot *domain.DocumentSnapshot) error {
	now := snapshot.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	project := domain.Project{
		ID:            snapshot.RoomID,
		Title:         domain.DefaultProjectTitle,
		Collaborators: "[]",
		Content:       snapshot.Content,
		Revision:      snapshot.Revision,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "revision", "updated_at"}),
	}).Create(&project).Error
	if err != nil {
		return fmt.Errorf("gorm: store document %s (revision %d): %w", snapshot.RoomID, snapshot.Revision, err)
	}
	return nil
}

// isDuplicateEntry 识别唯一约束冲突 (MySQL 1062 / gorm 翻译后的错误)
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
