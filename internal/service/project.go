package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
)

// LiveDocuments 提供活跃房间的实时内容。
type LiveDocuments interface {
	LiveDocument(roomID string) (*domain.DocumentSnapshot, bool)
}

// ProjectService 负责项目记录的增删改查。文档内容只由持久化调度器写入。
type ProjectService struct {
	projectRepo repository.ProjectRepository
	versionRepo repository.VersionRepository
	live        LiveDocuments // 可以为 nil
}

// NewProjectService 创建 ProjectService 实例。
func NewProjectService(projectRepo repository.ProjectRepository, versionRepo repository.VersionRepository, live LiveDocuments) *ProjectService {
	if projectRepo == nil || versionRepo == nil {
		panic("ProjectRepository and VersionRepository cannot be nil for ProjectService")
	}
	return &ProjectService{projectRepo: projectRepo, versionRepo: versionRepo, live: live}
}

// CreateProject 创建一个新项目，ID 同时作为协作房间 ID。
func (s *ProjectService) CreateProject(ctx context.Context, ownerID, title string) (*domain.Project, error) {
	logCtx := logrus.WithField("owner_id", ownerID)

	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultProjectTitle
	}
	project := &domain.Project{
		ID:      uuid.NewString(),
		Title:   title,
		OwnerID: ownerID,
	}
	if err := project.SetCollaborators(nil); err != nil {
		return nil, ErrInternalServer
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// uuid 冲突，理论上不应发生
			logCtx.WithError(err).Error("Failed to create project due to duplicate id")
			return nil, ErrInternalServer
		}
		logCtx.WithError(err).Error("Failed to save new project to database")
		return nil, ErrInternalServer
	}

	logCtx.WithField("project_id", project.ID).Info("Project created successfully")
	return project, nil
}

// GetProject 返回项目，房间活跃时用实时内容覆盖存储内容。
func (s *ProjectService) GetProject(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	project, err := s.findAccessible(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if s.live != nil {
		if doc, ok := s.live.LiveDocument(projectID); ok {
			project.Content = doc.Content
			project.Revision = doc.Revision
		}
	}
	return project, nil
}

// ListProjects 列出用户拥有的项目。
func (s *ProjectService) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	projects, err := s.projectRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		logrus.WithField("owner_id", ownerID).WithError(err).Error("Failed to list projects")
		return nil, ErrInternalServer
	}
	return projects, nil
}

// UpdateProject 更新标题和协作者。只有所有者可以修改。
// title 为空或 collaborators 为 nil 时保持原值。
func (s *ProjectService) UpdateProject(ctx context.Context, userID, projectID, title string, collaborators []string) (*domain.Project, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": projectID})

	project, err := s.findAccessible(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != "" && project.OwnerID != userID {
		return nil, ErrForbidden
	}
	if t := strings.TrimSpace(title); t != "" {
		project.Title = t
	}
	if collaborators != nil {
		if err := project.SetCollaborators(collaborators); err != nil {
			return nil, ErrInternalServer
		}
	}
	if err := s.projectRepo.UpdateMeta(ctx, project); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		logCtx.WithError(err).Error("Failed to update project")
		return nil, ErrInternalServer
	}
	logCtx.Info("Project updated")
	return project, nil
}

// ListVersions 返回项目的历史版本。
func (s *ProjectService) ListVersions(ctx context.Context, userID, projectID string, limit int) ([]domain.DocumentVersion, error) {
	if _, err := s.findAccessible(ctx, userID, projectID); err != nil {
		return nil, err
	}
	versions, err := s.versionRepo.ListByProject(ctx, projectID, limit)
	if err != nil {
		logrus.WithField("project_id", projectID).WithError(err).Error("Failed to list versions")
		return nil, ErrInternalServer
	}
	return versions, nil
}

// AuthorizeRoom 检查用户能否通过 WebSocket 加入房间。
// 没有对应项目的房间（加入时隐式创建）对所有人开放；有项目时要求所有者或协作者，匿名连接会被拒绝。
func (s *ProjectService) AuthorizeRoom(ctx context.Context, userID, roomID string) error {
	project, err := s.projectRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil
		}
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to load project for room authorization")
		return ErrInternalServer
	}
	if !project.CanAccess(userID) {
		logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).Warn("Room access denied")
		return ErrForbidden
	}
	return nil
}

func (s *ProjectService) findAccessible(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": projectID})
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		logCtx.WithError(err).Error("Failed to find project")
		return nil, ErrInternalServer
	}
	if !project.CanAccess(userID) {
		logCtx.Warn("Project access denied")
		return nil, ErrForbidden
	}
	return project, nil
}
